package lrucache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned by New for contradictory Options.
	ErrInvalidConfiguration = errors.New("invalid cache configuration")

	// ErrSizeCalculation is returned by Set when the size function fails or
	// reports a negative size. The cache is left unchanged.
	ErrSizeCalculation = errors.New("size calculation failed")

	// ErrEntryTooLarge is returned by Set when a single entry exceeds
	// MaxEntrySize. The cache is left unchanged.
	ErrEntryTooLarge = errors.New("entry exceeds the maximum entry size")

	// ErrLoad wraps every error returned by a Loader.
	ErrLoad = errors.New("load failed")

	// ErrLoadTimeout is the cause of a load that exceeded FetchTimeout.
	ErrLoadTimeout = fmt.Errorf("%w: timed out", ErrLoad)

	// ErrFetchAborted is the cause of a load whose key was deleted,
	// overwritten, evicted or cleared before it completed.
	ErrFetchAborted = errors.New("fetch aborted")

	// ErrDispose wraps panics raised by Dispose and DisposeAfter callbacks.
	ErrDispose = errors.New("dispose callback failed")

	// ErrClosed is returned by operations that need a live cache after Close.
	ErrClosed = errors.New("cache closed")
)

// Causes handed to the loader context when its key goes away.
var (
	errAbortDeleted    = fmt.Errorf("%w: key deleted", ErrFetchAborted)
	errAbortReplaced   = fmt.Errorf("%w: key replaced", ErrFetchAborted)
	errAbortEvicted    = fmt.Errorf("%w: key evicted", ErrFetchAborted)
	errAbortCleared    = fmt.Errorf("%w: cache cleared", ErrFetchAborted)
	errAbortClosed     = fmt.Errorf("%w: %w", ErrFetchAborted, ErrClosed)
	errAbortSuperseded = fmt.Errorf("%w: slot reused", ErrFetchAborted)
)
