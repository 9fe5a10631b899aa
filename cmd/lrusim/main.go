// Command lrusim replays a churn workload against an lrucache.Cache and
// reports how its slot storage behaved.
//
// Defaults come from LRUSIM_* environment variables and can be overridden
// with flags.
package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/karupanerura/lrucache"
	"github.com/spf13/cobra"
)

type config struct {
	Max      int           `env:"LRUSIM_MAX"       envDefault:"101"`
	MaxSize  int64         `env:"LRUSIM_MAX_SIZE"  envDefault:"10000"`
	ItemSize int           `env:"LRUSIM_ITEM_SIZE" envDefault:"100"`
	Items    int           `env:"LRUSIM_ITEMS"     envDefault:"1000"`
	KeyRange int           `env:"LRUSIM_KEY_RANGE" envDefault:"200"`
	TTL      time.Duration `env:"LRUSIM_TTL"`
	Seed     uint64        `env:"LRUSIM_SEED"      envDefault:"1"`
	Debug    bool          `env:"LRUSIM_DEBUG"`
}

type report struct {
	Sets          int
	Evictions     int
	PeakAllocated int
	PeakFree      int
	Final         lrucache.SlotStats
	Size          int64
}

func newRootCmd() (*cobra.Command, error) {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	cmd := &cobra.Command{
		Use:           "lrusim",
		Short:         "Simulate cache churn and report slot reuse",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := log.InfoLevel
			if cfg.Debug {
				level = log.DebugLevel
			}
			logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
				Prefix: "lrusim",
				Level:  level,
			})

			r, err := simulate(cfg, logger)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), cfg, r)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.Max, "max", cfg.Max, "maximum number of entries (0 for none)")
	flags.Int64Var(&cfg.MaxSize, "max-size", cfg.MaxSize, "maximum total size in bytes (0 for none)")
	flags.IntVar(&cfg.ItemSize, "item-size", cfg.ItemSize, "size of every value in bytes")
	flags.IntVar(&cfg.Items, "items", cfg.Items, "number of Set calls")
	flags.IntVar(&cfg.KeyRange, "key-range", cfg.KeyRange, "number of distinct keys")
	flags.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "time-to-live of every entry (0 for none)")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "seed of the key sequence")
	flags.BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "enable debug logging")
	return cmd, nil
}

func simulate(cfg config, logger *log.Logger) (report, error) {
	if cfg.KeyRange <= 0 || cfg.ItemSize < 0 {
		return report{}, fmt.Errorf("key range must be positive and item size must not be negative")
	}

	var r report
	cache, err := lrucache.New(lrucache.Options[string, string]{
		Max:             cfg.Max,
		MaxSize:         cfg.MaxSize,
		TTL:             cfg.TTL,
		SizeCalculation: lrucache.ReflectSizer[string, string](),
		Logger:          logger,
		Dispose: func(_, _ string, reason lrucache.DisposeReason) {
			if reason == lrucache.ReasonEvict {
				r.Evictions++
			}
		},
	})
	if err != nil {
		return report{}, err
	}
	defer cache.Close()

	value := strings.Repeat("x", cfg.ItemSize)
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	for i := range cfg.Items {
		key := strconv.Itoa(rng.IntN(cfg.KeyRange))
		if err := cache.Set(key, value); err != nil {
			return report{}, fmt.Errorf("set #%d: %w", i, err)
		}
		r.Sets++

		st := cache.SlotStats()
		r.PeakAllocated = max(r.PeakAllocated, st.Allocated)
		r.PeakFree = max(r.PeakFree, st.Free)
	}
	r.Final = cache.SlotStats()
	r.Size = cache.CalculatedSize()
	logger.Debug("simulation finished", "sets", r.Sets, "evictions", r.Evictions)
	return r, nil
}

func printReport(w io.Writer, cfg config, r report) error {
	_, err := fmt.Fprintf(w,
		"sets:           %s\n"+
			"evictions:      %s\n"+
			"entries:        %d\n"+
			"size:           %s of %s\n"+
			"slots:          %d allocated (peak %d), %d free (peak %d)\n",
		humanize.Comma(int64(r.Sets)),
		humanize.Comma(int64(r.Evictions)),
		r.Final.Occupied,
		humanize.Bytes(uint64(r.Size)), bound(cfg.MaxSize),
		r.Final.Allocated, r.PeakAllocated, r.Final.Free, r.PeakFree,
	)
	return err
}

func bound(n int64) string {
	if n <= 0 {
		return "unbounded"
	}
	return humanize.Bytes(uint64(n))
}

func main() {
	cmd, err := newRootCmd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
