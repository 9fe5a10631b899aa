// Package model holds a key type whose name collides with the one in v2/model.
package model

type ID struct {
	N int
}
