// Package model holds a key type whose name collides with the one in v1/model.
package model

type ID struct {
	S string
}
