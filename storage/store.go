// Package storage defines the key/value backing stores that hold session
// continuity data on the client. Two stores are used side by side: a durable
// one that survives restarts and an ephemeral one scoped to the current run.
package storage

import (
	"context"
	"errors"
)

// Mode selects the backing store a value is written to.
type Mode int

const (
	Ephemeral Mode = iota
	Durable
)

func (m Mode) String() string {
	if m == Durable {
		return "durable"
	}
	return "ephemeral"
}

// ModeFor maps a "remember me" flag to a store.
func ModeFor(remember bool) Mode {
	if remember {
		return Durable
	}
	return Ephemeral
}

// ErrUnavailable is returned by stores that are disabled or unreachable.
var ErrUnavailable = errors.New("storage unavailable")

// Store is a string key/value store. Get reports ok=false for missing keys;
// Delete of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
