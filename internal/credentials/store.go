// Package credentials provides the key/value stores the console reads its
// bearer token from.
package credentials

import (
	"context"
	"errors"
	"os"
)

// ErrNotFound indicates the requested key is not present in the store.
var ErrNotFound = errors.New("credential not found")

// Reader looks up a credential by exact key.
type Reader interface {
	Get(ctx context.Context, key string) (string, error)
}

// Writer is a Reader that can also persist values.
type Writer interface {
	Reader
	Set(ctx context.Context, key, value string) error
}

// Static is an in-memory store, used for flag overrides.
type Static map[string]string

// Get implements Reader.
func (s Static) Get(_ context.Context, key string) (string, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

// Env maps credential keys to environment variable names.
type Env map[string]string

// Get implements Reader.
func (e Env) Get(_ context.Context, key string) (string, error) {
	name, ok := e[key]
	if !ok {
		return "", ErrNotFound
	}
	v := os.Getenv(name)
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

// Chain consults each store in order and returns the first hit.
type Chain []Reader

// Get implements Reader. Errors other than ErrNotFound stop the search.
func (c Chain) Get(ctx context.Context, key string) (string, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		v, err := r.Get(ctx, key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", ErrNotFound
}
