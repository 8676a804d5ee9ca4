// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"sync"

	"github.com/joeblew999/plat-hazard/internal/store"
)

// Call records one Query invocation.
type Call struct {
	SQL  string
	Args []any
}

// Store answers queries with Handler and records every call.
type Store struct {
	Handler func(sql string, args []any) (*store.Result, error)

	mu    sync.Mutex
	calls []Call
}

var _ store.Store = (*Store)(nil)

// Query records the call and delegates to Handler.
func (s *Store) Query(ctx context.Context, sql string, args ...any) (*store.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{SQL: sql, Args: args})
	s.mu.Unlock()
	if s.Handler == nil {
		return &store.Result{}, nil
	}
	return s.Handler(sql, args)
}

// Calls returns a copy of the recorded calls.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Driver() string             { return "fake" }
func (s *Store) Close() error               { return nil }
