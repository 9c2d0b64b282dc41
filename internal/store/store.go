package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

var ErrClosed = errors.New("store: closed")

// Store owns the database handle. Every submitted function runs on one
// goroutine, one at a time, so callers never touch the connection concurrently.
type Store struct {
	repo *Repo

	reqs      chan request
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type request struct {
	ctx  context.Context
	tx   bool
	fn   func(ctx context.Context, r *Repo) error
	resp chan error
}

func New(db *gorm.DB) *Store {
	s := &Store{
		repo: NewRepo(db),
		reqs: make(chan request),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Do runs fn against the repo on the store goroutine.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, r *Repo) error) error {
	return s.submit(ctx, false, fn)
}

// Tx is Do inside a database transaction; fn returning an error rolls it back.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, r *Repo) error) error {
	return s.submit(ctx, true, fn)
}

// Close stops the store goroutine. Pending and later calls get ErrClosed.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Store) submit(ctx context.Context, tx bool, fn func(ctx context.Context, r *Repo) error) error {
	// buffered so the loop never blocks on a caller that gave up
	req := request{ctx: ctx, tx: tx, fn: fn, resp: make(chan error, 1)}

	select {
	case s.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrClosed
	}

	select {
	case err := <-req.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case req := <-s.reqs:
			req.resp <- s.run(req)
		}
	}
}

func (s *Store) run(req request) (err error) {
	if err := req.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("store: panic: %v", p)
		}
	}()

	if req.tx {
		return s.repo.Transaction(req.ctx, func(tx *Repo) error {
			return req.fn(req.ctx, tx)
		})
	}
	return req.fn(req.ctx, s.repo)
}
