package store

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/talkincode/prodcatalog/config"
	"github.com/talkincode/prodcatalog/internal/domain"
	"go.uber.org/zap"
)

// Backend is a durable home for catalog entries and pending create requests
type Backend interface {
	// Entries returns the catalog in snapshot order
	Entries(ctx context.Context) ([]*domain.CatalogEntry, error)

	// ReplaceAll atomically swaps the whole catalog for entries
	ReplaceAll(ctx context.Context, entries []*domain.CatalogEntry) error

	// SetFavourite updates the favourite flag of one entry
	SetFavourite(ctx context.Context, id int64, favourite bool) error

	// EnqueuePending appends a request to the pending queue
	EnqueuePending(ctx context.Context, req *domain.PendingCreateRequest) error

	// PendingRequests returns the queue, oldest first
	PendingRequests(ctx context.Context) ([]*domain.PendingCreateRequest, error)

	// DeletePending removes one queued request
	DeletePending(ctx context.Context, id int64) error

	Close() error
}

// RebuildFunc derives the next catalog from the current one
type RebuildFunc func(current []*domain.CatalogEntry) ([]*domain.CatalogEntry, error)

// Store is the serialized access point to the local catalog
type Store interface {
	Backend

	// Rebuild reads the catalog and replaces it with fn's result without
	// letting any other mutation interleave. Returning a nil slice from fn
	// leaves the catalog untouched.
	Rebuild(ctx context.Context, fn RebuildFunc) error

	// ToggleFavourite flips the favourite flag of one entry and returns the
	// new value.
	ToggleFavourite(ctx context.Context, id int64) (bool, error)
}

// Serialized funnels every mutation through a single writer lock while
// letting reads run concurrently.
type Serialized struct {
	mu      sync.RWMutex
	backend Backend
}

var _ Store = (*Serialized)(nil)

// NewSerialized wraps a backend
func NewSerialized(backend Backend) *Serialized {
	return &Serialized{backend: backend}
}

func (s *Serialized) Entries(ctx context.Context) ([]*domain.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Entries(ctx)
}

func (s *Serialized) ReplaceAll(ctx context.Context, entries []*domain.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.ReplaceAll(ctx, entries)
}

func (s *Serialized) Rebuild(ctx context.Context, fn RebuildFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.backend.Entries(ctx)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return s.backend.ReplaceAll(ctx, next)
}

func (s *Serialized) SetFavourite(ctx context.Context, id int64, favourite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.SetFavourite(ctx, id, favourite)
}

func (s *Serialized) ToggleFavourite(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.backend.Entries(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.ID != id {
			continue
		}
		if err := s.backend.SetFavourite(ctx, id, !e.IsFavourite); err != nil {
			return false, err
		}
		return !e.IsFavourite, nil
	}
	return false, domain.ErrNotFound
}

func (s *Serialized) EnqueuePending(ctx context.Context, req *domain.PendingCreateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.EnqueuePending(ctx, req)
}

func (s *Serialized) PendingRequests(ctx context.Context) ([]*domain.PendingCreateRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.PendingRequests(ctx)
}

func (s *Serialized) DeletePending(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.DeletePending(ctx, id)
}

func (s *Serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

// Open selects the backend from the database configuration
func Open(cfg config.DBConfig, workdir string) (*Serialized, error) {
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "bolt", "bbolt":
		backend, err = OpenBoltStore(boltPath(cfg, workdir))
	case "", "sqlite", "sqlite3", "postgres", "postgresql":
		var db = getDatabase(cfg, workdir)
		if db == nil {
			return nil, errors.Errorf("open %s database failed", cfg.Type)
		}
		backend, err = NewGormStore(db)
	default:
		return nil, errors.Errorf("unsupported database type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	zap.L().Info("local catalog store opened",
		zap.String("namespace", "store"),
		zap.String("type", cfg.Type))
	return NewSerialized(backend), nil
}
