package store

import (
	"context"
	"strings"
	"sync"

	"skyreg/internal/registry"
)

// Memory keeps the full record set in process memory. It mirrors the
// transactional semantics of the Postgres store: a Replace stages writes and
// swaps them in only when the callback succeeds.
type Memory struct {
	mu       sync.RWMutex
	byReg    map[string]registry.Aircraft
	byHex    map[string]registry.Aircraft
	metadata *registry.SyncMetadata
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byReg: make(map[string]registry.Aircraft),
		byHex: make(map[string]registry.Aircraft),
	}
}

func (s *Memory) FindByKey(_ context.Context, kind registry.KeyKind, value string) (*registry.Aircraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := strings.ToUpper(strings.TrimSpace(value))
	var (
		rec registry.Aircraft
		ok  bool
	)
	switch kind {
	case registry.KeyRegistration:
		rec, ok = s.byReg[key]
	case registry.KeyModeSHex:
		rec, ok = s.byHex[key]
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *Memory) ReadMetadata(_ context.Context) (*registry.SyncMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.metadata == nil {
		return nil, nil
	}
	meta := *s.metadata
	return &meta, nil
}

func (s *Memory) Replace(ctx context.Context, fn func(ctx context.Context, tx BulkTx) error) error {
	tx := &memoryTx{
		byReg: make(map[string]registry.Aircraft),
		byHex: make(map[string]registry.Aircraft),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.cleared {
		s.byReg = tx.byReg
		s.byHex = tx.byHex
	} else {
		for k, v := range tx.byReg {
			s.byReg[k] = v
		}
		for k, v := range tx.byHex {
			s.byHex[k] = v
		}
	}
	if tx.metadata != nil {
		s.metadata = tx.metadata
	}
	return nil
}

// memoryTx stages writes until the Replace callback returns cleanly.
type memoryTx struct {
	cleared  bool
	byReg    map[string]registry.Aircraft
	byHex    map[string]registry.Aircraft
	metadata *registry.SyncMetadata
}

func (t *memoryTx) DeleteAll(context.Context) error {
	t.cleared = true
	t.byReg = make(map[string]registry.Aircraft)
	t.byHex = make(map[string]registry.Aircraft)
	return nil
}

func (t *memoryTx) BatchUpsert(_ context.Context, records []registry.Aircraft) (int, error) {
	for _, rec := range records {
		reg := strings.ToUpper(strings.TrimSpace(rec.Registration))
		if reg == "" {
			continue
		}
		rec.Registration = reg
		rec.ModeSHex = strings.ToUpper(strings.TrimSpace(rec.ModeSHex))
		t.byReg[reg] = rec
		if rec.ModeSHex != "" {
			t.byHex[rec.ModeSHex] = rec
		}
	}
	return len(records), nil
}

func (t *memoryTx) WriteMetadata(_ context.Context, meta registry.SyncMetadata) error {
	t.metadata = &meta
	return nil
}
