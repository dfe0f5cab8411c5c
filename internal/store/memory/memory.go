// Package memory is an in-process link store guarded by a RWMutex. It backs
// development runs and tests; records vanish with the process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BBbrighton/qr-suite/internal/core"
)

type targetKey struct{ typ, name string }

// Store implements core.Store and core.Targets.
type Store struct {
	mu      sync.RWMutex
	seq     int64
	links   map[string]*entry
	tokens  map[string]string
	scans   map[string][]*core.ScanLogEntry
	records map[targetKey]map[string]string
}

type entry struct {
	seq  int64
	link core.LinkRecord
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		links:   make(map[string]*entry),
		tokens:  make(map[string]string),
		scans:   make(map[string][]*core.ScanLogEntry),
		records: make(map[targetKey]map[string]string),
	}
}

// Close is a no-op kept for parity with the SQL stores.
func (s *Store) Close() error { return nil }

func (s *Store) Create(_ context.Context, l *core.LinkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[l.ID]; ok {
		return core.ErrConflict
	}
	if l.Token != "" {
		if _, ok := s.tokens[l.Token]; ok {
			return core.ErrConflict
		}
		s.tokens[l.Token] = l.ID
	}
	s.seq++
	s.links[l.ID] = &entry{seq: s.seq, link: clone(l)}
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*core.LinkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.links[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	l := clone(&e.link)
	return &l, nil
}

func (s *Store) GetByToken(ctx context.Context, token string) (*core.LinkRecord, error) {
	s.mu.RLock()
	id, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return nil, core.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *Store) LatestForTarget(_ context.Context, targetType, targetName string) (*core.LinkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *entry
	for _, e := range s.links {
		if e.link.TargetType != targetType || e.link.TargetName != targetName {
			continue
		}
		if best == nil || newer(e, best) {
			best = e
		}
	}
	if best == nil {
		return nil, core.ErrNotFound
	}
	l := clone(&best.link)
	return &l, nil
}

func newer(a, b *entry) bool {
	if !a.link.CreatedAt.Equal(b.link.CreatedAt) {
		return a.link.CreatedAt.After(b.link.CreatedAt)
	}
	return a.seq > b.seq
}

func (s *Store) SetStatus(_ context.Context, id string, status core.Status, from ...core.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.links[id]
	if !ok {
		return false, core.ErrNotFound
	}
	if len(from) > 0 && !contains(from, e.link.Status) {
		return false, nil
	}
	e.link.Status = status
	return true, nil
}

func (s *Store) RecordScan(_ context.Context, sc *core.ScanLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.links[sc.LinkID]
	if !ok {
		return core.ErrNotFound
	}
	at := sc.ScannedAt
	e.link.ScanCount++
	e.link.LastScannedAt = &at
	e.link.LastScannedBy = sc.ScannedBy
	e.link.LastScanIP = sc.IP
	cp := *sc
	s.scans[sc.LinkID] = append(s.scans[sc.LinkID], &cp)
	return nil
}

func (s *Store) ListScans(_ context.Context, linkID string, limit int) ([]*core.ScanLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.scans[linkID]
	out := make([]*core.ScanLogEntry, 0, len(all))
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) QueryByStatusAndExpiry(_ context.Context, status core.Status, before time.Time) ([]*core.LinkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.LinkRecord
	for _, e := range s.links {
		if e.link.Status != status || e.link.ExpiresAt == nil || !e.link.ExpiresAt.Before(before) {
			continue
		}
		l := clone(&e.link)
		out = append(out, &l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return out, nil
}

// PutRecord inserts or replaces a target record and its fields.
func (s *Store) PutRecord(_ context.Context, targetType, name string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	s.records[targetKey{targetType, name}] = cp
	return nil
}

func (s *Store) Exists(_ context.Context, targetType, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[targetKey{targetType, name}]
	return ok, nil
}

func (s *Store) ReadField(_ context.Context, targetType, name, field string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.records[targetKey{targetType, name}]
	if !ok {
		return "", false, core.ErrTargetNotFound
	}
	v, ok := fields[field]
	return v, ok, nil
}

// clone copies l deeply enough that callers cannot mutate stored state.
func clone(l *core.LinkRecord) core.LinkRecord {
	cp := *l
	if l.ExtraParams != nil {
		cp.ExtraParams = make(map[string]string, len(l.ExtraParams))
		for k, v := range l.ExtraParams {
			cp.ExtraParams[k] = v
		}
	}
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		cp.ExpiresAt = &t
	}
	if l.LastScannedAt != nil {
		t := *l.LastScannedAt
		cp.LastScannedAt = &t
	}
	return cp
}

func contains(set []core.Status, s core.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

var (
	_ core.Store   = (*Store)(nil)
	_ core.Targets = (*Store)(nil)
)
