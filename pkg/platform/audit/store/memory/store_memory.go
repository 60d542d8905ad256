package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	id "cradle/pkg/domain"
	audit "cradle/pkg/platform/audit"
)

// InMemoryStore implements audit.Logger against process memory. It mirrors
// the postgres store's tenant scoping and ordering contract so service and
// handler tests exercise the same query semantics without a database.
type InMemoryStore struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[id.TenantID][]record
}

// record pairs an entry with its insertion sequence. The sequence breaks
// ordering ties between entries sharing a timestamp, matching the durable
// store's bigserial column.
type record struct {
	entry audit.Entry
	seq   uint64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.TenantID][]record)}
}

// Clear drops all entries. Tests only.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[id.TenantID][]record)
	s.seq = 0
}

// Log appends one entry under its tenant. The stored copy is snapshotted so
// later mutation of the caller's value maps cannot rewrite history.
func (s *InMemoryStore) Log(_ context.Context, entry audit.Entry) (uuid.UUID, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := entry.Validate(); err != nil {
		return uuid.Nil, err
	}

	entry.OldValues = cloneValues(entry.OldValues)
	entry.NewValues = cloneValues(entry.NewValues)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries[entry.TenantID] = append(s.entries[entry.TenantID], record{entry: entry, seq: s.seq})
	return entry.ID, nil
}

// Query returns the tenant's matching entries, newest first. Entries from
// other tenants are unreachable regardless of filter values.
func (s *InMemoryStore) Query(_ context.Context, tenantID id.TenantID, filter audit.Filter) ([]audit.Entry, error) {
	if tenantID.IsZero() {
		return nil, fmt.Errorf("%w: tenant id is required", audit.ErrInvalidFilter)
	}
	f, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]record, 0, len(s.entries[tenantID]))
	for _, rec := range s.entries[tenantID] {
		if matches(rec.entry, f) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].entry.Timestamp.Equal(matched[j].entry.Timestamp) {
			return matched[i].seq > matched[j].seq
		}
		return matched[i].entry.Timestamp.After(matched[j].entry.Timestamp)
	})

	if f.Offset >= len(matched) {
		return []audit.Entry{}, nil
	}
	matched = matched[f.Offset:]
	if len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]audit.Entry, 0, len(matched))
	for _, rec := range matched {
		e := rec.entry
		e.OldValues = cloneValues(e.OldValues)
		e.NewValues = cloneValues(e.NewValues)
		out = append(out, e)
	}
	return out, nil
}

func matches(e audit.Entry, f audit.Filter) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	return true
}

func cloneValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	cloned := make(map[string]any, len(values))
	for k, v := range values {
		cloned[k] = v
	}
	return cloned
}
