package token

import (
	"context"
	"sync"
)

// MemStore is a map-backed Store. It copies entities on the way in and out
// so callers can never alias engine state. Used by tests and cmd/simulate.
type MemStore struct {
	mu      sync.RWMutex
	doctors map[string]*Doctor
	slots   map[string]*TimeSlot
	tokens  map[string]*Token
	events  []EventLog
	order   []string // doctor insertion order for stable listing
}

func NewMemStore() *MemStore {
	return &MemStore{
		doctors: make(map[string]*Doctor),
		slots:   make(map[string]*TimeSlot),
		tokens:  make(map[string]*Token),
	}
}

func copyDoctor(d *Doctor) *Doctor {
	c := *d
	c.SlotIDs = append([]string(nil), d.SlotIDs...)
	return &c
}

func copySlot(s *TimeSlot) *TimeSlot {
	c := *s
	c.Allocated = append([]string(nil), s.Allocated...)
	c.Waitlist = append([]string(nil), s.Waitlist...)
	return &c
}

func copyToken(t *Token) *Token {
	c := *t
	if t.AllocatedAt != nil {
		at := *t.AllocatedAt
		c.AllocatedAt = &at
	}
	return &c
}

func (m *MemStore) GetDoctor(_ context.Context, id string) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return copyDoctor(d), nil
}

func (m *MemStore) SaveDoctor(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[d.ID]; !ok {
		m.order = append(m.order, d.ID)
	}
	m.doctors[d.ID] = copyDoctor(d)
	return nil
}

func (m *MemStore) ListDoctors(_ context.Context) ([]*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Doctor, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, copyDoctor(m.doctors[id]))
	}
	return out, nil
}

func (m *MemStore) GetSlot(_ context.Context, id string) (*TimeSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return copySlot(s), nil
}

func (m *MemStore) SaveSlot(_ context.Context, s *TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[s.ID] = copySlot(s)
	return nil
}

func (m *MemStore) GetToken(_ context.Context, id string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return copyToken(t), nil
}

func (m *MemStore) SaveToken(_ context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = copyToken(t)
	return nil
}

func (m *MemStore) ListTokens(_ context.Context, f TokenFilter) ([]*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Token
	for _, t := range m.tokens {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.DoctorID != "" && t.DoctorID != f.DoctorID {
			continue
		}
		out = append(out, copyToken(t))
	}
	return out, nil
}

func (m *MemStore) DeleteToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return ErrTokenNotFound
	}
	delete(m.tokens, id)
	return nil
}

func (m *MemStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

// Events returns a snapshot of the event log, oldest first.
func (m *MemStore) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EventLog(nil), m.events...)
}
