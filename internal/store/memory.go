package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

// Memory is an in-memory Store for development and tests.
type Memory struct {
	mu            sync.RWMutex
	nextID        int64
	jurisdictions map[int64]procure.Jurisdiction
	agencies      map[int64]procure.Agency
	opportunities map[string]procure.Opportunity
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jurisdictions: make(map[int64]procure.Jurisdiction),
		agencies:      make(map[int64]procure.Agency),
		opportunities: make(map[string]procure.Opportunity),
	}
}

// Close is a no-op.
func (m *Memory) Close() {}

func (m *Memory) Jurisdictions(_ context.Context, state string) ([]procure.Jurisdiction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []procure.Jurisdiction
	for _, j := range m.jurisdictions {
		if strings.EqualFold(j.State, state) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}

func (m *Memory) InsertJurisdiction(_ context.Context, j procure.Jurisdiction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.jurisdictions {
		if strings.EqualFold(existing.State, j.State) &&
			strings.EqualFold(existing.Name, j.Name) &&
			existing.Kind == j.Kind {
			return existing.ID, nil
		}
	}
	m.nextID++
	j.ID = m.nextID
	m.jurisdictions[j.ID] = j
	return j.ID, nil
}

func (m *Memory) AgenciesByState(_ context.Context, state string) ([]procure.Agency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []procure.Agency
	for _, a := range m.agencies {
		if strings.EqualFold(a.State, state) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}

func (m *Memory) AgencyByName(_ context.Context, state, name string) (procure.Agency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agencies {
		if strings.EqualFold(a.State, state) && strings.EqualFold(a.Name, name) {
			return a, nil
		}
	}
	return procure.Agency{}, ErrNotFound
}

func (m *Memory) InsertAgency(_ context.Context, a procure.Agency) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	m.agencies[a.ID] = a
	return a.ID, nil
}

func (m *Memory) UpdateAgencyURL(_ context.Context, id int64, url string, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agencies[id]
	if !ok {
		return ErrNotFound
	}
	a.URL = url
	a.Verified = verified
	a.UpdatedAt = time.Now()
	m.agencies[id] = a
	return nil
}

func (m *Memory) DeleteAgency(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agencies[id]; !ok {
		return ErrNotFound
	}
	delete(m.agencies, id)
	return nil
}

func (m *Memory) UpsertOpportunity(_ context.Context, o procure.Opportunity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	existing, ok := m.opportunities[o.Fingerprint]
	if ok {
		existing.Deadline = o.Deadline
		existing.TradeTags = o.TradeTags
		existing.LastSeen = now
		m.opportunities[o.Fingerprint] = existing
		return false, nil
	}
	o.FirstSeen = now
	o.LastSeen = now
	m.opportunities[o.Fingerprint] = o
	return true, nil
}

func (m *Memory) ListOpportunities(_ context.Context, state string) ([]procure.Opportunity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []procure.Opportunity
	for _, o := range m.opportunities {
		if strings.EqualFold(o.State, state) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Fingerprint < out[k].Fingerprint })
	return out, nil
}

func (m *Memory) UpdateOpportunity(_ context.Context, o procure.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.opportunities[o.Fingerprint]
	if !ok {
		return ErrNotFound
	}
	o.FirstSeen = existing.FirstSeen
	o.LastSeen = time.Now()
	m.opportunities[o.Fingerprint] = o
	return nil
}

func (m *Memory) DeleteOpportunity(_ context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.opportunities[fingerprint]; !ok {
		return ErrNotFound
	}
	delete(m.opportunities, fingerprint)
	return nil
}
