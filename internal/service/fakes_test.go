package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/port"
)

// --- Contact and lead-source lookups ---

type mockContacts struct {
	emails   map[string]string
	phones   map[string]string
	err      error
	mu       sync.Mutex
	queries  int
	lastEmls []string
}

func (m *mockContacts) ExistingEmails(_ context.Context, emails []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	m.lastEmls = emails
	return pick(m.emails, emails), m.err
}

func (m *mockContacts) ExistingPhones(_ context.Context, phones []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	return pick(m.phones, phones), m.err
}

func pick(all map[string]string, keys []string) map[string]string {
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out
}

type mockLeadSources struct {
	ids     map[string]string
	err     error
	lookups []string
}

func (m *mockLeadSources) FindLeadSource(_ context.Context, value, _ string) (*domain.LeadSource, error) {
	m.lookups = append(m.lookups, value)
	if m.err != nil {
		return nil, m.err
	}
	id, ok := m.ids[value]
	if !ok {
		return nil, nil
	}
	return &domain.LeadSource{Value: value, ID: id}, nil
}

// --- In-memory import store ---

// write is one inserted row in the fake store.
type write struct {
	table     string
	profileID string
}

type memStore struct {
	leadSources  map[string]string
	failProfile  map[string]error // by first name
	failEmail    map[string]error // by address
	zeroAffected map[string]bool  // by first name
	beginErr     error
	commitErr    error

	committed  []write
	commits    int
	rollbacks  int
	profileSeq int
}

// nextID hands out sequential profile ids: p-1, p-2, ...
func (s *memStore) nextID() string {
	s.profileSeq++
	return fmt.Sprintf("p-%d", s.profileSeq)
}

func newMemStore(leadSources map[string]string) *memStore {
	return &memStore{
		leadSources:  leadSources,
		failProfile:  map[string]error{},
		failEmail:    map[string]error{},
		zeroAffected: map[string]bool{},
	}
}

func (s *memStore) BeginImport(_ context.Context) (port.ImportTx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &memTx{store: s, savepoints: map[string]int{}}, nil
}

func (s *memStore) count(table, profileID string) int {
	n := 0
	for _, w := range s.committed {
		if w.table == table && (profileID == "" || w.profileID == profileID) {
			n++
		}
	}
	return n
}

type memTx struct {
	store      *memStore
	writes     []write
	savepoints map[string]int
}

func (t *memTx) Savepoint(_ context.Context, name string) error {
	t.savepoints[name] = len(t.writes)
	return nil
}

func (t *memTx) RollbackTo(_ context.Context, name string) error {
	n, ok := t.savepoints[name]
	if !ok {
		return fmt.Errorf("unknown savepoint %s", name)
	}
	t.writes = t.writes[:n]
	return nil
}

func (t *memTx) ReleaseSavepoint(_ context.Context, name string) error {
	delete(t.savepoints, name)
	return nil
}

func (t *memTx) InsertProfile(_ context.Context, p *domain.ProfileInsert) (int64, error) {
	if err := t.store.failProfile[p.FirstName]; err != nil {
		return 0, err
	}
	if t.store.zeroAffected[p.FirstName] {
		return 0, nil
	}
	t.writes = append(t.writes, write{table: "profile", profileID: p.ID})
	return 1, nil
}

func (t *memTx) FindProfileID(_ context.Context, id string) (string, error) {
	for _, writes := range [][]write{t.store.committed, t.writes} {
		for _, w := range writes {
			if w.table == "profile" && w.profileID == id {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("profile %s not found", id)
}

func (t *memTx) InsertEmail(_ context.Context, profileID, address string, _ domain.Audit) error {
	if err := t.store.failEmail[address]; err != nil {
		return err
	}
	t.writes = append(t.writes, write{table: "profile_email", profileID: profileID})
	return nil
}

func (t *memTx) InsertPhone(_ context.Context, profileID, _, _ string, _ domain.Audit) error {
	t.writes = append(t.writes, write{table: "profile_phone", profileID: profileID})
	return nil
}

func (t *memTx) FindLeadSourceID(_ context.Context, value, _ string) (string, bool, error) {
	id, ok := t.store.leadSources[value]
	return id, ok, nil
}

func (t *memTx) InsertHit(_ context.Context, h *domain.HitInsert) error {
	t.writes = append(t.writes, write{table: "hit", profileID: h.ProfileID})
	return nil
}

func (t *memTx) FindHitID(_ context.Context, profileID, _ string, _ time.Time) (string, error) {
	return "h-" + profileID, nil
}

func (t *memTx) InsertFollowup(_ context.Context, f *domain.FollowupInsert) error {
	t.writes = append(t.writes, write{table: "followup", profileID: f.ProfileID})
	return nil
}

func (t *memTx) InsertProductLead(_ context.Context, pl *domain.ProductLeadInsert) error {
	t.writes = append(t.writes, write{table: "profile_product_lead", profileID: pl.ProfileID})
	return nil
}

func (t *memTx) InsertNote(_ context.Context, _ string, _ domain.Audit) error {
	t.writes = append(t.writes, write{table: "post_it"})
	return nil
}

func (t *memTx) FindNoteID(_ context.Context, comment, _ string) (string, error) {
	return "n-" + comment, nil
}

func (t *memTx) LinkNote(_ context.Context, profileID, _ string) error {
	t.writes = append(t.writes, write{table: "profile.post_it", profileID: profileID})
	return nil
}

func (t *memTx) InsertSatellite(_ context.Context, st domain.SatelliteTable, profileID string, _ domain.Audit) error {
	t.writes = append(t.writes, write{table: st.Table, profileID: profileID})
	return nil
}

func (t *memTx) Commit() error {
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	t.store.committed = append(t.store.committed, t.writes...)
	t.store.commits++
	return nil
}

func (t *memTx) Rollback() error {
	t.writes = nil
	t.store.rollbacks++
	return nil
}

// --- Publisher ---

type mockPublisher struct {
	events []*domain.ImportEvent
	err    error
}

func (m *mockPublisher) PublishReport(_ context.Context, evt *domain.ImportEvent) error {
	m.events = append(m.events, evt)
	return m.err
}
