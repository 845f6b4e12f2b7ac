package poller

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/snarg/np-engine/internal/database"
)

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
	mu          sync.Mutex
	connections map[uuid.UUID]*database.Connection
	mappings    map[uuid.UUID]*database.PayloadMapping
	events      []database.RawNowPlayingEvent
	stateByID   map[uuid.UUID]database.PollingStateUpdate
	statusByID  map[uuid.UUID][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		connections: make(map[uuid.UUID]*database.Connection),
		mappings:    make(map[uuid.UUID]*database.PayloadMapping),
		stateByID:   make(map[uuid.UUID]database.PollingStateUpdate),
		statusByID:  make(map[uuid.UUID][]string),
	}
}

func (s *fakeStore) addConnection(c *database.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c.ID] = c
}

func (s *fakeStore) ListEnabledConnections(ctx context.Context) ([]database.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.Connection
	for _, c := range s.connections {
		if c.Enabled {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeStore) GetConnection(ctx context.Context, id uuid.UUID) (*database.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) GetMapping(ctx context.Context, id uuid.UUID) (*database.PayloadMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) LatestEventForConnection(ctx context.Context, connectionID uuid.UUID) (*database.RawNowPlayingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *database.RawNowPlayingEvent
	for i := range s.events {
		e := &s.events[i]
		if e.ConnectionID != connectionID {
			continue
		}
		if latest == nil || e.ObservedAt.After(latest.ObservedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *fakeStore) InsertEvent(ctx context.Context, e database.RawNowPlayingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *fakeStore) UpdateConnectionPollingState(ctx context.Context, id uuid.UUID, u database.PollingStateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateByID[id] = u
	if c, ok := s.connections[id]; ok {
		c.LastPolledAt = &u.LastPolledAt
		c.NextPollAt = &u.NextPollAt
		c.LastStatus = &u.LastStatus
		c.LastError = u.LastError
		c.ErrorBackoffSeconds = u.ErrorBackoffSeconds
		c.SameSongBackoffSeconds = u.SameSongBackoffSeconds
	}
	return nil
}

func (s *fakeStore) UpdateConnectionStatus(ctx context.Context, id uuid.UUID, status *string, lastError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status != nil {
		s.statusByID[id] = append(s.statusByID[id], *status)
	}
	if c, ok := s.connections[id]; ok {
		c.LastStatus = status
		c.LastError = lastError
	}
	return nil
}

func (s *fakeStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *fakeStore) lastState(id uuid.UUID) (database.PollingStateUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.stateByID[id]
	return u, ok
}

func (s *fakeStore) statuses(id uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statusByID[id]...)
}

var _ Store = (*fakeStore)(nil)
