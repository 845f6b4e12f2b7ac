// Package poller drives every enabled now-playing connection: HTTP
// transports are polled on an adaptive schedule, WebSocket transports get
// one persistent listener each. Observations flow through a deduplicating
// writer into the append-only event log.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/np-engine/internal/database"
	"github.com/snarg/np-engine/internal/mapping"
	"github.com/snarg/np-engine/internal/metrics"
)

// tickInterval is how often the supervisor re-reads the enabled set.
const tickInterval = 10 * time.Second

// Poller is the supervisor. Per-connection state lives in the store and is
// re-read every tick; the only in-memory state is the active WS set.
type Poller struct {
	store  Store
	writer *writer
	log    zerolog.Logger

	// activeWS guarantees at most one listener per WS connection.
	mu       sync.Mutex
	activeWS map[uuid.UUID]struct{}

	wg sync.WaitGroup
}

func New(store Store, log zerolog.Logger) *Poller {
	log = log.With().Str("component", "poller").Logger()
	return &Poller{
		store:    store,
		writer:   &writer{store: store, log: log},
		log:      log,
		activeWS: make(map[uuid.UUID]struct{}),
	}
}

// Run executes supervisor ticks until ctx is canceled, then waits for
// in-flight polls and listeners to observe cancellation.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info().Msg("poller supervisor starting")

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		if err := p.tick(ctx); err != nil && ctx.Err() == nil {
			p.log.Error().Err(err).Msg("supervisor tick failed")
		}

		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller supervisor stopping")
			p.wg.Wait()
			return
		case <-ticker.C:
		}
	}
}

// tick dispatches work for every enabled connection: WS listeners are
// started if absent, HTTP connections are polled when due. Dispatch is
// non-blocking; each poll runs in its own goroutine.
func (p *Poller) tick(ctx context.Context) error {
	conns, err := p.store.ListEnabledConnections(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range conns {
		conn := conns[i]

		if mapping.IsWSType(conn.ConnectionType) {
			p.ensureWSListener(ctx, conn)
			continue
		}

		if !shouldPoll(&conn, now) {
			continue
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.pollConnection(ctx, &conn); err != nil && ctx.Err() == nil {
				p.log.Error().Err(err).
					Stringer("connection_id", conn.ID).
					Str("name", conn.Name).
					Msg("poll failed")
			}
		}()
	}

	return nil
}

// ensureWSListener starts a listener for the connection unless one is
// already running.
func (p *Poller) ensureWSListener(ctx context.Context, conn database.Connection) {
	p.mu.Lock()
	if _, running := p.activeWS[conn.ID]; running {
		p.mu.Unlock()
		return
	}
	p.activeWS[conn.ID] = struct{}{}
	p.mu.Unlock()
	metrics.ActiveWSListeners.Inc()

	log := p.log.With().Stringer("connection_id", conn.ID).Str("name", conn.Name).Logger()
	listener := &wsListener{store: p.store, writer: p.writer, log: log}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.activeWS, conn.ID)
			p.mu.Unlock()
			metrics.ActiveWSListeners.Dec()
		}()

		log.Info().Str("url", conn.URL).Msg("ws listener starting")
		if err := listener.Run(ctx, &conn); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("ws listener failed")
		}
	}()
}

// pollConnection runs one fetch-and-parse and records the outcome.
func (p *Poller) pollConnection(ctx context.Context, conn *database.Connection) error {
	now := time.Now().UTC()

	m, err := loadMapping(ctx, p.store, conn)
	if err != nil {
		return err
	}

	result, err := FetchAndParse(ctx, conn, m)
	if err != nil {
		p.log.Warn().Err(err).
			Stringer("connection_id", conn.ID).
			Str("name", conn.Name).
			Msg("fetch failed")
		return p.writer.recordFetchFailure(ctx, conn, now, err)
	}

	return p.writer.Write(ctx, conn, result, now)
}

// loadMapping resolves the connection's payload mapping, if any. A mapping
// deleted out from under a connection degrades to best-effort extraction.
func loadMapping(ctx context.Context, store Store, conn *database.Connection) (*mapping.Mapping, error) {
	if conn.PayloadMappingID == nil {
		return nil, nil
	}
	pm, err := store.GetMapping(ctx, *conn.PayloadMappingID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return mapping.FromObject(pm.MappingJSON), nil
}
