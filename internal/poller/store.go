package poller

import (
	"context"

	"github.com/google/uuid"
	"github.com/snarg/np-engine/internal/database"
)

// Store is the persistence contract the engine needs. *database.DB
// implements it; tests substitute an in-memory fake. All operations are
// single statements — the engine never requires multi-row transactions.
type Store interface {
	ListEnabledConnections(ctx context.Context) ([]database.Connection, error)
	GetConnection(ctx context.Context, id uuid.UUID) (*database.Connection, error)
	GetMapping(ctx context.Context, id uuid.UUID) (*database.PayloadMapping, error)
	LatestEventForConnection(ctx context.Context, connectionID uuid.UUID) (*database.RawNowPlayingEvent, error)
	InsertEvent(ctx context.Context, e database.RawNowPlayingEvent) error
	UpdateConnectionPollingState(ctx context.Context, id uuid.UUID, u database.PollingStateUpdate) error
	UpdateConnectionStatus(ctx context.Context, id uuid.UUID, status *string, lastError *string) error
}

var _ Store = (*database.DB)(nil)
