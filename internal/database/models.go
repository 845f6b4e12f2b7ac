package database

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Station is a broadcast source. Created and edited through the admin API;
// the engine only references it.
type Station struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Callsign   *string   `json:"callsign"`
	WebsiteURL *string   `json:"website_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Connection is one observable now-playing source attached to a station.
// The engine owns last_polled_at, next_poll_at, last_status, last_error and
// the two backoff counters; the admin API owns everything else.
type Connection struct {
	ID                     uuid.UUID      `json:"id"`
	StationID              uuid.UUID      `json:"station_id"`
	PayloadMappingID       *uuid.UUID     `json:"payload_mapping_id"`
	Name                   string         `json:"name"`
	ConnectionType         string         `json:"connection_type"`
	URL                    string         `json:"url"`
	PollIntervalSeconds    int            `json:"poll_interval_seconds"`
	HeadersJSON            map[string]any `json:"headers_json"`
	Enabled                bool           `json:"enabled"`
	UseDurationPolling     bool           `json:"use_duration_polling"`
	LastPolledAt           *time.Time     `json:"last_polled_at"`
	NextPollAt             *time.Time     `json:"next_poll_at"`
	SameSongBackoffSeconds int            `json:"same_song_backoff_seconds"`
	ErrorBackoffSeconds    int            `json:"error_backoff_seconds"`
	LastStatus             *string        `json:"last_status"`
	LastError              *string        `json:"last_error"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// PayloadMapping is a declarative field extractor shared by connections.
type PayloadMapping struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	MappingJSON map[string]any `json:"mapping_json"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// RawNowPlayingEvent is one append-only observation. Rows are inserted by
// the engine and only ever bulk-deleted by the admin API.
type RawNowPlayingEvent struct {
	ID             uuid.UUID  `json:"id"`
	StationID      uuid.UUID  `json:"station_id"`
	ConnectionID   uuid.UUID  `json:"connection_id"`
	ObservedAt     time.Time  `json:"observed_at"`
	ReportedAt     *time.Time `json:"reported_at"`
	ReportedArtist *string    `json:"reported_artist"`
	ReportedTitle  *string    `json:"reported_title"`
	ReportedAlbum  *string    `json:"reported_album"`
	RawPayload     any        `json:"raw_payload"`
	PayloadHash    string     `json:"payload_hash"`
	HTTPStatus     *int       `json:"http_status"`
	ContentType    *string    `json:"content_type"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ValidConnectionTypes is the connection_type enum, matched
// case-insensitively.
var ValidConnectionTypes = []string{"http_json", "http_xml", "http_text", "rss", "ws_json"}

// IsValidConnectionType reports whether t is one of the enum values.
func IsValidConnectionType(t string) bool {
	for _, v := range ValidConnectionTypes {
		if strings.EqualFold(t, v) {
			return true
		}
	}
	return false
}
