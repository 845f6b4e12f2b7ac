package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/snarg/np-engine/internal/database"
	"github.com/snarg/np-engine/internal/httpheaders"
	"github.com/snarg/np-engine/internal/mapping"
	"github.com/snarg/np-engine/internal/poller"
)

type ConnectionsHandler struct {
	db *database.DB
}

type connectionRequest struct {
	StationID           uuid.UUID      `json:"station_id"`
	PayloadMappingID    *uuid.UUID     `json:"payload_mapping_id"`
	Name                string         `json:"name"`
	ConnectionType      string         `json:"connection_type"`
	URL                 string         `json:"url"`
	PollIntervalSeconds int            `json:"poll_interval_seconds"`
	HeadersJSON         map[string]any `json:"headers_json"`
	Enabled             bool           `json:"enabled"`
	UseDurationPolling  bool           `json:"use_duration_polling"`
}

func (req *connectionRequest) validate() string {
	if req.StationID == uuid.Nil {
		return "station_id is required"
	}
	if strings.TrimSpace(req.Name) == "" {
		return "name is required"
	}
	if !database.IsValidConnectionType(req.ConnectionType) {
		return "connection_type must be one of: " + strings.Join(database.ValidConnectionTypes, ", ")
	}
	if strings.TrimSpace(req.URL) == "" {
		return "url is required"
	}
	if req.PollIntervalSeconds < 1 {
		return "poll_interval_seconds must be >= 1"
	}
	return ""
}

func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	stationID, err := QueryUUID(r, "station_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	conns, err := h.db.ListConnections(r.Context(), stationID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to list connections")
		return
	}
	if conns == nil {
		conns = []database.Connection{}
	}
	WriteJSON(w, http.StatusOK, conns)
}

func (h *ConnectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid connection id")
		return
	}
	conn, err := h.db.GetConnection(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "connection not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load connection")
		return
	}
	WriteJSON(w, http.StatusOK, conn)
}

func (h *ConnectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if _, err := h.db.GetStation(r.Context(), req.StationID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			WriteError(w, http.StatusBadRequest, "station does not exist")
			return
		}
		WriteError(w, http.StatusInternalServerError, "failed to verify station")
		return
	}

	conn := &database.Connection{
		ID:                  uuid.New(),
		StationID:           req.StationID,
		PayloadMappingID:    req.PayloadMappingID,
		Name:                req.Name,
		ConnectionType:      strings.ToLower(req.ConnectionType),
		URL:                 req.URL,
		PollIntervalSeconds: req.PollIntervalSeconds,
		HeadersJSON:         httpheaders.NormalizeForStorage(req.ConnectionType, req.HeadersJSON),
		Enabled:             req.Enabled,
		UseDurationPolling:  req.UseDurationPolling,
		CreatedAt:           time.Now().UTC(),
	}
	conn.UpdatedAt = conn.CreatedAt

	if err := h.db.InsertConnection(r.Context(), conn); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to create connection")
		return
	}
	WriteJSON(w, http.StatusCreated, conn)
}

func (h *ConnectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid connection id")
		return
	}
	var req connectionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}

	conn := &database.Connection{
		ID:                  id,
		StationID:           req.StationID,
		PayloadMappingID:    req.PayloadMappingID,
		Name:                req.Name,
		ConnectionType:      strings.ToLower(req.ConnectionType),
		URL:                 req.URL,
		PollIntervalSeconds: req.PollIntervalSeconds,
		HeadersJSON:         httpheaders.NormalizeForStorage(req.ConnectionType, req.HeadersJSON),
		Enabled:             req.Enabled,
		UseDurationPolling:  req.UseDurationPolling,
	}
	err = h.db.UpdateConnection(r.Context(), conn)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "connection not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to update connection")
		return
	}

	updated, err := h.db.GetConnection(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load connection")
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid connection id")
		return
	}
	err = h.db.DeleteConnection(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "connection not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to delete connection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectionsHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *ConnectionsHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *ConnectionsHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid connection id")
		return
	}
	err = h.db.SetConnectionEnabled(r.Context(), id, enabled)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "connection not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to update connection")
		return
	}
	conn, err := h.db.GetConnection(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load connection")
		return
	}
	WriteJSON(w, http.StatusOK, conn)
}

// testResponse reports a one-off fetch without touching polling state or the
// event log.
type testResponse struct {
	HTTPStatus      int        `json:"http_status"`
	ContentType     *string    `json:"content_type"`
	RawPayload      any        `json:"raw_payload"`
	Artist          *string    `json:"artist"`
	Title           *string    `json:"title"`
	Album           *string    `json:"album"`
	ReportedAt      *time.Time `json:"reported_at"`
	DurationSeconds *int64     `json:"duration_seconds"`
}

// Test performs a single fetch-and-extract against the connection's URL.
// Nothing is persisted; websocket connections cannot be tested this way.
func (h *ConnectionsHandler) Test(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid connection id")
		return
	}
	conn, err := h.db.GetConnection(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "connection not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load connection")
		return
	}
	if mapping.IsWSType(conn.ConnectionType) {
		WriteError(w, http.StatusBadRequest, "websocket connections cannot be test-polled")
		return
	}

	var m *mapping.Mapping
	if conn.PayloadMappingID != nil {
		pm, err := h.db.GetMapping(r.Context(), *conn.PayloadMappingID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			WriteError(w, http.StatusInternalServerError, "failed to load mapping")
			return
		}
		if pm != nil {
			m = mapping.FromObject(pm.MappingJSON)
		}
	}

	result, err := poller.FetchAndParse(r.Context(), conn, m)
	if err != nil {
		WriteErrorDetail(w, http.StatusBadGateway, "fetch failed", err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, testResponse{
		HTTPStatus:      result.Status,
		ContentType:     result.ContentType,
		RawPayload:      result.RawPayload,
		Artist:          result.Fields.Artist,
		Title:           result.Fields.Title,
		Album:           result.Fields.Album,
		ReportedAt:      result.Fields.ReportedAt,
		DurationSeconds: result.Fields.DurationSeconds,
	})
}

type mappingRequest struct {
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	MappingJSON map[string]any `json:"mapping_json"`
}

func (req *mappingRequest) validate() string {
	if strings.TrimSpace(req.Name) == "" {
		return "name is required"
	}
	if req.MappingJSON == nil {
		return "mapping_json is required"
	}
	return ""
}

func (h *ConnectionsHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.db.ListMappings(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to list mappings")
		return
	}
	if mappings == nil {
		mappings = []database.PayloadMapping{}
	}
	WriteJSON(w, http.StatusOK, mappings)
}

func (h *ConnectionsHandler) GetMapping(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid mapping id")
		return
	}
	m, err := h.db.GetMapping(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "mapping not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load mapping")
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

func (h *ConnectionsHandler) CreateMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}

	m := &database.PayloadMapping{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		MappingJSON: req.MappingJSON,
		CreatedAt:   time.Now().UTC(),
	}
	m.UpdatedAt = m.CreatedAt

	if err := h.db.InsertMapping(r.Context(), m); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to create mapping")
		return
	}
	WriteJSON(w, http.StatusCreated, m)
}

func (h *ConnectionsHandler) UpdateMapping(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid mapping id")
		return
	}
	var req mappingRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}

	m := &database.PayloadMapping{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		MappingJSON: req.MappingJSON,
	}
	err = h.db.UpdateMapping(r.Context(), m)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "mapping not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to update mapping")
		return
	}

	updated, err := h.db.GetMapping(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load mapping")
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

func (h *ConnectionsHandler) DeleteMapping(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid mapping id")
		return
	}
	err = h.db.DeleteMapping(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "mapping not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to delete mapping")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
