package api

import (
	"errors"
	"net/http"

	"github.com/snarg/np-engine/internal/database"
)

type EventsHandler struct {
	db *database.DB
}

func eventFilter(r *http.Request) (database.EventFilter, error) {
	var f database.EventFilter
	stationID, err := QueryUUID(r, "station_id")
	if err != nil {
		return f, err
	}
	connectionID, err := QueryUUID(r, "connection_id")
	if err != nil {
		return f, err
	}
	f.StationID = stationID
	f.ConnectionID = connectionID
	return f, nil
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := eventFilter(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.db.ListEvents(r.Context(), f, p.Limit, p.Offset)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []database.RawNowPlayingEvent{}
	}
	WriteJSON(w, http.StatusOK, events)
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	event, err := h.db.GetEvent(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load event")
		return
	}
	WriteJSON(w, http.StatusOK, event)
}

// Clear bulk-deletes events matching the filter. An unfiltered request
// empties the whole event log.
func (h *EventsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	f, err := eventFilter(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	deleted, err := h.db.DeleteEvents(r.Context(), f)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to delete events")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
