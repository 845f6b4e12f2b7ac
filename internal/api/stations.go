package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/snarg/np-engine/internal/database"
)

type StationsHandler struct {
	db *database.DB
}

type stationRequest struct {
	Name       string  `json:"name"`
	Callsign   *string `json:"callsign"`
	WebsiteURL *string `json:"website_url"`
}

func (req *stationRequest) validate() string {
	if strings.TrimSpace(req.Name) == "" {
		return "name is required"
	}
	return ""
}

func (h *StationsHandler) List(w http.ResponseWriter, r *http.Request) {
	stations, err := h.db.ListStations(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to list stations")
		return
	}
	if stations == nil {
		stations = []database.Station{}
	}
	WriteJSON(w, http.StatusOK, stations)
}

func (h *StationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid station id")
		return
	}
	station, err := h.db.GetStation(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "station not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load station")
		return
	}
	WriteJSON(w, http.StatusOK, station)
}

func (h *StationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req stationRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}

	station := &database.Station{
		ID:         uuid.New(),
		Name:       req.Name,
		Callsign:   req.Callsign,
		WebsiteURL: req.WebsiteURL,
		CreatedAt:  time.Now().UTC(),
	}
	station.UpdatedAt = station.CreatedAt

	if err := h.db.InsertStation(r.Context(), station); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to create station")
		return
	}
	WriteJSON(w, http.StatusCreated, station)
}

func (h *StationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid station id")
		return
	}
	var req stationRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}

	station := &database.Station{
		ID:         id,
		Name:       req.Name,
		Callsign:   req.Callsign,
		WebsiteURL: req.WebsiteURL,
	}
	err = h.db.UpdateStation(r.Context(), station)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "station not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to update station")
		return
	}

	updated, err := h.db.GetStation(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load station")
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

func (h *StationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid station id")
		return
	}
	err = h.db.DeleteStation(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "station not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to delete station")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
