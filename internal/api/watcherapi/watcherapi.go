// Package watcherapi exposes shipment CRUD, settings and the on-demand
// check trigger over HTTP.
package watcherapi

import (
	"encoding/json"
	"net/http"

	"github.com/BearBump/glswatch/internal/models"
	"github.com/BearBump/glswatch/internal/services/shipments"
	"github.com/go-chi/chi/v5"
)

// Triggerer queues a poll cycle; the watcher's Trigger is non-blocking.
type Triggerer interface {
	Trigger()
}

type API struct {
	svc     *shipments.Service
	trigger Triggerer
}

func New(svc *shipments.Service, trigger Triggerer) *API {
	return &API{svc: svc, trigger: trigger}
}

func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/state", a.getState)
	r.Post("/shipments", a.addShipment)
	r.Delete("/shipments/{id}", a.removeShipment)
	r.Post("/shipments/{id}/archive-toggle", a.toggleArchive)
	r.Post("/check", a.checkNow)
	r.Put("/settings/interval", a.setInterval)
	r.Put("/settings/auto-archive", a.setAutoArchive)
	return r
}

func (a *API) getState(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.State(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type addShipmentRequest struct {
	Description    string `json:"description"`
	TrackingNumber string `json:"trackingNumber"`
	PostalCode     string `json:"postalCode"`
}

func (a *API) addShipment(w http.ResponseWriter, r *http.Request) {
	var req addShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tr, err := a.svc.AddShipment(r.Context(), models.ShipmentCreateInput{
		Description:    req.Description,
		TrackingNumber: req.TrackingNumber,
		PostalCode:     req.PostalCode,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Свежедобавленную посылку проверяем сразу, не дожидаясь таймера.
	if a.trigger != nil {
		a.trigger.Trigger()
	}
	writeJSON(w, http.StatusCreated, tr)
}

func (a *API) removeShipment(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.RemoveShipment(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) toggleArchive(w http.ResponseWriter, r *http.Request) {
	tr, err := a.svc.ToggleArchive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (a *API) checkNow(w http.ResponseWriter, r *http.Request) {
	if a.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, errNotWired)
		return
	}
	a.trigger.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
}

type setIntervalRequest struct {
	Minutes int `json:"minutes"`
}

func (a *API) setInterval(w http.ResponseWriter, r *http.Request) {
	var req setIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	minutes, err := a.svc.SetInterval(r.Context(), req.Minutes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"minutes": minutes})
}

type setAutoArchiveRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *API) setAutoArchive(w http.ResponseWriter, r *http.Request) {
	var req setAutoArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.svc.SetAutoArchive(r.Context(), req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

type apiError struct{ msg string }

func (e apiError) Error() string { return e.msg }

var errNotWired = apiError{msg: "watcher not wired"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
