// Package httpapi is the thin collaborator surface mentioned in the
// system overview: the full HTTP API, auth, and password/token flows are
// out of scope, but Store/Quota/Lifecycle need a caller other than the
// scheduler and tests to be exercised end to end. This package is
// intentionally small — it is not a stand-in for the real API.
// Grounded on control_plane/api.go's handler shape (plain net/http,
// json.NewEncoder/Decoder, a rate limiter guarding the write paths).
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/google/uuid"
	"github.com/nes-lab/shepherd-webapi/internal/lifecycle"
	"github.com/nes-lab/shepherd-webapi/internal/quota"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

// API is the thin collaborator surface. It owns Experiment and
// RequestedExecutionAt, the two fields the data model assigns to the
// (out-of-scope) API rather than the Scheduler.
type API struct {
	store         store.Store
	quota         *quota.Engine
	submitLimiter *perOwnerLimiter
}

// New wires an API over st and q. Submission is rate-limited per owner the
// way the teacher's handleSubmitJob/handleReconcileState are storm-protected.
func New(st store.Store, q *quota.Engine) *API {
	return &API{
		store:         st,
		quota:         q,
		submitLimiter: newPerOwnerLimiter(rate.Limit(5), 10),
	}
}

func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /experiments", a.handleSubmit)
	mux.HandleFunc("POST /experiments/{id}/schedule", a.handleSchedule)
	mux.HandleFunc("GET /experiments/{id}", a.handleGet)
	mux.HandleFunc("GET /users/{id}/experiments", a.handleListByOwner)
	mux.HandleFunc("GET /testbed/status", a.handleTestbedStatus)
}

type submitRequest struct {
	OwnerID    string             `json:"owner_id"`
	Experiment store.Experiment   `json:"experiment"`
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if !a.submitLimiter.allow(req.OwnerID) {
		writeError(w, http.StatusTooManyRequests, "submission rate limit exceeded for this owner")
		return
	}

	if err := a.quota.MaySubmit(r.Context(), req.OwnerID, req.Experiment.Duration); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	e := &store.WebExperiment{
		ID:         uuid.NewString(),
		OwnerID:    req.OwnerID,
		Experiment: req.Experiment,
		CreatedAt:  time.Now(),
	}
	if err := a.store.InsertExperiment(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, e)
}

func (a *API) handleSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := a.store.GetExperiment(r.Context(), id)
	if err != nil {
		writeNotFoundOr500(w, err)
		return
	}
	if !lifecycle.CanSchedule(e) {
		writeError(w, http.StatusConflict, "experiment is not in a schedulable state")
		return
	}
	if err := a.quota.MaySchedule(r.Context(), e.OwnerID, e.Experiment.Duration); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if err := a.store.ScheduleExperiment(r.Context(), id, time.Now(), e.Version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			writeError(w, http.StatusConflict, "experiment changed concurrently, retry")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := a.store.GetExperiment(r.Context(), id)
	if err != nil {
		writeNotFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*store.WebExperiment
		State lifecycle.State `json:"state"`
	}{e, lifecycle.Derive(e)})
}

func (a *API) handleListByOwner(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("id")
	experiments, err := a.store.ListExperimentsByOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, experiments)
}

func (a *API) handleTestbedStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.store.GetTestbedStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeNotFoundOr500(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
