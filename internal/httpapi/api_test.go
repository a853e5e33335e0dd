package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nes-lab/shepherd-webapi/internal/quota"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

func newTestAPI(t *testing.T) (*API, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	if err := st.InsertUser(context.Background(), &store.User{ID: "u1", Email: "u1@example.org"}); err != nil {
		t.Fatal(err)
	}
	q := quota.New(st, quota.Defaults{MaxDuration: time.Hour, MaxStorage: 1 << 30})
	return New(st, q), st
}

func TestSubmitAndSchedule(t *testing.T) {
	api, _ := newTestAPI(t)
	mux := http.NewServeMux()
	api.Routes(mux)

	body, _ := json.Marshal(submitRequest{
		OwnerID:    "u1",
		Experiment: store.Experiment{Name: "demo", Duration: 10 * time.Minute},
	})
	req := httptest.NewRequest(http.MethodPost, "/experiments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created store.WebExperiment
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	scheduleReq := httptest.NewRequest(http.MethodPost, "/experiments/"+created.ID+"/schedule", nil)
	scheduleRec := httptest.NewRecorder()
	mux.ServeHTTP(scheduleRec, scheduleReq)
	if scheduleRec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", scheduleRec.Code, scheduleRec.Body.String())
	}
}

func TestSubmitRejectedOverQuota(t *testing.T) {
	api, _ := newTestAPI(t)
	mux := http.NewServeMux()
	api.Routes(mux)

	body, _ := json.Marshal(submitRequest{
		OwnerID:    "u1",
		Experiment: store.Experiment{Name: "too-long", Duration: 5 * time.Hour},
	})
	req := httptest.NewRequest(http.MethodPost, "/experiments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}
