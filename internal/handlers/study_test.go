package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hanmadi-backend/internal/catalog"
	"hanmadi-backend/internal/middleware"
	"hanmadi-backend/internal/models"
	"hanmadi-backend/internal/progress"
	"hanmadi-backend/internal/services"
	"hanmadi-backend/internal/worker"
)

type memoryStore struct {
	snaps map[string]models.ProgressSnapshot
}

func (m *memoryStore) Load(_ context.Context, subject models.Subject, unit string) (models.ProgressSnapshot, error) {
	return m.snaps[subject.Key()+"|"+unit], nil
}

func (m *memoryStore) Save(_ context.Context, subject models.Subject, unit string, snap models.ProgressSnapshot) error {
	m.snaps[subject.Key()+"|"+unit] = snap
	return nil
}

func (m *memoryStore) RecordCardOutcome(context.Context, models.Subject, string, int, bool, bool) error {
	return nil
}

func newStudyHandler(t *testing.T) *StudyHandler {
	t.Helper()

	cat := catalog.New(map[string][]models.Card{
		"1과": {
			{Term: "안녕하세요", Translation: "hello"},
			{Term: "감사합니다", Translation: "thank you"},
		},
	})

	log := zap.NewNop()
	local := &memoryStore{snaps: make(map[string]models.ProgressSnapshot)}
	remote := &memoryStore{snaps: make(map[string]models.ProgressSnapshot)}
	saver := worker.NewSaver(1, log)
	saver.Start()
	t.Cleanup(saver.Stop)

	study := services.NewStudyService(cat, local, remote,
		progress.NewReconciler(local, remote, log), nil, saver, log)
	t.Cleanup(study.Close)
	return NewStudyHandler(cat, study)
}

func asGuest(r *http.Request, guestID string) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.SubjectKey, models.Subject{GuestID: guestID})
	return r.WithContext(ctx)
}

func withUnitParam(r *http.Request, unit string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("unit", unit)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestListUnits(t *testing.T) {
	h := newStudyHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/units", nil)
	rec := httptest.NewRecorder()
	h.ListUnits(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var body struct {
		Units []struct {
			Unit      string `json:"unit"`
			CardCount int    `json:"card_count"`
		} `json:"units"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(body.Units) != 1 || body.Units[0].Unit != "1과" || body.Units[0].CardCount != 2 {
		t.Errorf("Unexpected units payload: %+v", body.Units)
	}
}

func TestGetCardsUnknownUnit(t *testing.T) {
	h := newStudyHandler(t)

	req := withUnitParam(httptest.NewRequest(http.MethodGet, "/api/v1/catalog/units/99과/cards", nil), "99과")
	rec := httptest.NewRecorder()
	h.GetCards(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestOpenReturnsSessionView(t *testing.T) {
	h := newStudyHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/study/units/1과/open", bytes.NewBufferString(`{}`))
	req = asGuest(withUnitParam(req, "1과"), "g1")
	rec := httptest.NewRecorder()
	h.Open(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view services.SessionView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if view.Phase != "active" || view.Unit != "1과" {
		t.Errorf("Unexpected view: %+v", view)
	}
	if view.Notice == "" {
		t.Error("Expected guest notice in the response")
	}
}

func TestOpenUnknownUnitReturns404(t *testing.T) {
	h := newStudyHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/study/units/99과/open", bytes.NewBufferString(`{}`))
	req = asGuest(withUnitParam(req, "99과"), "g1")
	rec := httptest.NewRecorder()
	h.Open(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestActValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing type", `{"outcome":"mastered"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newStudyHandler(t)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/study/units/1과/actions", bytes.NewBufferString(tc.body))
			req = asGuest(withUnitParam(req, "1과"), "g1")
			rec := httptest.NewRecorder()
			h.Act(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestActRate(t *testing.T) {
	h := newStudyHandler(t)

	body := `{"type":"rate","outcome":"mastered"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/study/units/1과/actions", bytes.NewBufferString(body))
	req = asGuest(withUnitParam(req, "1과"), "g1")
	rec := httptest.NewRecorder()
	h.Act(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view services.SessionView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(view.Mastered) != 1 || view.Mastered[0] != 0 {
		t.Errorf("Expected mastered [0], got %v", view.Mastered)
	}
}

func TestOverview(t *testing.T) {
	h := newStudyHandler(t)

	req := asGuest(httptest.NewRequest(http.MethodGet, "/api/v1/study/overview", nil), "g1")
	rec := httptest.NewRecorder()
	h.Overview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var body struct {
		Units []models.UnitStats `json:"units"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(body.Units) != 1 || body.Units[0].TotalCards != 2 {
		t.Errorf("Unexpected overview payload: %+v", body.Units)
	}
}
