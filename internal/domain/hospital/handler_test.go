package hospital

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*Handler, *mockRepo, *echo.Echo) {
	t.Helper()
	repo := newMockRepo()
	h := NewHandler(newTestService(repo))
	e := echo.New()
	return h, repo, e
}

func TestHandler_Nearby(t *testing.T) {
	h, repo, e := newTestHandler(t)
	seedHospital(t, repo, "near", 0.05, 0, 5, 0)

	req := httptest.NewRequest(http.MethodGet, "/?lat=0&lon=0&radius_km=20&bed_type=general", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Nearby(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "near") {
		t.Error("expected hospital in response")
	}
}

func TestHandler_Nearby_InvalidCoordinates(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/?lat=abc&lon=0", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Nearby(c); err == nil {
		t.Error("expected error for malformed latitude")
	}
}

func TestHandler_CreateHospital(t *testing.T) {
	h, _, e := newTestHandler(t)
	body := `{"name":"City Care","city":"Pune","total_general_beds":10,"available_general_beds":10}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateHospital(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_CreateHospital_MissingName(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"city":"Pune"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateHospital(c)
	if err == nil {
		t.Fatal("expected error for missing name")
	}
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetHospital_NotFound(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetHospital(c)
	if err == nil {
		t.Fatal("expected error for unknown hospital")
	}
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_DeleteHospital(t *testing.T) {
	h, repo, e := newTestHandler(t)
	hosp := seedHospital(t, repo, "h", 0, 0, 1, 0)

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(hosp.ID.String())

	if err := h.DeleteHospital(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
