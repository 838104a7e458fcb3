package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"RoundPull/internal/repository"
	icache "RoundPull/internal/service/cache"
	"RoundPull/internal/services/ensemble"
	"RoundPull/internal/usecase"
	pkgcache "RoundPull/pkg/cache"
	xhttp "RoundPull/pkg/http"
	"RoundPull/pkg/metrics"
)

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type stalledCollector struct{ stalled bool }

func (s stalledCollector) Status() usecase.CollectorStatus {
	return usecase.CollectorStatus{Running: true, Stalled: s.stalled}
}

func newTestServer(t *testing.T, collector CollectorStatus) *echo.Echo {
	t.Helper()
	ledger := repository.NewFileLedgerStore(filepath.Join(t.TempDir(), "ledger.json"))
	rec := metrics.New(prometheus.NewRegistry())
	eng := ensemble.NewEngine(ensemble.DefaultConfig())
	proc := usecase.NewRoundProcessor(eng, ledger, nil, nil, rec, usecase.BackendNone, nil)

	mc := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	sessions := usecase.NewSessionService(eng, repository.NewCacheSessionStore(mc, time.Hour), 5, nil)

	e := echo.New()
	NewRoundsEchoHandler(nil, proc, collector, icache.NewTTLCache()).RegisterRoutes(e)
	NewSessionsEchoHandler(nil, sessions).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestAddRoundAndHistory(t *testing.T) {
	e := newTestServer(t, nil)

	for i, raw := range []string{"1", "7", "3"} {
		body := `{"round_id":"` + []string{"100", "101", "102"}[i] + `","raw_value":` + raw + `}`
		rec, _ := do(t, e, http.MethodPost, "/api/rounds", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("add %d: status %d body %s", i, rec.Code, rec.Body.String())
		}
	}

	rec, _ := do(t, e, http.MethodPost, "/api/rounds", `{"round_id":"101","raw_value":7}`)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), xhttp.CodeDuplicateRound) {
		t.Fatalf("duplicate status = %d body %s", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, e, http.MethodPost, "/api/rounds", `{"round_id":"103","raw_value":11}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range status = %d", rec.Code)
	}
	rec, _ = do(t, e, http.MethodPost, "/api/rounds", `{"round_id":"103"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing raw status = %d", rec.Code)
	}

	rec, env := do(t, e, http.MethodGet, "/api/history?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var list struct {
		Rows []struct {
			RoundID string `json:"round_id"`
			Label   string `json:"label"`
		} `json:"rows"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 3 || len(list.Rows) != 2 || list.Rows[0].RoundID != "101" || list.Rows[1].Label != "Low" {
		t.Fatalf("history = %+v", list)
	}

	// cached response is served byte for byte
	rec2, _ := do(t, e, http.MethodGet, "/api/history?limit=2", "")
	if rec2.Body.String() != rec.Body.String() {
		t.Fatalf("cached history differs")
	}

	rec, _ = do(t, e, http.MethodDelete, "/api/history", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", rec.Code)
	}
	_, env = do(t, e, http.MethodGet, "/api/history?limit=2", "")
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 0 || len(list.Rows) != 0 {
		t.Fatalf("history after clear = %+v", list)
	}
}

func TestPredictCalibratingAndValidation(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := do(t, e, http.MethodGet, "/api/predict?level=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("predict status = %d", rec.Code)
	}
	var p struct {
		Level       int  `json:"level"`
		Calibrating bool `json:"calibrating"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Level != 2 || !p.Calibrating {
		t.Fatalf("prediction = %+v", p)
	}

	rec, _ = do(t, e, http.MethodGet, "/api/predict?level=21", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("level 21 status = %d", rec.Code)
	}
}

func TestPredictRateLimited(t *testing.T) {
	e := newTestServer(t, nil)
	limited := false
	for i := 0; i < predictBurst+5; i++ {
		rec, _ := do(t, e, http.MethodGet, "/api/predict", "")
		if rec.Code == http.StatusTooManyRequests {
			if rec.Header().Get("Retry-After") == "" {
				t.Fatalf("missing Retry-After")
			}
			limited = true
			break
		}
	}
	if !limited {
		t.Fatalf("expected 429 after burst")
	}
}

func TestHealth(t *testing.T) {
	rec, _ := do(t, newTestServer(t, stalledCollector{}), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}
	rec, _ = do(t, newTestServer(t, stalledCollector{stalled: true}), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("stalled status = %d", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := do(t, e, http.MethodPost, "/api/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("open status = %d", rec.Code)
	}
	var sess struct {
		ID    string `json:"id"`
		Level int    `json:"level"`
	}
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec, _ = do(t, e, http.MethodPost, "/api/sessions/"+sess.ID+"/settle", `{"raw_value":3}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("settle without prediction status = %d", rec.Code)
	}

	rec, _ = do(t, e, http.MethodPost, "/api/sessions/"+sess.ID+"/predict", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("predict status = %d", rec.Code)
	}
	rec, env = do(t, e, http.MethodPost, "/api/sessions/"+sess.ID+"/settle", `{"raw_value":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("settle status = %d body %s", rec.Code, rec.Body.String())
	}
	var st struct {
		Won     bool `json:"won"`
		Session struct {
			Level int `json:"level"`
		} `json:"session"`
	}
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if (st.Won && st.Session.Level != 1) || (!st.Won && st.Session.Level != 2) {
		t.Fatalf("settlement = %+v", st)
	}

	rec, _ = do(t, e, http.MethodDelete, "/api/sessions/"+sess.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("close status = %d", rec.Code)
	}
	rec, _ = do(t, e, http.MethodGet, "/api/sessions/"+sess.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after close status = %d", rec.Code)
	}
	rec, _ = do(t, e, http.MethodGet, "/api/sessions/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}
