package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mlusby/temperature-monitor/internal/api"
	"github.com/mlusby/temperature-monitor/internal/readings"
	"github.com/mlusby/temperature-monitor/internal/store"
)

func newTestServer(t *testing.T, mutate func(*Options)) http.Handler {
	t.Helper()
	// Use a unique in-memory DB per test to avoid cross-test contamination.
	dsn := "file:httpapi_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := store.New(db, "")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := api.Config{AllowOrigin: "http://localhost:3000", TableName: repo.Table(), ExposeErrorDetails: true}
	opts := Options{
		StoreReading: &api.StoreReading{Writer: &readings.Writer{Store: repo, Limits: readings.DefaultLimits()}, Config: cfg},
		GetReadings:  &api.GetReadings{Reader: &readings.Reader{Store: repo}, Config: cfg},
		ListSessions: &api.ListSessions{Lister: &readings.Lister{Store: repo}, Config: cfg},
		Pinger:       repo,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	var out map[string]any
	if rw.Body.Len() > 0 {
		if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
			t.Fatalf("unmarshal %q: %v", rw.Body.String(), err)
		}
	}
	return rw, out
}

func TestStoreAndReadOverHTTP(t *testing.T) {
	h := newTestServer(t, nil)

	rw, body := doJSON(t, h, http.MethodPost, "/readings", `{"sessionId":"s1","sensorName":"A","temperature":25.5,"timestamp":"100","sessionStartTime":"100"}`)
	if rw.Code != http.StatusCreated || body["id"] != "s1#100" {
		t.Fatalf("unexpected store response %d %v", rw.Code, body)
	}
	if rw.Header().Get("Access-Control-Allow-Methods") != "OPTIONS,POST" {
		t.Fatalf("missing CORS headers: %v", rw.Header())
	}

	rw, body = doJSON(t, h, http.MethodGet, "/readings?sessionId=s1", "")
	if rw.Code != http.StatusOK || body["totalReadings"] != float64(1) {
		t.Fatalf("unexpected read response %d %v", rw.Code, body)
	}
	if rw.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", rw.Header().Get("Content-Type"))
	}

	rw, body = doJSON(t, h, http.MethodGet, "/sessions?limit=5", "")
	if rw.Code != http.StatusOK || body["totalReturned"] != float64(1) || body["hasMore"] != false {
		t.Fatalf("unexpected list response %d %v", rw.Code, body)
	}
}

func TestReadingsPreflightPicksFamily(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/readings", nil)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Body.Len() != 0 {
		t.Fatalf("unexpected preflight %d %q", rw.Code, rw.Body.String())
	}
	if got := rw.Header().Get("Access-Control-Allow-Methods"); got != "OPTIONS,POST" {
		t.Fatalf("expected write methods, got %q", got)
	}

	rw, _ = doJSON(t, h, http.MethodOptions, "/readings", "")
	if got := rw.Header().Get("Access-Control-Allow-Methods"); got != "OPTIONS,GET" {
		t.Fatalf("expected read methods, got %q", got)
	}
}

func TestWriterHealthRoute(t *testing.T) {
	h := newTestServer(t, nil)
	rw, body := doJSON(t, h, http.MethodGet, "/health", "")
	if rw.Code != http.StatusOK || body["message"] != "Store Reading Lambda is healthy" || body["tableName"] != store.DefaultTable {
		t.Fatalf("unexpected health %d %v", rw.Code, body)
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthz(t *testing.T) {
	rw, body := doJSON(t, newTestServer(t, nil), http.MethodGet, "/healthz", "")
	if rw.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected healthz %d %v", rw.Code, body)
	}

	down := newTestServer(t, func(o *Options) { o.Pinger = downPinger{} })
	rw, _ = doJSON(t, down, http.MethodGet, "/healthz", "")
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
}

func TestBodyLimit(t *testing.T) {
	h := newTestServer(t, func(o *Options) { o.MaxBodyBytes = 16 })
	rw, body := doJSON(t, h, http.MethodPost, "/readings", `{"sessionId":"s1","sensorName":"A","temperature":1,"timestamp":"1"}`)
	if rw.Code != http.StatusBadRequest || body["error"] != "Request body too large" {
		t.Fatalf("expected 400 too large, got %d %v", rw.Code, body)
	}
	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected CORS origin on body errors, got %q", got)
	}
	if got := rw.Header().Get("Access-Control-Allow-Methods"); got != "OPTIONS,POST" {
		t.Fatalf("expected writer methods on body errors, got %q", got)
	}
}

func TestNumericTimestampsReadBackInValueOrder(t *testing.T) {
	h := newTestServer(t, nil)
	for _, body := range []string{
		`{"sessionId":"s1","sensorName":"A","temperature":20,"timestamp":9}`,
		`{"sessionId":"s1","sensorName":"A","temperature":21,"timestamp":10}`,
	} {
		if rw, _ := doJSON(t, h, http.MethodPost, "/readings", body); rw.Code != http.StatusCreated {
			t.Fatalf("store %s: %d %s", body, rw.Code, rw.Body.String())
		}
	}

	rw, _ := doJSON(t, h, http.MethodGet, "/readings?sessionId=s1", "")
	var got struct {
		TemperatureData map[string][]struct {
			Timestamp string `json:"timestamp"`
		} `json:"temperatureData"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	series := got.TemperatureData["A"]
	if len(series) != 2 || series[0].Timestamp != "9" || series[1].Timestamp != "10" {
		t.Fatalf("expected 9 before 10, got %+v", series)
	}
}

func TestIngestLimiterOnlyGuardsWrites(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	h := newTestServer(t, func(o *Options) { o.IngestLimiter = deny })

	rw, _ := doJSON(t, h, http.MethodPost, "/readings", `{}`)
	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on POST, got %d", rw.Code)
	}
	rw, _ = doJSON(t, h, http.MethodGet, "/readings?sessionId=s1", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected reads to bypass limiter, got %d", rw.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	h := newTestServer(t, func(o *Options) {
		o.Metrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})
	})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Body.String() != "# metrics" {
		t.Fatalf("unexpected metrics response %d %q", rw.Code, rw.Body.String())
	}
}
