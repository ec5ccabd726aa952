package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dbehnke/mcdu429/internal/database"
	"github.com/dbehnke/mcdu429/internal/transport"
	"github.com/rs/zerolog"
)

type fakeEngine struct{}

func (fakeEngine) Status() []transport.EndpointStatus {
	return []transport.EndpointStatus{
		{Name: "CDU1", SAL: "240", State: "Idle", Layout: "A"},
		{Name: "CDU2", SAL: "241", State: "RTS", Layout: "none", Pending: 3},
	}
}

func (fakeEngine) Counters() (uint64, uint64) { return 120, 2 }

type fakeTraces struct {
	gotEndpoint string
	gotLimit    int
	err         error
}

func (f *fakeTraces) Recent(endpoint string, limit int) ([]database.BusTrace, error) {
	f.gotEndpoint, f.gotLimit = endpoint, limit
	if f.err != nil {
		return nil, f.err
	}
	return []database.BusTrace{{Endpoint: "CDU1", Kind: "word_sent", Label: "300"}}, nil
}

type fakeJournal struct{}

func (fakeJournal) Written() uint64 { return 10 }
func (fakeJournal) Dropped() uint64 { return 1 }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := New("127.0.0.1:0", fakeEngine{}, zerolog.Nop(), WithJournal(fakeJournal{}))
	rec := get(t, s.Handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["ticks"] != float64(120) || body["journal_dropped"] != float64(1) {
		t.Errorf("GET /health body = %v", body)
	}
}

func TestStatus(t *testing.T) {
	s := New("127.0.0.1:0", fakeEngine{}, zerolog.Nop())

	rec := get(t, s.Handler(), "/status")
	var all struct {
		Endpoints []transport.EndpointStatus `json:"endpoints"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all.Endpoints) != 2 || all.Endpoints[1].Pending != 3 {
		t.Errorf("GET /status = %+v", all)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/status/CDU2", http.StatusOK},
		{"/status/CDU9", http.StatusNotFound},
		{"/nowhere", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := get(t, s.Handler(), tt.path); rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestTraces(t *testing.T) {
	noJournal := New("127.0.0.1:0", fakeEngine{}, zerolog.Nop())
	if rec := get(t, noJournal.Handler(), "/traces"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /traces without journal = %d, want 503", rec.Code)
	}

	traces := &fakeTraces{}
	s := New("127.0.0.1:0", fakeEngine{}, zerolog.Nop(), WithTraces(traces))

	rec := get(t, s.Handler(), "/traces?endpoint=CDU1&limit=5000")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /traces = %d, want 200", rec.Code)
	}
	if traces.gotEndpoint != "CDU1" || traces.gotLimit != maxTraceLimit {
		t.Errorf("Recent(%q, %d), want (CDU1, %d)", traces.gotEndpoint, traces.gotLimit, maxTraceLimit)
	}
	if !strings.Contains(rec.Body.String(), `"label":"300"`) {
		t.Errorf("GET /traces body = %s", rec.Body.String())
	}

	if rec := get(t, s.Handler(), "/traces?limit=zero"); rec.Code != http.StatusBadRequest {
		t.Errorf("GET /traces?limit=zero = %d, want 400", rec.Code)
	}

	traces.err = errors.New("disk full")
	if rec := get(t, s.Handler(), "/traces"); rec.Code != http.StatusInternalServerError {
		t.Errorf("GET /traces with failing repo = %d, want 500", rec.Code)
	}
	if traces.gotLimit != defaultTraceLimit {
		t.Errorf("default limit = %d, want %d", traces.gotLimit, defaultTraceLimit)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := New("127.0.0.1:0", fakeEngine{}, zerolog.Nop())
	get(t, s.Handler(), "/health")
	rec := get(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mcdu429_http_requests_total") {
		t.Error("GET /metrics does not expose mcdu429_http_requests_total")
	}
}
