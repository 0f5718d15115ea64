package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/colinxiong/MURS/internal/api"
	"github.com/colinxiong/MURS/internal/governor"
	"github.com/colinxiong/MURS/internal/model"
	"github.com/colinxiong/MURS/internal/store"
)

type fakePool struct{ exec, storage, capacity int64 }

func (p *fakePool) ExecutionUsed() int64   { return p.exec }
func (p *fakePool) StorageUsed() int64     { return p.storage }
func (p *fakePool) StorageCapacity() int64 { return p.capacity }

type fakeHeap struct{ used int64 }

func (h *fakeHeap) CurrentHeapUsed() int64 { return h.used }

type fakeSource struct{ bytes int64 }

func (f *fakeSource) ConsumptionBytes() int64 { return f.bytes }

type fakeSampler struct {
	ids     []model.TaskID
	usage   map[model.TaskID]int64
	percent map[model.TaskID]float64
}

func (s *fakeSampler) TaskIDs() []model.TaskID { return s.ids }
func (s *fakeSampler) MemoryUsage(id model.TaskID) (int64, bool) {
	v, ok := s.usage[id]
	return v, ok
}
func (s *fakeSampler) UsageRate(model.TaskID) (float64, bool) { return 0, true }
func (s *fakeSampler) CompletionPercent(id model.TaskID) (float64, bool) {
	v, ok := s.percent[id]
	return v, ok
}
func (s *fakeSampler) RecordInputRead(model.TaskID, int64, int64)     {}
func (s *fakeSampler) RecordShuffleRead(model.TaskID, int64, int64)   {}
func (s *fakeSampler) RecordCacheRead(model.TaskID, int64, int64)     {}
func (s *fakeSampler) MarkShuffleWrite(model.TaskID)                  {}
func (s *fakeSampler) RecordSampledShuffleMemory(model.TaskID, int64) {}
func (s *fakeSampler) RecordSampledCacheMemory(model.TaskID, int64)   {}

func newTestServer(t *testing.T) (*httptest.Server, *governor.Governor, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sampler := &fakeSampler{
		usage:   make(map[model.TaskID]int64),
		percent: make(map[model.TaskID]float64),
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	gov := governor.New(&fakePool{capacity: 1 << 20}, &fakeHeap{used: 100}, sampler, st, logger,
		governor.Tunables{MinRunning: 1, StopCount: 1, EstimateMul: 1})
	gov.Configure(1000, 400)

	gov.Register(1, &fakeSource{bytes: 128})
	gov.MarkResult(1)
	sampler.ids = append(sampler.ids, 1)
	sampler.usage[1] = 64
	sampler.percent[1] = 0.25

	srv := api.NewServer(":0", gov, st, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, gov, st
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var hr map[string]string
	if err := json.Unmarshal(body, &hr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if hr["status"] != "ok" {
		t.Errorf("status field = %q, want ok", hr["status"])
	}
}

func TestGetStats(t *testing.T) {
	ts, gov, _ := newTestServer(t)
	gov.Tick(context.Background())

	resp, body := get(t, ts.URL+"/v1/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var sr struct {
		Running     int    `json:"running"`
		Ticks       uint64 `json:"ticks"`
		YellowLine  int64  `json:"yellow_line"`
		RedLine     int64  `json:"red_line"`
		TotalBudget int64  `json:"total_budget"`
		Decisions   *struct {
			Total int `json:"total"`
		} `json:"decisions"`
	}
	if err := json.Unmarshal(body, &sr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sr.Running != 1 {
		t.Errorf("running = %d, want 1", sr.Running)
	}
	if sr.Ticks != 1 {
		t.Errorf("ticks = %d, want 1", sr.Ticks)
	}
	if sr.YellowLine != 400 || sr.RedLine != 528 || sr.TotalBudget != 1000 {
		t.Errorf("thresholds = %d/%d/%d, want 400/528/1000", sr.YellowLine, sr.RedLine, sr.TotalBudget)
	}
	if sr.Decisions == nil {
		t.Error("decisions block missing from stats")
	}
}

func TestListTasks(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/v1/tasks")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var tr struct {
		Total int              `json:"total"`
		Tasks []model.TaskInfo `json:"tasks"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tr.Total != 1 || len(tr.Tasks) != 1 {
		t.Fatalf("total = %d, len = %d, want 1, 1", tr.Total, len(tr.Tasks))
	}
	task := tr.Tasks[0]
	if task.ID != 1 || !task.Result || task.Paused {
		t.Errorf("task = %+v, want id=1 result=true paused=false", task)
	}
	if task.Consumption != 128 || task.UsageBytes != 64 {
		t.Errorf("consumption/usage = %d/%d, want 128/64", task.Consumption, task.UsageBytes)
	}
}

func TestGetEventHistory(t *testing.T) {
	ts, _, st := newTestServer(t)

	for i := 0; i < 3; i++ {
		e := &model.Event{
			ID:        model.NewID(),
			TaskID:    model.TaskID(i),
			Action:    model.ActionPause,
			Reason:    model.ReasonPressure,
			Tick:      uint64(i),
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := st.InsertEvent(context.Background(), e); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	resp, body := get(t, ts.URL+"/v1/events/history?limit=2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var hr struct {
		Total  int            `json:"total"`
		Limit  int            `json:"limit"`
		Events []*model.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &hr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if hr.Total != 3 {
		t.Errorf("total = %d, want 3", hr.Total)
	}
	if hr.Limit != 2 || len(hr.Events) != 2 {
		t.Errorf("limit = %d, len = %d, want 2, 2", hr.Limit, len(hr.Events))
	}
	// Newest first.
	if hr.Events[0].TaskID != 2 {
		t.Errorf("first event task = %d, want 2", hr.Events[0].TaskID)
	}
}

func TestGetEventHistoryEmpty(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/v1/events/history")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var hr struct {
		Total  int            `json:"total"`
		Events []*model.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &hr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if hr.Total != 0 {
		t.Errorf("total = %d, want 0", hr.Total)
	}
	if hr.Events == nil {
		t.Error("events = null, want empty array")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, gov, _ := newTestServer(t)
	gov.Tick(context.Background())

	// Complete one request first so the HTTP counters have samples to scrape.
	get(t, ts.URL+"/healthz")

	resp, body := get(t, ts.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "murs_heap_baseline_bytes") {
		t.Error("metrics output missing murs_heap_baseline_bytes")
	}
	if !strings.Contains(string(body), "murs_http_requests_total") {
		t.Error("metrics output missing murs_http_requests_total")
	}
}
