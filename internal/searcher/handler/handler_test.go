package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/worker"
	apperrors "github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/proto"
)

type fakeReloader struct {
	w          *worker.Worker
	got        []proto.ReloadRequest
	detached   int
	detachedAt uint64
	err        error
}

func (f *fakeReloader) Reload(ctx context.Context, req proto.ReloadRequest) (reload.Result, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return reload.Result{}, f.err
	}
	recs := []record.Record{record.New("ChallanNo", "CH-1", "FactoryName", req.Factory)}
	resp, err := f.w.Do(ctx, worker.SetData(req.SequenceNumber, recs, req.SearchTerm))
	return reload.Result{Source: req.Source, Factory: req.Factory, Fetched: 1, Response: resp}, err
}

func (f *fakeReloader) Detach(gen uint64) {
	f.detached++
	f.detachedAt = gen
}

type fixture struct {
	srv      *httptest.Server
	reloader *fakeReloader
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	w := worker.New(recordstore.New(recordstore.Options{Location: time.UTC}), 8)
	w.Start(context.Background())
	t.Cleanup(w.Close)

	fr := &fakeReloader{w: w}
	if opts.Reloader == nil {
		opts.Reloader = fr
	}
	mux := http.NewServeMux()
	New(w, &worker.Sequencer{}, opts).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, reloader: fr}
}

type reply struct {
	Kind           worker.Kind        `json:"kind"`
	SequenceNumber int64              `json:"sequenceNumber"`
	Results        []record.Record    `json:"results"`
	CacheHit       bool               `json:"cacheHit"`
	Stats          *recordstore.Stats `json:"stats"`
	Total          int                `json:"total"`
	Truncated      bool               `json:"truncated"`
	Error          string             `json:"error"`
}

func do(t *testing.T, method, url, body string) (int, reply, http.Header) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out reply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding %s %s: %v", method, url, err)
	}
	return resp.StatusCode, out, resp.Header
}

const dispatches = `{
  "sequenceNumber": 1,
  "searchTerm": "",
  "records": [
    {"ChallanNo": "CH-100", "Date": "2024-05-17T00:00:00Z", "PartyName": "Acme Logistics", "FactoryName": "JSW", "Freight": 1200},
    {"ChallanNo": "CH-101", "Date": "2024-05-18T00:00:00Z", "PartyName": "Zen Traders", "FactoryName": "JSW", "Freight": 800},
    {"ChallanNo": "CH-102", "Date": "2024-06-01T00:00:00Z", "PartyName": "Acme Cements", "FactoryName": "ULTRATECH", "Freight": 0}
  ]
}`

func TestSetDataThenSearch(t *testing.T) {
	f := newFixture(t, Options{})

	status, out, hdr := do(t, http.MethodPost, f.srv.URL+"/api/v1/dataset", dispatches)
	if status != http.StatusOK || out.Kind != worker.KindSetDataDone || out.SequenceNumber != 1 {
		t.Fatalf("SET_DATA = %d %+v", status, out)
	}
	if len(out.Results) != 3 || hdr.Get(SequenceHeader) != "1" {
		t.Errorf("results = %d, header = %q", len(out.Results), hdr.Get(SequenceHeader))
	}
	if f.reloader.detached != 1 || f.reloader.detachedAt != 1 {
		t.Errorf("direct SET_DATA should detach the reloader at generation 1, got %d calls at %d",
			f.reloader.detached, f.reloader.detachedAt)
	}
	if names := strings.Join(out.Results[0].Names(), ","); names != "ChallanNo,Date,PartyName,FactoryName,Freight" {
		t.Errorf("field order = %s", names)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"acme", []string{"CH-100", "CH-102"}},
		{"ACME jsw", []string{"CH-100"}},
		{"18-05-24", []string{"CH-101"}},
		{"trad", []string{"CH-101"}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		status, out, _ := do(t, http.MethodGet, f.srv.URL+"/api/v1/search?seq=7&q="+strings.ReplaceAll(tt.query, " ", "+"), "")
		if status != http.StatusOK || out.Kind != worker.KindSearchDone || out.SequenceNumber != 7 {
			t.Fatalf("%q: %d %+v", tt.query, status, out)
		}
		var got []string
		for _, rec := range out.Results {
			v, _ := rec.Get("ChallanNo")
			got = append(got, v.(string))
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("%q: got %v, want %v", tt.query, got, tt.want)
		}
	}

	_, again, _ := do(t, http.MethodGet, f.srv.URL+"/api/v1/search?q=acme", "")
	if !again.CacheHit {
		t.Error("repeated query should be served from cache")
	}
}

func TestMessageEndpointAndStats(t *testing.T) {
	f := newFixture(t, Options{})
	body := `{"kind":"SET_DATA","sequenceNumber":3,"records":[{"PartyName":"Acme"},{"PartyName":"Zen"}],"searchTerm":"zen"}`
	status, out, _ := do(t, http.MethodPost, f.srv.URL+"/api/v1/messages", body)
	if status != http.StatusOK || out.Kind != worker.KindSetDataDone || len(out.Results) != 1 {
		t.Fatalf("message = %d %+v", status, out)
	}

	status, out, _ = do(t, http.MethodPost, f.srv.URL+"/api/v1/messages", `{"kind":"SEARCH","searchTerm":"acme","sequenceNumber":4}`)
	if status != http.StatusOK || out.SequenceNumber != 4 || len(out.Results) != 1 {
		t.Fatalf("search message = %d %+v", status, out)
	}

	status, out, _ = do(t, http.MethodGet, f.srv.URL+"/api/v1/stats", "")
	if status != http.StatusOK || out.Stats == nil || out.Stats.Rows != 2 || out.Stats.State != "loaded" {
		t.Errorf("stats = %d %+v", status, out.Stats)
	}
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t, Options{MaxBodyBytes: 64})
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed json", http.MethodPost, "/api/v1/dataset", `{"records": [`, http.StatusBadRequest},
		{"wrong kind", http.MethodPost, "/api/v1/dataset", `{"kind":"SEARCH"}`, http.StatusBadRequest},
		{"unknown kind", http.MethodPost, "/api/v1/messages", `{"kind":"DROP"}`, http.StatusBadRequest},
		{"bad seq", http.MethodGet, "/api/v1/search?q=a&seq=x", "", http.StatusBadRequest},
		{"too large", http.MethodPost, "/api/v1/dataset", `{"records":[{"PartyName":"` + strings.Repeat("x", 100) + `"}]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out, _ := do(t, tt.method, f.srv.URL+tt.path, tt.body)
			if status != tt.want || out.Error == "" {
				t.Errorf("status = %d (want %d), error = %q", status, tt.want, out.Error)
			}
		})
	}
}

func TestMaxResultsTruncates(t *testing.T) {
	f := newFixture(t, Options{MaxResults: 2})
	status, out, _ := do(t, http.MethodPost, f.srv.URL+"/api/v1/dataset", dispatches)
	if status != http.StatusOK || len(out.Results) != 2 || out.Total != 3 || !out.Truncated {
		t.Errorf("status %d, results %d, total %d, truncated %v", status, len(out.Results), out.Total, out.Truncated)
	}
}

func TestReloadEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	status, _, hdr := do(t, http.MethodPost, f.srv.URL+"/api/v1/dataset/reload?source=redis&factory=JSW&q=jsw&seq=9", "")
	if status != http.StatusOK || hdr.Get(SequenceHeader) != "9" {
		t.Fatalf("reload status = %d, seq header %q", status, hdr.Get(SequenceHeader))
	}
	want := proto.ReloadRequest{Source: "redis", Factory: "JSW", SearchTerm: "jsw", SequenceNumber: 9}
	if len(f.reloader.got) != 1 || f.reloader.got[0] != want {
		t.Errorf("reload requests = %+v", f.reloader.got)
	}

	f.reloader.err = apperrors.ErrSourceUnavailable
	status, out, _ := do(t, http.MethodPost, f.srv.URL+"/api/v1/dataset/reload?factory=JSW", "")
	if status != http.StatusServiceUnavailable || out.Error == "" {
		t.Errorf("outage status = %d, error %q", status, out.Error)
	}
}

type closedDispatcher struct{}

func (closedDispatcher) Do(ctx context.Context, req worker.Request) (worker.Response, error) {
	return worker.Response{}, apperrors.ErrWorkerClosed
}

type slowDispatcher struct{}

func (slowDispatcher) Do(ctx context.Context, req worker.Request) (worker.Response, error) {
	<-ctx.Done()
	return worker.Response{}, ctx.Err()
}

func TestWorkerFailuresMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		d    Dispatcher
		want int
	}{
		{"closed", closedDispatcher{}, http.StatusServiceUnavailable},
		{"timeout", slowDispatcher{}, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.d, nil, Options{RequestTimeout: 20 * time.Millisecond})
			rec := httptest.NewRecorder()
			h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=acme", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestReloadWithoutSources(t *testing.T) {
	h := New(closedDispatcher{}, nil, Options{})
	rec := httptest.NewRecorder()
	h.Reload(rec, httptest.NewRequest(http.MethodPost, "/api/v1/dataset/reload?factory=JSW", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}
