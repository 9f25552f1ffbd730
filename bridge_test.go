package fermentbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBrewblox serves both the history metrics API and the logging API.
type fakeBrewblox struct {
	server *httptest.Server

	// failSensor makes the history API fail requests for that sensor.
	failSensor string
	// nullGravity makes the history API return null gravity values.
	nullGravity bool
	// result is the logging API result token.
	result string

	fetches     atomic.Int32
	mu          sync.Mutex
	submissions []map[string]any
}

func newFakeBrewblox(t *testing.T) *fakeBrewblox {
	t.Helper()
	f := &fakeBrewblox{result: "success"}

	mux := http.NewServeMux()
	mux.HandleFunc("/history/timeseries/metrics", func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		var req struct {
			Fields []string `json:"fields"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		values := make([]map[string]any, 0, len(req.Fields))
		for _, metric := range req.Fields {
			if f.failSensor != "" && strings.Contains(metric, "/"+f.failSensor+"/") {
				http.Error(w, "history unavailable", http.StatusInternalServerError)
				return
			}
			var v any = 19.5
			if strings.Contains(metric, "gravity") {
				v = 1.042
				if f.nullGravity {
					v = nil
				}
			}
			values = append(values, map[string]any{"metric": metric, "value": v})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(values)
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.submissions = append(f.submissions, payload)
		f.mu.Unlock()

		// the logging API labels its JSON as text/html
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`{"result":"` + f.result + `"}`))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBrewblox) opts(t *testing.T, devices ...string) []Option {
	return []Option{
		WithMappingTable(testTable(t, devices...)),
		WithMetricsURL(f.server.URL + "/history/timeseries/metrics"),
		WithDestinationURL(f.server.URL + "/stream?id=abc"),
		WithRequestTimeout(2 * time.Second),
		WithLogger(testLogger()),
	}
}

func (f *fakeBrewblox) submitted() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.submissions...)
}

func TestRunOnce_Submitted(t *testing.T) {
	fake := newFakeBrewblox(t)
	b, err := New(fake.opts(t, "Red")...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	results := b.RunOnce(context.Background())
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	r := results[0]
	if r.Outcome != OutcomeSubmitted || r.Error != nil {
		t.Fatalf("result = %s (%v), want submitted", r.Outcome, r.Error)
	}
	if r.CycleID == "" {
		t.Error("CycleID should be set")
	}
	if r.Values["tilt/Red/Calibrated temperature[degC]"] != 19.5 {
		t.Errorf("Values = %v", r.Values)
	}

	subs := fake.submitted()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	want := map[string]any{
		"name":         "Red",
		"temp":         19.5,
		"gravity":      1.042,
		"temp_unit":    "C",
		"gravity_unit": "G",
	}
	for k, v := range want {
		if subs[0][k] != v {
			t.Errorf("payload[%s] = %v, want %v", k, subs[0][k], v)
		}
	}
}

// Two devices, the first fetch fails: exactly one submission is made, for
// the second device.
func TestRunOnce_FirstDeviceFetchFails(t *testing.T) {
	fake := newFakeBrewblox(t)
	fake.failSensor = "Red"

	b, err := New(fake.opts(t, "Red", "Blue")...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	results := b.RunOnce(context.Background())
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	var fetchErr *UpstreamFetchError
	if results[0].Outcome != OutcomeFailed || !errors.As(results[0].Error, &fetchErr) {
		t.Errorf("Red = %s (%v), want failed with UpstreamFetchError", results[0].Outcome, results[0].Error)
	}
	if results[0].Payload != nil {
		t.Errorf("Red payload = %v, want nil", results[0].Payload)
	}
	if results[1].Outcome != OutcomeSubmitted {
		t.Errorf("Blue = %s (%v), want submitted", results[1].Outcome, results[1].Error)
	}

	subs := fake.submitted()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want exactly 1", len(subs))
	}
	if subs[0]["name"] != "Blue" {
		t.Errorf("submitted device = %v, want Blue", subs[0]["name"])
	}
}

func TestRunOnce_NullFieldsAbsent(t *testing.T) {
	fake := newFakeBrewblox(t)
	fake.nullGravity = true

	b, _ := New(fake.opts(t, "Red")...)
	b.RunOnce(context.Background())

	subs := fake.submitted()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if _, ok := subs[0]["gravity"]; ok {
		t.Errorf("payload = %v, gravity key should be absent", subs[0])
	}
	if subs[0]["temp"] != 19.5 {
		t.Errorf("payload[temp] = %v, want 19.5", subs[0]["temp"])
	}
}

func TestRunOnce_Classification(t *testing.T) {
	tests := []struct {
		result  string
		want    Outcome
		checkFn func(t *testing.T, err error)
	}{
		{"success", OutcomeSubmitted, func(t *testing.T, err error) {
			if err != nil {
				t.Errorf("error = %v, want nil", err)
			}
		}},
		{"ignored", OutcomeIgnored, func(t *testing.T, err error) {
			if !errors.Is(err, ErrThrottled) {
				t.Errorf("error = %v, want ErrThrottled", err)
			}
			var submitErr *DownstreamSubmitError
			if errors.As(err, &submitErr) {
				t.Error("throttled result must not be a DownstreamSubmitError")
			}
		}},
		{"OK", OutcomeIgnored, func(t *testing.T, err error) {
			if !errors.Is(err, ErrThrottled) {
				t.Errorf("error = %v, want ErrThrottled", err)
			}
		}},
		{"quota exceeded", OutcomeFailed, func(t *testing.T, err error) {
			var unrecognized *UnrecognizedResultError
			if !errors.As(err, &unrecognized) {
				t.Fatalf("error = %v, want UnrecognizedResultError", err)
			}
			if !strings.Contains(string(unrecognized.Body), "quota exceeded") {
				t.Errorf("Body = %q, want raw response", unrecognized.Body)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			fake := newFakeBrewblox(t)
			fake.result = tt.result

			b, _ := New(fake.opts(t, "Red")...)
			results := b.RunOnce(context.Background())
			if len(results) != 1 {
				t.Fatalf("len(results) = %d, want 1", len(results))
			}
			if results[0].Outcome != tt.want {
				t.Errorf("Outcome = %s, want %s", results[0].Outcome, tt.want)
			}
			tt.checkFn(t, results[0].Error)
		})
	}
}

func TestRunOnce_DownstreamUnreachable(t *testing.T) {
	fake := newFakeBrewblox(t)

	b, err := New(
		WithMappingTable(testTable(t, "Red")),
		WithMetricsURL(fake.server.URL+"/history/timeseries/metrics"),
		WithDestinationURL("http://127.0.0.1:1/stream"),
		WithRequestTimeout(time.Second),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	results := b.RunOnce(context.Background())
	var submitErr *DownstreamSubmitError
	if results[0].Outcome != OutcomeFailed || !errors.As(results[0].Error, &submitErr) {
		t.Errorf("result = %s (%v), want failed with DownstreamSubmitError", results[0].Outcome, results[0].Error)
	}
}

func TestToPollerDevices(t *testing.T) {
	b, err := New(requiredOpts(t)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	devices := b.toPollerDevices()
	if len(devices) != 1 {
		t.Fatalf("len(devices) = %d, want 1", len(devices))
	}
	d := devices[0]
	if d.Name != "Red" || d.TempUnit != "C" || d.GravityUnit != "G" {
		t.Errorf("device = %+v", d)
	}
	if d.Fields["temp"] != "tilt/Red/Calibrated temperature[degC]" {
		t.Errorf("Fields[temp] = %q", d.Fields["temp"])
	}
	if len(d.Metrics) != 2 {
		t.Errorf("Metrics = %v, want 2 identifiers", d.Metrics)
	}

	// mutating the poller view must not leak into the table
	d.Fields["temp"] = "modified"
	m, _ := b.MappingTable().Device("Red")
	if got, _ := m.Metric(FieldTemp); got == "modified" {
		t.Error("mutation of poller device affected the mapping table")
	}
}

func TestFieldValues(t *testing.T) {
	got := fieldValues(map[string]any{
		"name":         "Red",
		"temp_unit":    "C",
		"gravity_unit": "G",
		"temp":         19.5,
	})
	if len(got) != 1 || got["temp"] != 19.5 {
		t.Errorf("fieldValues() = %v, want only temp", got)
	}
	if fieldValues(nil) != nil {
		t.Error("fieldValues(nil) should be nil")
	}
}
