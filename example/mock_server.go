package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// throttleWindow mirrors the logging API's minimum interval between points.
const throttleWindow = 900 * time.Second

// StartMockBrewblox runs a mock history API and a mock logging API on addr.
//
// The history API answers any requested metric with a drifting reading:
// temperatures wander around 20 degrees and gravity slowly drops. The logging
// API answers "success", or "ignored" when the same device logged less than
// 15 minutes ago. Call this in a goroutine before starting the bridge.
func StartMockBrewblox(addr string) {
	var (
		mu       sync.Mutex
		gravity  = make(map[string]float64)
		lastSeen = make(map[string]time.Time)
	)

	mux := http.NewServeMux()

	mux.HandleFunc("/history/timeseries/metrics", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Fields []string `json:"fields"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mu.Lock()
		values := make([]map[string]any, 0, len(req.Fields))
		for _, metric := range req.Fields {
			values = append(values, map[string]any{"metric": metric, "value": mockValue(metric, gravity)})
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(values); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		name, _ := payload["name"].(string)

		mu.Lock()
		result := "success"
		if last, ok := lastSeen[name]; ok && time.Since(last) < throttleWindow {
			result = "ignored"
		} else {
			lastSeen[name] = time.Now()
		}
		mu.Unlock()

		slog.Info("point received", "device", name, "result", result, "payload", payload)

		// the real logging API labels its JSON as text/html
		w.Header().Set("Content-Type", "text/html")
		_ = json.NewEncoder(w).Encode(map[string]string{"result": result})
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

// mockValue returns a reading for metric. gravity holds the running gravity
// per metric; callers must hold its lock.
func mockValue(metric string, gravity map[string]float64) any {
	lower := strings.ToLower(metric)
	switch {
	case strings.Contains(lower, "gravity"):
		g, ok := gravity[metric]
		if !ok {
			g = 1.050
		}
		g -= rand.Float64() * 0.001
		gravity[metric] = g
		return g
	case strings.Contains(lower, "plato"):
		return 12.0 - rand.Float64()
	case strings.Contains(lower, "degf"):
		return 66 + rand.Float64()*4
	default:
		return 19 + rand.Float64()*2
	}
}
