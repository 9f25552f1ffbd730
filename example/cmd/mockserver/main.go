// Standalone mock Brewblox history API and Brewfather logging API for
// trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	FERMENTBRIDGE_HISTORY_HOST=http://localhost FERMENTBRIDGE_HISTORY_PORT=9999 \
//	  go run ./cmd/fermentbridge serve -c example/fermentations.yaml --once
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
)

func main() {
	fmt.Println("Mock Brewblox/Brewfather server starting on :9999")
	fmt.Println("  POST /history/timeseries/metrics")
	fmt.Println("  POST /stream")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	http.HandleFunc("/history/timeseries/metrics", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Fields []string `json:"fields"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		values := make([]map[string]any, 0, len(req.Fields))
		for _, metric := range req.Fields {
			var v any = 19 + rand.Float64()*2
			if strings.Contains(strings.ToLower(metric), "gravity") {
				v = 1.040 + rand.Float64()*0.01
			}
			values = append(values, map[string]any{"metric": metric, "value": v})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(values)
	})

	http.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("point received", "payload", payload)

		w.Header().Set("Content-Type", "text/html")
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "success"})
	})

	if err := http.ListenAndServe(":9999", nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
