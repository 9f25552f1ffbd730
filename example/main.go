package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/fermentbridge"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockBrewblox(":9999")
	time.Sleep(100 * time.Millisecond)

	red, err := fermentbridge.NewDeviceMapping("Red", fermentbridge.Celsius, fermentbridge.SpecificGravity,
		[]fermentbridge.SensorDeclaration{
			{Field: fermentbridge.FieldTemp, Sensor: fermentbridge.Sensor{
				Type: fermentbridge.ServiceTilt, Service: "tilt", ID: "Red", Calibrated: true,
			}},
			{Field: fermentbridge.FieldAuxTemp, Sensor: fermentbridge.Sensor{
				Type: fermentbridge.ServiceSpark, Service: "spark-one", ID: "fridge-sensor",
			}},
			{Field: fermentbridge.FieldGravity, Sensor: fermentbridge.Sensor{
				Type: fermentbridge.ServiceTilt, Service: "tilt", ID: "Red", Calibrated: true,
			}},
		})
	if err != nil {
		slog.Error("failed to create device", "error", err)
		os.Exit(1)
	}

	blue, err := fermentbridge.NewDeviceMapping("Blue", fermentbridge.Fahrenheit, fermentbridge.Plato,
		[]fermentbridge.SensorDeclaration{
			{Field: fermentbridge.FieldTemp, Sensor: fermentbridge.Sensor{
				Type: fermentbridge.ServiceTilt, Service: "tilt", ID: "Blue",
			}},
			{Field: fermentbridge.FieldGravity, Sensor: fermentbridge.Sensor{
				Type: fermentbridge.ServiceTilt, Service: "tilt", ID: "Blue",
			}},
		})
	if err != nil {
		slog.Error("failed to create device", "error", err)
		os.Exit(1)
	}

	table, err := fermentbridge.NewMappingTable(red, blue)
	if err != nil {
		slog.Error("failed to create mapping table", "error", err)
		os.Exit(1)
	}

	b, err := fermentbridge.New(
		fermentbridge.WithMappingTable(table),
		fermentbridge.WithMetricsURL(fermentbridge.MetricsURL("http://localhost", 9999)),
		fermentbridge.WithDestinationURL("http://localhost:9999/stream?id=demo"),
		fermentbridge.WithStatusAddr(":8080"),
		fermentbridge.WithResultCallback(func(r fermentbridge.CycleResult) {
			fmt.Printf("  %-5s %-9s %v\n", r.Device, r.Outcome, r.Payload)
		}),
	)
	if err != nil {
		slog.Error("failed to create bridge", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  fermentbridge demo")
	fmt.Println()
	fmt.Println("  Mock history and logging API on :9999")
	fmt.Println("  Status:  http://localhost:8080/api/status")
	fmt.Println("  Metrics: http://localhost:8080/metrics")
	fmt.Println()
	fmt.Println("  A cycle runs now, then every 15 minutes. Press Ctrl+C to stop.")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		slog.Error("bridge error", "error", err)
		os.Exit(1)
	}
}
