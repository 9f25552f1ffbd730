// Package fermentbridge copies the latest fermentation readings from a
// Brewblox history service to a Brewfather custom stream.
//
// Each configured device (a fermentation) declares which sensor feeds each
// logical field (temp, aux_temp, ext_temp, gravity). The declarations are
// compiled once into an immutable [MappingTable]; every poll interval the
// [Bridge] fetches the mapped metrics of each device, re-keys them by
// logical field and submits one payload per device.
//
// # Quick Start
//
//	table, _ := fermentbridge.NewMappingTable(red)
//	b, _ := fermentbridge.New(
//	    fermentbridge.WithMappingTable(table),
//	    fermentbridge.WithMetricsURL(fermentbridge.MetricsURL("http://history", 5000)),
//	    fermentbridge.WithDestinationURL("https://log.brewfather.net/stream?id=..."),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	b.Start(ctx) // blocks until context is cancelled
//
// Mapping tables are usually compiled from a YAML device file with the
// config package.
//
// # Metric Resolution
//
// [ResolveMetric] turns a (field, sensor, units) triple into a history
// metric identifier of the form "{service}/{sensor}/{suffix}". Unknown
// fields and service types resolve to nothing and the field is omitted.
//
// # Cycles
//
// Devices are processed sequentially and independently. A failure for one
// device is reported in its [CycleResult] and never affects the others. The
// logging API's answer is classified as [OutcomeSubmitted], [OutcomeIgnored]
// (throttled, [ErrThrottled]) or [OutcomeFailed].
//
// # Architecture
//
//   - internal/poller: history fetch, payload build, submission and the scheduler
//   - internal/store: latest result per device, with pub/sub
//   - internal/server: optional status server (REST, SSE, Prometheus)
//   - internal/metrics: Prometheus collectors
//   - internal/eventbus: optional MQTT publishing of remapped values
package fermentbridge
