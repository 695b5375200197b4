/*
Package metrics provides Prometheus-based metrics collection for the cache
simulator.

Collector tracks four things: request outcomes (hit/miss) per cache level,
the cache's current occupied-bytes, evictions by reason, and bytes read from
the trace source. It exposes them over HTTP for scraping, and also hands out
its *prometheus.Registry so internal/obsserver can mount the same metrics
behind its own endpoint alongside health checks.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Namespace: "cachesim",
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

	collector.RecordHit("default")
	collector.RecordMiss("default")
	collector.SetOccupiedBytes(cache.OccupiedBytes())
	collector.RecordEviction("capacity")
	collector.AddReaderBytes(int64(len(record)))

See also internal/health for periodic invariant checking and internal/circuit
for guarding the trace downloader.
*/
package metrics
