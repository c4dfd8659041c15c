package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel/metric"
)

var perfMeter = Meter("casesync.perf_stats")

// InstrumentPerfStats samples process stats every interval until ctx ends.
// Cpu usage is sampled over a full minute so it is read in the background and
// reported through observable gauges.
func InstrumentPerfStats(ctx context.Context) {
	var cpuUsage atomic.Uint64

	cpuGauge, _ := perfMeter.Float64ObservableGauge("process.cpu_usage", metric.WithUnit("%"))
	memoryGauge, _ := perfMeter.Int64ObservableGauge("process.allocated", metric.WithUnit("MB"))
	liveObjectsGauge, _ := perfMeter.Int64ObservableGauge("process.live_objects")
	goroutineGauge, _ := perfMeter.Int64ObservableGauge("process.goroutines")

	_, err := perfMeter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			o.ObserveFloat64(cpuGauge, float64(cpuUsage.Load())/100)
			o.ObserveInt64(memoryGauge, int64(mem.Alloc/1_000_000))
			o.ObserveInt64(liveObjectsGauge, int64(mem.Mallocs)-int64(mem.Frees))
			o.ObserveInt64(goroutineGauge, int64(runtime.NumGoroutine()))
			return nil
		},
		cpuGauge, memoryGauge, liveObjectsGauge, goroutineGauge,
	)
	if err != nil {
		slog.WarnContext(ctx, "failed to register perf stats", "err", err)
		return
	}

	go func() {
		for ctx.Err() == nil {
			usage, err := cpu.PercentWithContext(ctx, time.Minute, false)
			if err != nil {
				if ctx.Err() == nil {
					slog.WarnContext(ctx, "failed to read cpu usage", "err", err)
					time.Sleep(30 * time.Second)
				}
				continue
			}
			if len(usage) > 0 {
				cpuUsage.Store(uint64(usage[0] * 100))
			}
		}
	}()
}
