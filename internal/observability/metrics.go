package observability

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsManager owns the counters and histograms for the event stream
// client: dispatch volume and latency, frame sends, reconnects and stalls,
// plus process-level gauges.
type MetricsManager struct {
	meter metric.Meter

	eventsDispatched metric.Int64Counter
	eventsUnknown    metric.Int64Counter
	framesSent       metric.Int64Counter
	framesFailed     metric.Int64Counter
	reconnects       metric.Int64Counter
	stalls           metric.Int64Counter
	dispatchDuration metric.Float64Histogram

	connectionState metric.Int64Gauge
	memoryUsage     metric.Int64Gauge
	goroutineCount  metric.Int64Gauge
}

func NewMetricsManager(meter metric.Meter) (*MetricsManager, error) {
	eventsDispatched, err := meter.Int64Counter(
		"events_dispatched_total",
		metric.WithDescription("Total number of gateway events dispatched to handlers"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	eventsUnknown, err := meter.Int64Counter(
		"events_unknown_total",
		metric.WithDescription("Total number of gateway events with an unrecognized kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	framesSent, err := meter.Int64Counter(
		"frames_sent_total",
		metric.WithDescription("Total number of frames written to the gateway"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	framesFailed, err := meter.Int64Counter(
		"frames_failed_total",
		metric.WithDescription("Total number of frame sends that failed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	reconnects, err := meter.Int64Counter(
		"reconnects_total",
		metric.WithDescription("Total number of reconnect attempts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	stalls, err := meter.Int64Counter(
		"stalls_total",
		metric.WithDescription("Total number of turns abandoned by the stall supervisor"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	dispatchDuration, err := meter.Float64Histogram(
		"event_dispatch_duration_seconds",
		metric.WithDescription("Time spent handling a single gateway event"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	connectionState, err := meter.Int64Gauge(
		"connection_state",
		metric.WithDescription("Current websocket connection state (0 closed, 1 connecting, 2 open, 3 closing)"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	memoryUsage, err := meter.Int64Gauge(
		"memory_usage_bytes",
		metric.WithDescription("Current memory usage in bytes"),
		metric.WithUnit("bytes"),
	)
	if err != nil {
		return nil, err
	}

	goroutineCount, err := meter.Int64Gauge(
		"goroutines_active",
		metric.WithDescription("Number of active goroutines"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsManager{
		meter:            meter,
		eventsDispatched: eventsDispatched,
		eventsUnknown:    eventsUnknown,
		framesSent:       framesSent,
		framesFailed:     framesFailed,
		reconnects:       reconnects,
		stalls:           stalls,
		dispatchDuration: dispatchDuration,
		connectionState:  connectionState,
		memoryUsage:      memoryUsage,
		goroutineCount:   goroutineCount,
	}, nil
}

func (mm *MetricsManager) RecordEventDispatched(ctx context.Context, kind, agent string) {
	mm.eventsDispatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_kind", kind),
		attribute.String("agent", agent),
	))
}

func (mm *MetricsManager) RecordUnknownEvent(ctx context.Context, kind string) {
	mm.eventsUnknown.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_kind", kind),
	))
}

func (mm *MetricsManager) RecordFrameSent(ctx context.Context, frameType string) {
	mm.framesSent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("frame_type", frameType),
	))
}

func (mm *MetricsManager) RecordFrameFailed(ctx context.Context, frameType string) {
	mm.framesFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("frame_type", frameType),
	))
}

func (mm *MetricsManager) RecordReconnect(ctx context.Context, attempt int) {
	mm.reconnects.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("attempt", attempt),
	))
}

func (mm *MetricsManager) RecordStall(ctx context.Context, conversationID string) {
	mm.stalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("conversation_id", conversationID),
	))
}

func (mm *MetricsManager) RecordDispatchDuration(ctx context.Context, kind string, duration time.Duration) {
	mm.dispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("event_kind", kind),
	))
}

func (mm *MetricsManager) RecordConnectionState(ctx context.Context, state int) {
	mm.connectionState.Record(ctx, int64(state))
}

// UpdateSystemMetrics refreshes the process-level gauges.
func (mm *MetricsManager) UpdateSystemMetrics(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.memoryUsage.Record(ctx, int64(m.Alloc))
	mm.goroutineCount.Record(ctx, int64(runtime.NumGoroutine()))
}

// StartTimer returns a function that records the elapsed time since the call
// as a dispatch duration sample.
func (mm *MetricsManager) StartTimer(ctx context.Context, kind string) func() {
	start := time.Now()
	return func() {
		mm.RecordDispatchDuration(ctx, kind, time.Since(start))
	}
}

// MetricsTicker periodically refreshes system metrics.
type MetricsTicker struct {
	manager *MetricsManager
	ticker  *time.Ticker
	done    chan struct{}
}

func NewMetricsTicker(ctx context.Context, manager *MetricsManager) *MetricsTicker {
	mt := &MetricsTicker{
		manager: manager,
		ticker:  time.NewTicker(30 * time.Second),
		done:    make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-mt.ticker.C:
				manager.UpdateSystemMetrics(ctx)
			case <-mt.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return mt
}

func (mt *MetricsTicker) Stop() {
	mt.ticker.Stop()
	close(mt.done)
}
