package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "rtsgarrison.dev/internal/telemetry"

// Meter returns the global meter for this module.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// ContainMetrics records containment counters. It satisfies contain.Metrics.
type ContainMetrics struct {
	ctx context.Context

	admitted   metric.Int64Counter
	rejected   metric.Int64Counter
	evicted    metric.Int64Counter
	redeployed metric.Int64Counter
	slotMiss   metric.Int64Counter
	tick       metric.Int64Histogram
}

func NewContainMetrics(m metric.Meter) (*ContainMetrics, error) {
	cm := &ContainMetrics{ctx: context.Background()}
	var err error

	cm.admitted, err = m.Int64Counter(
		"garrison.admitted",
		metric.WithDescription("Occupants admitted into a container"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating admitted counter: %w", err)
	}
	cm.rejected, err = m.Int64Counter(
		"garrison.rejected",
		metric.WithDescription("Admission attempts rejected, by reason code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}
	cm.evicted, err = m.Int64Counter(
		"garrison.evicted",
		metric.WithDescription("Occupants removed from a container"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating evicted counter: %w", err)
	}
	cm.redeployed, err = m.Int64Counter(
		"garrison.redeployed",
		metric.WithDescription("Full slot re-derivations after a condition change"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating redeployed counter: %w", err)
	}
	cm.slotMiss, err = m.Int64Counter(
		"garrison.slot_miss",
		metric.WithDescription("Occupants that started waiting for a free slot"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating slot_miss counter: %w", err)
	}
	cm.tick, err = m.Int64Histogram(
		"garrison.tick_duration_us",
		metric.WithDescription("Wall time of one simulation tick"),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick histogram: %w", err)
	}
	return cm, nil
}

func (m *ContainMetrics) Admitted(template string) {
	m.admitted.Add(m.ctx, 1, metric.WithAttributes(attribute.String("template", template)))
}

func (m *ContainMetrics) Rejected(reason string) {
	m.rejected.Add(m.ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *ContainMetrics) Evicted()    { m.evicted.Add(m.ctx, 1) }
func (m *ContainMetrics) Redeployed() { m.redeployed.Add(m.ctx, 1) }
func (m *ContainMetrics) SlotMiss()   { m.slotMiss.Add(m.ctx, 1) }

func (m *ContainMetrics) TickDuration(d time.Duration) {
	m.tick.Record(m.ctx, d.Microseconds())
}
