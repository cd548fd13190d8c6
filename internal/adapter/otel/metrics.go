package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ssepush"

// Metrics holds all push broker metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Connects          metric.Int64Counter
	Disconnects       metric.Int64Counter
	HandshakeFailures metric.Int64Counter
	Deliveries        metric.Int64Counter
	DeliveryFailures  metric.Int64Counter
	FanoutSize        metric.Int64Histogram

	meter metric.Meter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}
	var err error

	m.Connects, err = meter.Int64Counter("ssepush.connects",
		metric.WithDescription("Number of streams registered"))
	if err != nil {
		return nil, err
	}

	m.Disconnects, err = meter.Int64Counter("ssepush.disconnects",
		metric.WithDescription("Number of streams removed, by reason"))
	if err != nil {
		return nil, err
	}

	m.HandshakeFailures, err = meter.Int64Counter("ssepush.handshake.failures",
		metric.WithDescription("Number of connects rejected because the handshake write failed"))
	if err != nil {
		return nil, err
	}

	m.Deliveries, err = meter.Int64Counter("ssepush.deliveries",
		metric.WithDescription("Number of events written to a stream"))
	if err != nil {
		return nil, err
	}

	m.DeliveryFailures, err = meter.Int64Counter("ssepush.delivery.failures",
		metric.WithDescription("Number of failed event writes"))
	if err != nil {
		return nil, err
	}

	m.FanoutSize, err = meter.Int64Histogram("ssepush.fanout.size",
		metric.WithDescription("Recipients per batch or broadcast"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveConnections registers an asynchronous gauge reporting count().
func (m *Metrics) ObserveConnections(count func() int) error {
	if m == nil {
		return nil
	}
	_, err := m.meter.Int64ObservableGauge("ssepush.connections",
		metric.WithDescription("Live streams in the registry"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(count()))
			return nil
		}))
	return err
}

// ObserveLogDrops registers a counter reporting log records discarded by the
// async log handler.
func (m *Metrics) ObserveLogDrops(dropped func() int64) error {
	if m == nil {
		return nil
	}
	_, err := m.meter.Int64ObservableCounter("ssepush.log.dropped",
		metric.WithDescription("Log records dropped because the async queue was full"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(dropped())
			return nil
		}))
	return err
}

// RecordConnect counts a registered stream.
func (m *Metrics) RecordConnect(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.Connects.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transport)))
}

// RecordDisconnect counts a removed stream.
func (m *Metrics) RecordDisconnect(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.Disconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordHandshakeFailure counts a rejected connect.
func (m *Metrics) RecordHandshakeFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.HandshakeFailures.Add(ctx, 1)
}

// RecordDelivery counts one write attempt. mode is "user" or "broadcast".
func (m *Metrics) RecordDelivery(ctx context.Context, mode string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	if err != nil {
		m.DeliveryFailures.Add(ctx, 1, attrs)
		return
	}
	m.Deliveries.Add(ctx, 1, attrs)
}

// RecordFanout records the recipient count of a batch or broadcast.
func (m *Metrics) RecordFanout(ctx context.Context, mode string, n int) {
	if m == nil {
		return
	}
	m.FanoutSize.Record(ctx, int64(n), metric.WithAttributes(attribute.String("mode", mode)))
}
