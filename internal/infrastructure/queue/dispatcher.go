// Package queue delivers notifications on a fixed set of background workers.
package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsportal/portal/internal/api/metrics"
	"github.com/opsportal/portal/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// Sink delivers one notification to its recipient.
type Sink interface {
	Deliver(ctx context.Context, n ports.Notification) error
}

// Dispatcher shards notifications across workers by recipient tenant, so the
// notifications of one tenant are delivered in the order they were raised.
// Notify never blocks: when the worker's channel is full the notification is
// dropped and counted.
type Dispatcher struct {
	workers []chan ports.Notification
	sink    Sink
	log     zerolog.Logger
}

var _ ports.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers, buffer int, sink Sink, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if buffer <= 0 {
		buffer = channelBuffer
	}
	d := &Dispatcher{
		workers: make([]chan ports.Notification, numWorkers),
		sink:    sink,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.Notification, buffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Notify hands n to the worker responsible for its recipient tenant.
func (d *Dispatcher) Notify(_ context.Context, n ports.Notification) {
	idx := d.shardIndex(n.RecipientTenantID)
	select {
	case d.workers[idx] <- n:
		metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.NotificationsTotal.WithLabelValues(n.Type, "dropped").Inc()
		d.log.Warn().
			Str("type", n.Type).
			Str("recipient_tenant_id", n.RecipientTenantID).
			Int("worker_id", idx).
			Msg("notification queue full, dropping")
	}
}

// shardIndex maps a tenant id deterministically to a worker index.
func (d *Dispatcher) shardIndex(tenantID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.Notification) {
	depth := metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			depth.Set(float64(len(ch)))

			start := time.Now()
			err := d.sink.Deliver(ctx, n)
			metrics.NotificationDeliveryDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.NotificationsTotal.WithLabelValues(n.Type, "failed").Inc()
				d.log.Error().Err(err).
					Str("type", n.Type).
					Str("recipient_tenant_id", n.RecipientTenantID).
					Int("worker_id", id).
					Msg("notification delivery failed")
				continue
			}
			metrics.NotificationsTotal.WithLabelValues(n.Type, "delivered").Inc()
		}
	}
}

// LogSink writes notifications to the structured log. It stands in for a real
// delivery channel in development.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Deliver(_ context.Context, n ports.Notification) error {
	ev := s.Log.Info().
		Str("type", n.Type).
		Str("recipient_tenant_id", n.RecipientTenantID).
		Str("recipient_user_id", n.RecipientUserID)
	for k, v := range n.Payload {
		ev = ev.Str(k, v)
	}
	ev.Msg("notification")
	return nil
}
