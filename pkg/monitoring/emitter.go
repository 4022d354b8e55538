// Package monitoring publishes drift reports and orchestrator state
// transitions to the observability collaborator. The core emits structured
// events; it renders no dashboards.
package monitoring

import (
	"context"
	"sync"

	"github.com/diagnoml/platform/pkg/common/kafka"
	"github.com/diagnoml/platform/pkg/common/logger"
)

const (
	EventDriftReport     = "drift.report"
	EventStateTransition = "orchestrator.transition"
	EventModelPromoted   = "model.promoted"
	EventModelRejected   = "model.rejected"
	EventTrainingSkipped = "training.skipped"
	EventRecordIngested  = "record.ingested"
)

type Emitter interface {
	Emit(ctx context.Context, eventType string, data map[string]interface{})
}

// KafkaEmitter publishes monitoring events to the configured topic. A
// failed publish is logged and dropped: monitoring must never block or
// fail the control loop.
type KafkaEmitter struct {
	producer *kafka.Producer
	source   string
}

func NewKafkaEmitter(producer *kafka.Producer, source string) *KafkaEmitter {
	return &KafkaEmitter{producer: producer, source: source}
}

func (e *KafkaEmitter) Emit(ctx context.Context, eventType string, data map[string]interface{}) {
	if err := e.producer.PublishEvent(ctx, eventType, e.source, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("monitoring event dropped")
	}
}

// MemoryEmitter captures events for tests.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []CapturedEvent
}

type CapturedEvent struct {
	Type string
	Data map[string]interface{}
}

func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

func (e *MemoryEmitter) Emit(_ context.Context, eventType string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, CapturedEvent{Type: eventType, Data: data})
}

func (e *MemoryEmitter) Events() []CapturedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]CapturedEvent(nil), e.events...)
}
