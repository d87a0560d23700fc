// Package jobs wires background work through Asynq: domain event dispatch
// and the scheduled general ledger integrity sweep.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeDomainEvent carries one domain event emitted after commit.
	TaskTypeDomainEvent = "event:dispatch"
	// TaskTypeGLIntegrity runs the ledger integrity sweep.
	TaskTypeGLIntegrity = "ledger:integrity"
)

// DomainEventPayload is the wire form of a domain event.
type DomainEventPayload struct {
	Name string         `json:"name"`
	Meta map[string]any `json:"meta,omitempty"`
}

// NewDomainEventTask constructs an Asynq task for one domain event.
func NewDomainEventTask(payload DomainEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDomainEvent, data), nil
}

// NewGLIntegrityTask constructs the integrity sweep task.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskTypeGLIntegrity, nil)
}

// DomainEventHandler processes dispatched domain events. Today the events
// land in the structured log; downstream consumers subscribe here.
type DomainEventHandler struct {
	logger *slog.Logger
}

// NewDomainEventHandler constructs a DomainEventHandler.
func NewDomainEventHandler(logger *slog.Logger) *DomainEventHandler {
	return &DomainEventHandler{logger: logger}
}

// Handle processes TaskTypeDomainEvent tasks.
func (h *DomainEventHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DomainEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if h.logger != nil {
		h.logger.Info("domain event", slog.String("event", payload.Name), slog.Any("meta", payload.Meta))
	}
	return nil
}
