package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ledgerline/be-approvals/internal/workflow"
)

// NotificationPublisher publishes approval workflow events to NATS for
// consumption by the platform notifications service.
//
// Subject convention: approvals.invoice.<event_type>
// Event types: step_pending, approved, rejected, cancelled
//
// All publish operations are non-fatal. Errors are logged and swallowed, so
// a notification failure can never invalidate a committed state transition.
type NotificationPublisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType   string `json:"event_type"`
	TenantID    string `json:"tenant_id"`
	ExecutionID string `json:"execution_id"`
	InvoiceID   string `json:"invoice_id"`
	Status      string `json:"status"`
	StepOrder   int    `json:"step_order,omitempty"`
	StepRole    string `json:"step_role,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(nc *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nc: nc, log: log}
}

// OnStepPending announces that a step is awaiting a human decision.
func (p *NotificationPublisher) OnStepPending(_ context.Context, exec *workflow.WorkflowExecution, stepOrder int) {
	event := &NotificationEvent{
		EventType:   "step_pending",
		TenantID:    exec.TenantID,
		ExecutionID: exec.ID,
		InvoiceID:   exec.InvoiceID,
		Status:      string(exec.Status),
		StepOrder:   stepOrder,
	}
	if step := exec.Step(stepOrder); step != nil {
		event.StepRole = step.ApproverRole
	}
	p.publish(event)
}

// OnResolved announces that an execution reached a terminal state.
func (p *NotificationPublisher) OnResolved(_ context.Context, exec *workflow.WorkflowExecution) {
	p.publish(&NotificationEvent{
		EventType:   string(exec.Status),
		TenantID:    exec.TenantID,
		ExecutionID: exec.ID,
		InvoiceID:   exec.InvoiceID,
		Status:      string(exec.Status),
	})
}

func (p *NotificationPublisher) publish(event *NotificationEvent) {
	if p.nc == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("approvals.invoice.%s", event.EventType)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("execution_id", event.ExecutionID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("execution_id", event.ExecutionID).
		Msg("notification: event published")
}
