// Package events publishes approval workflow events to NATS for external
// consumers (notification services, entity owners running out-of-process).
//
// Subject convention: approvals.workflow.<event_type>
// Event types: submitted, completed, rejected
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so event delivery failures never interrupt approval
// operations.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher publishes workflow events over a NATS connection. A Publisher
// with a nil connection is a no-op, so callers never need to branch on
// whether eventing is enabled.
type Publisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// WorkflowEvent is the JSON schema published to NATS.
type WorkflowEvent struct {
	EventType  string                 `json:"event_type"`
	TenantID   string                 `json:"tenant_id"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	ActorID    string                 `json:"actor_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Connect dials NATS and returns a live publisher.
func Connect(url string, log zerolog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("be-hrm-approvals"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{nc: nc, log: log}, nil
}

// Disabled returns a no-op publisher.
func Disabled(log zerolog.Logger) *Publisher {
	return &Publisher{log: log}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// PublishWorkflowEvent publishes one workflow event.
// Subject: approvals.workflow.<eventType>
func (p *Publisher) PublishWorkflowEvent(ctx context.Context, eventType, tenantID, entityType, entityID, actorID string, payload map[string]interface{}) {
	if p.nc == nil {
		return
	}

	event := &WorkflowEvent{
		EventType:  eventType,
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("events: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("approvals.workflow.%s", eventType)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("tenant_id", tenantID).
			Str("entity_id", entityID).
			Msg("events: failed to publish workflow event")
	}
}
