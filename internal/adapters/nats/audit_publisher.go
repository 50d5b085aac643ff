package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/config"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

// AuditPublisherAdapter emits moderation audit events to a NATS JetStream
// subject. One event is published per fleet dispatch; delivery is
// best-effort and a publish failure never affects the dispatch outcome.
type AuditPublisherAdapter struct {
	nc            *nats.Conn
	js            nats.JetStreamContext
	logger        domain.Logger
	subjectPrefix string
}

// NewAuditPublisherAdapter connects to NATS and prepares the JetStream
// context. The returned cleanup drains and closes the connection.
func NewAuditPublisherAdapter(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*AuditPublisherAdapter, func(), error) {
	appCfg := cfgProvider.Get()
	natsCfg := appCfg.NATS

	appLogger.Info(ctx, "Attempting to connect to NATS server", "url", natsCfg.URL)

	nc, err := nats.Connect(natsCfg.URL,
		nats.Name(fmt.Sprintf("%s-audit", appCfg.App.ServiceName)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.ClosedHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS connection closed")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			appLogger.Warn(ctx, "NATS disconnected", "error", err)
		}),
	)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to NATS", "url", natsCfg.URL, "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsCfg.URL, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	adapter := &AuditPublisherAdapter{
		nc:            nc,
		js:            js,
		logger:        appLogger,
		subjectPrefix: natsCfg.SubjectPrefix,
	}

	cleanup := func() {
		appLogger.Info(context.Background(), "Draining NATS connection...")
		if err := nc.Drain(); err != nil {
			appLogger.Warn(context.Background(), "NATS drain failed", "error", err.Error())
			nc.Close()
		}
	}
	return adapter, cleanup, nil
}

// PublishModerationEvent publishes one audit event on
// <prefix>.audit.<action>.
func (a *AuditPublisherAdapter) PublishModerationEvent(ctx context.Context, event domain.ModerationAuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	subject := fmt.Sprintf("%s.audit.%s", a.subjectPrefix, event.Action)
	if _, err := a.js.Publish(subject, payload, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish audit event to %s: %w", subject, err)
	}
	a.logger.Debug(ctx, "Audit event published",
		"subject", subject,
		"operation_id", event.OperationID,
	)
	return nil
}

// NoopAuditPublisher satisfies domain.AuditPublisher when no NATS URL is
// configured.
type NoopAuditPublisher struct{}

// PublishModerationEvent discards the event.
func (NoopAuditPublisher) PublishModerationEvent(ctx context.Context, event domain.ModerationAuditEvent) error {
	return nil
}
