// Package listener applies asynchronous payment-processor notifications
// delivered over RabbitMQ.
package listener

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/apperr"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/service"
	"github.com/Shivanand-hulikatti/event-admission-ledger/pkg/rabbitmq"
)

// Routing keys of processor notifications.
const (
	RoutingCaptureCompleted = "gateway.capture.completed"
	RoutingCaptureDenied    = "gateway.capture.denied"
)

// CaptureApplier is the slice of the payment ledger the listener drives.
type CaptureApplier interface {
	ApplyCaptureCompleted(ctx context.Context, n service.CaptureNotification) error
	ApplyCaptureDenied(ctx context.Context, n service.CaptureNotification) error
}

// GatewayEvents turns queue deliveries into payment status changes.
type GatewayEvents struct {
	ledger CaptureApplier
	logger *slog.Logger
}

// NewGatewayEvents constructs a GatewayEvents listener.
func NewGatewayEvents(ledger CaptureApplier, logger *slog.Logger) *GatewayEvents {
	return &GatewayEvents{ledger: ledger, logger: logger}
}

// Bindings maps routing keys to handlers for rabbitmq.Consumer.
func (g *GatewayEvents) Bindings() map[string]rabbitmq.Handler {
	return map[string]rabbitmq.Handler{
		RoutingCaptureCompleted: g.handle(RoutingCaptureCompleted, g.ledger.ApplyCaptureCompleted),
		RoutingCaptureDenied:    g.handle(RoutingCaptureDenied, g.ledger.ApplyCaptureDenied),
	}
}

func (g *GatewayEvents) handle(key string, apply func(context.Context, service.CaptureNotification) error) rabbitmq.Handler {
	return func(ctx context.Context, body []byte) bool {
		var n service.CaptureNotification
		if err := json.Unmarshal(body, &n); err != nil || n.PaymentID == uuid.Nil {
			// A malformed message will never succeed; drop it.
			g.logger.Error("malformed gateway event dropped", "routing_key", key, "error", err)
			return true
		}
		if err := apply(ctx, n); err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindNotFound, apperr.KindValidation:
				g.logger.Warn("gateway event rejected", "routing_key", key, "payment_id", n.PaymentID, "error", err)
				return true
			}
			g.logger.Error("gateway event failed; will retry", "routing_key", key, "payment_id", n.PaymentID, "error", err)
			return false
		}
		g.logger.Info("gateway event applied", "routing_key", key, "payment_id", n.PaymentID)
		return true
	}
}
