package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/port"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/logger"
)

// LogNotifier records delivery requests in the log instead of sending mail.
// The real mailer lives in the web application; this keeps the core runnable
// and testable without one. Codes are masked before logging.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a logging notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

// DeliverPasscode logs the delivery request with the code masked.
func (n *LogNotifier) DeliverPasscode(_ context.Context, delivery port.PasscodeDelivery) error {
	n.logger.Info("passcode delivery requested",
		zap.String("principal_id", delivery.PrincipalID),
		zap.String("principal_kind", string(delivery.PrincipalKind)),
		zap.String("purpose", string(delivery.Purpose)),
		zap.String("email", logger.MaskEmail(delivery.Email)),
		zap.String("code", logger.MaskSecret(delivery.Code)),
		zap.Time("expires_at", delivery.ExpiresAt),
	)
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
