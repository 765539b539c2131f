package settlement

import (
	"context"

	"go.uber.org/zap"
)

// manualProvider records refunds for back-office handling when no processor
// credentials are configured. It always acknowledges.
type manualProvider struct {
	logger *zap.Logger
}

// NewManualProvider returns a provider that only logs refund instructions.
func NewManualProvider(logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &manualProvider{logger: logger}
}

func (p *manualProvider) Name() string {
	return "manual"
}

func (p *manualProvider) Refund(_ context.Context, req RefundRequest) (*RefundResult, error) {
	p.logger.Warn("manual refund required",
		zap.String("booking_id", req.BookingID),
		zap.String("charge_id", req.ChargeID),
		zap.Int64("amount", req.Amount),
		zap.String("currency", req.Currency),
	)
	return &RefundResult{Reference: "manual-" + req.IdempotencyKey, Amount: req.Amount}, nil
}
