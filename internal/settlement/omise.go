package settlement

import (
	"context"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

const (
	omiseAPI = "https://api.omise.co"

	// refundLookupLimit bounds how many existing refunds of a charge are
	// checked for a matching idempotency key.
	refundLookupLimit = 100
)

type omiseProvider struct {
	publicKey string
	secretKey string
	// endpoint overrides the API base URL when set.
	endpoint string
}

// NewOmiseProvider builds a provider that refunds Omise charges.
func NewOmiseProvider(publicKey, secretKey string) (Provider, error) {
	if _, err := omise.NewClient(publicKey, secretKey); err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	return &omiseProvider{publicKey: publicKey, secretKey: secretKey}, nil
}

func (p *omiseProvider) Name() string {
	return "omise"
}

// newClient returns a client bound to ctx. The SDK keeps the context on the
// client, so every request gets its own.
func (p *omiseProvider) newClient(ctx context.Context) (*omise.Client, error) {
	client, err := omise.NewClient(p.publicKey, p.secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	client.WithContext(ctx)
	if p.endpoint != "" {
		client.Endpoints[omiseAPI] = p.endpoint
	}
	return client, nil
}

func (p *omiseProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.ChargeID == "" {
		return nil, ErrNoCharge
	}
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if found, err := p.findRefund(client, req); err != nil || found != nil {
			return found, err
		}
	}

	refund := &omise.Refund{}
	op := &operations.CreateRefund{
		ChargeID: req.ChargeID,
		Amount:   req.Amount,
		Metadata: map[string]any{
			"booking_id":      req.BookingID,
			"idempotency_key": req.IdempotencyKey,
		},
	}
	if err := client.Do(refund, op); err != nil {
		return nil, fmt.Errorf("omise refund %s: %w", req.ChargeID, err)
	}
	return &RefundResult{Reference: refund.ID, Amount: refund.Amount}, nil
}

// findRefund returns the refund an earlier attempt already created under the
// same idempotency key, or nil.
func (p *omiseProvider) findRefund(client *omise.Client, req RefundRequest) (*RefundResult, error) {
	existing := &omise.RefundList{}
	list := &operations.ListRefunds{
		ChargeID: req.ChargeID,
		List:     operations.List{Limit: refundLookupLimit},
	}
	if err := client.Do(existing, list); err != nil {
		return nil, fmt.Errorf("omise list refunds %s: %w", req.ChargeID, err)
	}
	for _, refund := range existing.Data {
		if key, _ := refund.Metadata["idempotency_key"].(string); key == req.IdempotencyKey {
			return &RefundResult{Reference: refund.ID, Amount: refund.Amount}, nil
		}
	}
	return nil, nil
}
