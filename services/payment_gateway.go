package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"
)

// ErrPaymentDeclined is returned by a gateway when the payer's method was refused.
var ErrPaymentDeclined = errors.New("payment declined")

// ChargeRequest describes a charge of the order total.
type ChargeRequest struct {
	OrderID        string
	OrderNo        string
	Amount         int64
	PaymentMethod  string
	IdempotencyKey uuid.UUID
}

// ChargeResult is the gateway's record of a successful charge.
type ChargeResult struct {
	Reference string
}

// RefundRequest describes a refund of a previous charge.
type RefundRequest struct {
	OrderID   string
	Reference string
	Amount    int64
	Reason    string
}

// RefundResult is the gateway's record of a refund.
type RefundResult struct {
	Reference string
}

// freeProvider is recorded for orders whose total is zero. No gateway is called for them.
const freeProvider = "free"

// PaymentGateway charges and refunds order payments.
type PaymentGateway interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey   string
	Currency string
	Backends *stripe.Backends
	Logger   *zap.Logger
	clients  *stripeClients
}

// StripeGateway charges confirmed PaymentIntents through Stripe.
type StripeGateway struct {
	api      stripeClients
	currency string
	logger   *zap.Logger
}

// NewStripeGateway constructs a Stripe backed gateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.clients != nil {
		clients = *cfg.clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "cny"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StripeGateway{api: clients, currency: currency, logger: logger}, nil
}

// Name implements PaymentGateway.
func (g *StripeGateway) Name() string {
	return "stripe"
}

// Charge creates and confirms a PaymentIntent for the order total.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if req.Amount <= 0 {
		return ChargeResult{}, errors.New("stripe: charge amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(g.currency),
		Confirm:  stripe.Bool(true),
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethod)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey.String())
	params.AddMetadata("orderId", req.OrderID)
	params.AddMetadata("orderNo", req.OrderNo)

	intent, err := g.api.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return ChargeResult{}, fmt.Errorf("%w: %s", ErrPaymentDeclined, stripeErr.Msg)
		}
		return ChargeResult{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		g.logger.Info("payment intent not settled",
			zap.String("orderId", req.OrderID),
			zap.String("paymentIntent", intent.ID),
			zap.String("status", string(intent.Status)),
		)
		return ChargeResult{}, fmt.Errorf("%w: payment intent %s is %s", ErrPaymentDeclined, intent.ID, intent.Status)
	}

	g.logger.Info("payment intent succeeded",
		zap.String("orderId", req.OrderID),
		zap.String("paymentIntent", intent.ID),
	)
	return ChargeResult{Reference: intent.ID}, nil
}

// Refund refunds a PaymentIntent.
func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return RefundResult{}, errors.New("stripe: payment intent reference is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.Reference),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + req.OrderID)
	params.AddMetadata("orderId", req.OrderID)
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	refund, err := g.api.refunds.New(params)
	if err != nil {
		return RefundResult{}, fmt.Errorf("stripe: create refund: %w", err)
	}

	g.logger.Info("refund created",
		zap.String("orderId", req.OrderID),
		zap.String("refund", refund.ID),
		zap.String("status", string(refund.Status)),
	)
	return RefundResult{Reference: refund.ID}, nil
}

// MockGateway is an in-memory PaymentGateway used in development and tests.
// Charges repeated with the same idempotency key return the first result.
type MockGateway struct {
	mu          sync.Mutex
	charges     map[uuid.UUID]ChargeResult
	refunds     []RefundRequest
	DeclineAll  bool
	FailRefunds bool
}

// NewMockGateway creates an empty mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{charges: make(map[uuid.UUID]ChargeResult)}
}

// Name implements PaymentGateway.
func (m *MockGateway) Name() string {
	return "mock"
}

// Charge implements PaymentGateway.
func (m *MockGateway) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeclineAll {
		return ChargeResult{}, ErrPaymentDeclined
	}
	if result, ok := m.charges[req.IdempotencyKey]; ok {
		return result, nil
	}
	result := ChargeResult{Reference: "mock_pi_" + req.IdempotencyKey.String()}
	m.charges[req.IdempotencyKey] = result
	return result, nil
}

// Refund implements PaymentGateway.
func (m *MockGateway) Refund(_ context.Context, req RefundRequest) (RefundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailRefunds {
		return RefundResult{}, errors.New("mock gateway: refund failed")
	}
	m.refunds = append(m.refunds, req)
	return RefundResult{Reference: fmt.Sprintf("mock_re_%d", len(m.refunds))}, nil
}

// Charges returns the number of distinct charges made.
func (m *MockGateway) Charges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.charges)
}

// Refunds returns the refunds issued so far.
func (m *MockGateway) Refunds() []RefundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RefundRequest, len(m.refunds))
	copy(out, m.refunds)
	return out
}

// SetFailRefunds toggles refund failures.
func (m *MockGateway) SetFailRefunds(fail bool) {
	m.mu.Lock()
	m.FailRefunds = fail
	m.mu.Unlock()
}
