package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/circuitbreaker"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
	"github.com/vaidashi/gallery-api/pkg/logger"
	"github.com/vaidashi/gallery-api/pkg/retry"
)

// Gateway is the payment processor boundary used by the reconciler
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error)
	GetIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error)
	CancelIntent(ctx context.Context, intentID string) error
	VerifyWebhook(payload []byte, signatureHeader string) (*models.PaymentEvent, error)
}

// IntentClient is the part of the Stripe client the gateway calls
type IntentClient interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// Config holds the Stripe credentials and resilience settings
type Config struct {
	SecretKey     string
	WebhookSecret string
	MaxAttempts   int
	Backoff       retry.BackoffStrategy
}

// StripeGateway creates payment intents and verifies webhooks against Stripe
type StripeGateway struct {
	intents       IntentClient
	webhookSecret string
	breaker       *circuitbreaker.CircuitBreaker
	retryConfig   *retry.RetryConfig
	logger        logger.Logger
}

// NewStripeGateway creates a gateway backed by the Stripe API
func NewStripeGateway(cfg Config, logger logger.Logger) *StripeGateway {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)

	return NewGateway(sc.PaymentIntents, cfg, logger)
}

// NewGateway builds a gateway around any intent client
func NewGateway(intents IntentClient, cfg Config, logger logger.Logger) *StripeGateway {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	backoff := cfg.Backoff
	if backoff == nil {
		backoff = &retry.ExponentialBackoff{
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2,
		}
	}

	return &StripeGateway{
		intents:       intents,
		webhookSecret: cfg.WebhookSecret,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "stripe",
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		retryConfig: &retry.RetryConfig{
			MaxAttempts:     cfg.MaxAttempts,
			BackoffStrategy: backoff,
			Logger:          logger,
			ShouldRetry:     isTransient,
		},
		logger: logger,
	}
}

// Breaker exposes the gateway's circuit breaker for health reporting
func (g *StripeGateway) Breaker() *circuitbreaker.CircuitBreaker {
	return g.breaker
}

// CreateIntent creates a payment intent for amount minor units. Failures surface as UpstreamGatewayError.
func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	if amount <= 0 {
		return nil, apperrors.NewValidationError("payment amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	var intent *stripe.PaymentIntent

	err := g.call(ctx, func() error {
		var err error
		intent, err = g.intents.New(params)
		return err
	})

	if err != nil {
		g.logger.Error("Failed to create payment intent", "error", err, "amount", amount, "currency", currency)
		return nil, upstreamError(err)
	}

	return toPaymentIntent(intent), nil
}

// GetIntent retrieves a previously created intent with its current status
func (g *StripeGateway) GetIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	var intent *stripe.PaymentIntent

	err := g.call(ctx, func() error {
		var err error
		intent, err = g.intents.Get(intentID, params)
		return err
	})

	if err != nil {
		g.logger.Error("Failed to retrieve payment intent", "error", err, "intentID", intentID)
		return nil, upstreamError(err)
	}

	return toPaymentIntent(intent), nil
}

// CancelIntent cancels an open intent so it can no longer be paid
func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String("duplicate"),
	}
	params.Context = ctx

	err := g.call(ctx, func() error {
		_, err := g.intents.Cancel(intentID, params)
		return err
	})

	if err != nil {
		g.logger.Error("Failed to cancel payment intent", "error", err, "intentID", intentID)
		return upstreamError(err)
	}

	g.logger.Info("Payment intent cancelled", "intentID", intentID)
	return nil
}

// call runs one Stripe request through the retry policy and the circuit breaker
func (g *StripeGateway) call(ctx context.Context, fn func() error) error {
	return retry.Retry(ctx, func() error {
		return g.breaker.Execute(fn, isTransient)
	}, g.retryConfig)
}

func upstreamError(err error) error {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return apperrors.NewUpstreamGatewayError("payment provider temporarily unavailable", true)
	}
	return apperrors.NewUpstreamGatewayError("payment provider request failed", isTransient(err))
}

func toPaymentIntent(intent *stripe.PaymentIntent) *models.PaymentIntent {
	metadata := make(map[string]string, len(intent.Metadata))
	for k, v := range intent.Metadata {
		metadata[k] = v
	}

	return &models.PaymentIntent{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     string(intent.Currency),
		Status:       string(intent.Status),
		Metadata:     metadata,
	}
}

// VerifyWebhook checks the Stripe-Signature header and decodes payment intent events.
// Any verification failure is a SignatureInvalid error and nothing should be mutated.
func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*models.PaymentEvent, error) {
	if g.webhookSecret == "" {
		return nil, apperrors.NewSignatureInvalidError("webhook secret not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})

	if err != nil {
		g.logger.Warn("Rejected webhook with invalid signature", "error", err)
		return nil, apperrors.NewSignatureInvalidError("invalid webhook signature")
	}

	result := &models.PaymentEvent{
		EventID:  event.ID,
		Type:     string(event.Type),
		Metadata: map[string]string{},
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return result, nil
	}

	if result.Type != models.EventPaymentSucceeded && result.Type != models.EventPaymentFailed {
		return result, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("malformed payment intent payload: %v", err))
	}

	result.IntentID = intent.ID
	result.AmountReceived = intent.AmountReceived
	if result.AmountReceived == 0 && result.Type == models.EventPaymentSucceeded {
		result.AmountReceived = intent.Amount
	}
	for k, v := range intent.Metadata {
		result.Metadata[k] = v
	}

	return result, nil
}

// isTransient reports whether a Stripe error is worth retrying
func isTransient(err error) bool {
	var stripeErr *stripe.Error

	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode >= 500 {
			return true
		}
		return stripeErr.Type == stripe.ErrorTypeAPI
	}

	return !errors.Is(err, circuitbreaker.ErrOpen)
}
