package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/storeforge/api/internal/platform/httpx"
	"github.com/storeforge/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// WebhookHandlers receives asynchronous settlement notifications from
// payment processors and hands them to the reconciliation service.
type WebhookHandlers struct {
	webhooks     services.WebhookService
	stripeSecret string
}

// WebhookOption customises the webhook handlers.
type WebhookOption func(*WebhookHandlers)

// WithStripeSigningSecret enables Stripe-Signature verification. Without a
// secret the signature check is skipped and only transport-level HMAC
// middleware protects the endpoint.
func WithStripeSigningSecret(secret string) WebhookOption {
	return func(h *WebhookHandlers) {
		h.stripeSecret = strings.TrimSpace(secret)
	}
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(webhooks services.WebhookService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{webhooks: webhooks}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
	r.Post("/paypal", h.handlePayPal)
	r.Post("/bank-transfer", h.handleBankTransfer)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.readWebhookBody(ctx, w, r)
	if !ok {
		return
	}

	if h.stripeSecret != "" {
		signature := r.Header.Get("Stripe-Signature")
		// Stripe sends events at the account's configured API version, which
		// rarely matches the SDK's pinned one. Signature validity is what
		// gates the endpoint.
		_, err := webhook.ConstructEventWithOptions(body, signature, h.stripeSecret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
	}

	h.process(ctx, w, "stripe", body)
}

func (h *WebhookHandlers) handlePayPal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.readWebhookBody(ctx, w, r)
	if !ok {
		return
	}
	h.process(ctx, w, "paypal", body)
}

func (h *WebhookHandlers) handleBankTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.readWebhookBody(ctx, w, r)
	if !ok {
		return
	}
	h.process(ctx, w, "bank_transfer", body)
}

func (h *WebhookHandlers) readWebhookBody(ctx context.Context, w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if h.webhooks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_service_unavailable", "webhook service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		}
		return nil, false
	}
	return body, true
}

func (h *WebhookHandlers) process(ctx context.Context, w http.ResponseWriter, processor string, body []byte) {
	if err := h.webhooks.Process(ctx, processor, body); err != nil {
		if errors.Is(err, services.ErrWebhookInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		// Any non-2xx makes the processor retry; a 400 keeps the whole
		// endpoint on one error envelope.
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusBadRequest))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"received": true})
}
