package api

import (
	"io"
	"net/http"

	"github.com/vaidashi/gallery-api/internal/models"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
)

// maxWebhookBody matches the gateway's documented maximum payload size
const maxWebhookBody = 65536

type createIntentRequest struct {
	OrderID string `json:"orderId"`
}

type commissionPaymentRequest struct {
	CommissionID string `json:"commissionId"`
	PaymentType  string `json:"paymentType"`
}

// createPaymentIntentHandler starts payment of an order's stored total
func (s *Server) createPaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	result, err := s.deps.Payments.CreateOrderIntent(r.Context(), req.OrderID)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

// createCommissionPaymentHandler starts a deposit or balance payment
func (s *Server) createCommissionPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req commissionPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	result, err := s.deps.Payments.CreateCommissionIntent(r.Context(), req.CommissionID, models.PaymentType(req.PaymentType))
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

// paymentWebhookHandler verifies and reconciles a gateway event.
// 200 acknowledges (including duplicates), 400 rejects a bad signature and
// 500 leaves the event for the gateway to redeliver.
func (s *Server) paymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	r.Body.Close()
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	err = s.deps.Payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))

	switch {
	case err == nil:
		s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]bool{"received": true}})
	case apperrors.Is(err, apperrors.ErrSignatureInvalid):
		s.logger.Warn("Rejected payment webhook", "error", err, "remoteAddr", r.RemoteAddr)
		s.respondWithError(w, http.StatusBadRequest, "Webhook signature verification failed")
	default:
		s.respondWithError(w, http.StatusInternalServerError, "Webhook processing failed")
	}
}
