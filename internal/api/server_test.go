package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/gallery-api/internal/auth"
	"github.com/vaidashi/gallery-api/internal/metrics"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/circuitbreaker"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
	"github.com/vaidashi/gallery-api/pkg/logger"
	"github.com/vaidashi/gallery-api/pkg/middleware"
	"github.com/vaidashi/gallery-api/pkg/ratelimit"
)

type staticSettings struct{}

func (staticSettings) Get(context.Context) (*models.SiteSettings, error) {
	s := models.DefaultSiteSettings()
	return &s, nil
}

func (staticSettings) Update(_ context.Context, s *models.SiteSettings) (*models.SiteSettings, error) {
	return s, nil
}

type testServer struct {
	server        *Server
	tokens        *auth.TokenIssuer
	orders        *fakeOrders
	commissions   *fakeCommissions
	payments      *fakePayments
	notifications *fakeNotifications
	deadLetters   *fakeDeadLetters
	breaker       *circuitbreaker.CircuitBreaker
}

func newTestServer(t *testing.T, mutate ...func(*Dependencies)) *testServer {
	t.Helper()

	ts := &testServer{
		tokens:        auth.NewTokenIssuer("test-secret", time.Hour, "gallery-test"),
		orders:        &fakeOrders{},
		commissions:   &fakeCommissions{},
		payments:      &fakePayments{},
		notifications: &fakeNotifications{},
		deadLetters: &fakeDeadLetters{messages: map[int64]*models.DeadLetterMessage{
			1: {ID: 1, Status: models.DeadLetterStatusPending},
			2: {ID: 2, Status: models.DeadLetterStatusDiscarded},
		}},
		breaker: circuitbreaker.New(circuitbreaker.Config{Name: "stripe", FailureThreshold: 1, ResetTimeout: time.Minute}),
	}

	deps := Dependencies{
		Orders:        ts.orders,
		Commissions:   ts.commissions,
		Payments:      ts.payments,
		Settings:      staticSettings{},
		Tokens:        ts.tokens,
		Notifications: ts.notifications,
		DeadLetters:   ts.deadLetters,
		Database:      fakePinger{},
		Breakers:      []*circuitbreaker.CircuitBreaker{ts.breaker},
		Metrics:       metrics.New(),
	}
	for _, m := range mutate {
		m(&deps)
	}

	ts.server = NewServer(0, deps, logger.NewNop())
	return ts
}

func (ts *testServer) token(t *testing.T, role models.Role) string {
	t.Helper()

	token, _, err := ts.tokens.Issue(&models.Customer{ID: models.GenerateID(), Email: "ada@example.com", Role: role})
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) ApiResponse {
	t.Helper()

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateOrder_IgnoresClientPrices(t *testing.T) {
	ts := newTestServer(t)

	body := `{
		"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com",
		"items": [{"id": "a-1", "price": 1}, {"id": "a-2", "price": 1}],
		"total": 2,
		"shippingAddress": {"line1": "12 Analytical Way", "city": "London", "postalCode": "N1 9GU", "country": "GB"}
	}`
	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), "")

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.orders.created, 1)

	in := ts.orders.created[0]
	assert.Equal(t, []string{"a-1", "a-2"}, in.ItemIDs)
	assert.Nil(t, in.Identity)
	assert.Equal(t, "London", in.ShippingAddress.City)
	assert.True(t, decodeResponse(t, rec).Success)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"items unavailable", apperrors.NewItemsUnavailableError("refresh your cart"), http.StatusConflict, "refresh your cart"},
		{"validation", apperrors.NewValidationError("email is required"), http.StatusBadRequest, "email is required"},
		{"unexpected", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.orders.createErr = tt.err

			rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"items":[]}`)), "")

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.msg, decodeResponse(t, rec).Error)
		})
	}
}

func TestCreateOrder_MalformedBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{`)), "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.orders.created)
}

func TestIdentityMiddleware(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil), ts.token(t, models.RoleCustomer))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.orders.listed, 2)
	assert.Equal(t, "ada@example.com", ts.orders.listed[1].Email)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil), "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, ts.orders.listed, 2)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	body := `{"status":"SHIPPED","trackingNumber":"TRK1"}`

	rec := ts.do(httptest.NewRequest(http.MethodPatch, "/api/v1/orders/o-1/status", strings.NewReader(body)), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodPatch, "/api/v1/orders/o-1/status", strings.NewReader(body)), ts.token(t, models.RoleCustomer))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ts.orders.updated)

	rec = ts.do(httptest.NewRequest(http.MethodPatch, "/api/v1/orders/o-1/status", strings.NewReader(body)), ts.token(t, models.RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.orders.updated, 1)
	require.NotNil(t, ts.orders.updated[0].Status)
	assert.Equal(t, models.OrderStatusShipped, *ts.orders.updated[0].Status)
	assert.Equal(t, "TRK1", *ts.orders.updated[0].TrackingNumber)
	assert.Nil(t, ts.orders.updated[0].InternalNotes)
}

func TestGetOrder_NotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.getErr = apperrors.NewNotFoundError("order not found")

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders/missing", nil), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "order not found", decodeResponse(t, rec).Error)
}

func TestPaymentWebhook(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"processed", nil, http.StatusOK},
		{"bad signature", apperrors.NewSignatureInvalidError("webhook signature verification failed"), http.StatusBadRequest},
		{"reconcile failure", apperrors.NewNotFoundError("order not found"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.payments.webhookErr = tt.err

			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(`{"id":"evt_1"}`))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			rec := ts.do(req, "")

			assert.Equal(t, tt.code, rec.Code)
			require.Len(t, ts.payments.payloads, 1)
			assert.Equal(t, `{"id":"evt_1"}`, ts.payments.payloads[0])
			assert.Equal(t, "t=1,v1=abc", ts.payments.signatures[0])
		})
	}
}

func TestCreatePaymentIntents(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/payments/create-intent", strings.NewReader(`{"orderId":"o-1"}`)), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"clientSecret":"pi_1_secret"`)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/payments/commission-payment",
		strings.NewReader(`{"commissionId":"c-1","paymentType":"deposit"}`)), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount":"450"`)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/payments/commission-payment",
		strings.NewReader(`{"commissionId":"c-1","paymentType":"tip"}`)), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := w.CreateFormFile(fileField, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func TestCreateCommission_Multipart(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{
		"firstName":   "Grace",
		"lastName":    "Hopper",
		"email":       "grace@example.com",
		"style":       "realistic",
		"size":        "medium",
		"description": "Harbour at dusk",
		"deadline":    "2031-05-01",
	}, "referenceImages", map[string]string{"harbour.jpg": "jpeg-bytes"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/commissions", body)
	req.Header.Set("Content-Type", contentType)
	rec := ts.do(req, "")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, ts.commissions.created, 1)

	in := ts.commissions.created[0]
	assert.Equal(t, "realistic", in.Style)
	require.NotNil(t, in.Deadline)
	assert.Equal(t, 2031, in.Deadline.Year())
	assert.Equal(t, []receivedUpload{{Filename: "harbour.jpg", Body: "jpeg-bytes"}}, ts.commissions.uploads)
}

func TestCreateCommission_BadDeadline(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{"deadline": "next week"}, "referenceImages", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commissions", body)
	req.Header.Set("Content-Type", contentType)

	rec := ts.do(req, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.commissions.created)
}

func TestAddProgressImage(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{"description": "First wash"}, "image", map[string]string{"wash.jpg": "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commissions/c-1/progress", body)
	req.Header.Set("Content-Type", contentType)

	rec := ts.do(req, ts.token(t, models.RoleAdmin))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"wash.jpg:First wash"}, ts.commissions.progress)
}

func TestMyCommissionsRequiresIdentity(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/commissions/my-commissions", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/commissions/my-commissions", nil), ts.token(t, models.RoleCustomer))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/commissions", nil), ts.token(t, models.RoleCustomer))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNotifications(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(t, models.RoleAdmin)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?unread=true", nil), admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unreadCount":1`)

	rec = ts.do(httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/n-1/read", nil), admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"n-1"}, ts.notifications.read)

	rec = ts.do(httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/missing/read", nil), admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read-all", nil), admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"updated":3`)
}

func TestDeadLetterAdmin(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(t, models.RoleAdmin)

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/admin/dead-letters/1/retry", nil), admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/admin/dead-letters/2/retry", nil), admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{2}, ts.deadLetters.requeued)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/admin/dead-letters/9/retry", nil), admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/admin/dead-letters/1/discard", strings.NewReader(`{"reason":"bad address"}`)), admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bad address", ts.deadLetters.discarded[1])

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/dead-letters", nil), admin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	ts.breaker.Failure()
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/admin/circuit-breakers/stripe/reset", nil), ts.token(t, models.RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, circuitbreaker.StateClosed, ts.breaker.GetState())

	down := newTestServer(t, func(d *Dependencies) { d.Database = fakePinger{err: errors.New("connection refused")} })
	rec = down.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPublicWritesAreRateLimited(t *testing.T) {
	limiter := ratelimit.NewIPRateLimiter(0.001, 1, time.Minute)
	t.Cleanup(limiter.Stop)

	ts := newTestServer(t, func(d *Dependencies) {
		d.RateLimiter = middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{}, limiter, logger.NewNop())
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/create-intent", strings.NewReader(`{"orderId":"o-1"}`))
		return ts.do(req, "").Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil), "")
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gallery_http_request_duration_seconds")
}
