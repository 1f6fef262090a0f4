package auth

import (
	"context"

	"github.com/vaidashi/gallery-api/internal/models"
)

// Identity is the authenticated caller attached to a request
type Identity struct {
	CustomerID string      `json:"customerId"`
	Email      string      `json:"email"`
	Role       models.Role `json:"role"`
}

// IsAdmin reports whether the caller may use back-office operations
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == models.RoleAdmin
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or nil for anonymous callers
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}
