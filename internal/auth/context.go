// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"

	"github.com/adiadia/tracker/internal/domain"
)

type userIDContextKey struct{}
type principalContextKey struct{}

var ctxUserIDKey userIDContextKey
var ctxPrincipalKey principalContextKey

// Principal is an authenticated caller and its request budget.
type Principal struct {
	UserID            domain.UserID
	MaxRequestsPerMin int
}

// WithUserID stores the acting user on the context.
func WithUserID(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

// WithPrincipal stores the resolved principal and its user on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, ctxPrincipalKey, p)
	return context.WithValue(ctx, ctxUserIDKey, p.UserID)
}

// UserIDFromContext reads the acting user from the context.
func UserIDFromContext(ctx context.Context) (domain.UserID, bool) {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID, true
	}

	id, ok := ctx.Value(ctxUserIDKey).(domain.UserID)
	if !ok {
		return 0, false
	}
	return id, true
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey).(Principal)
	return p, ok
}

// ContextIdentity resolves the current user from the call context.
type ContextIdentity struct{}

func (ContextIdentity) CurrentUser(ctx context.Context) (domain.UserID, bool) {
	return UserIDFromContext(ctx)
}
