package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
)

// Principal is the caller resolved from a verified access token.
type Principal struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != uuid.Nil && p.Role.IsValid()
}

// CurrentUser returns the authenticated caller or an unauthorized error when
// the request did not pass through Auth.
func CurrentUser(ctx context.Context) (uuid.UUID, enums.UserRole, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return p.UserID, p.Role, nil
}
