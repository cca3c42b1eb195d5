package requestdata

import (
	"context"

	"github.com/google/uuid"

	"github.com/edushare/edushare-backend/internal/domain"
)

type ctxKey struct{}

// RequestData is the authenticated principal attached to a request context by
// the auth middleware.
type RequestData struct {
	UserID   uuid.UUID
	SchoolID uuid.UUID
	Role     domain.Role
}

func (rd *RequestData) IsAdmin() bool {
	return rd != nil && rd.Role == domain.RoleAdmin
}

func With(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, ctxKey{}, rd)
}

func Get(ctx context.Context) *RequestData {
	rd, _ := ctx.Value(ctxKey{}).(*RequestData)
	return rd
}
