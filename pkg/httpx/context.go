package httpx

import (
	"context"

	"github.com/estatevault/portal/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID  ctxKey = "user_id"
	CtxKeyRole    ctxKey = "role"
	CtxKeyPayload ctxKey = "access_payload"
)

// ContextWithAuth stores a verified access payload on ctx.
func ContextWithAuth(ctx context.Context, p jwtx.AccessPayload) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, p.UserID)
	ctx = context.WithValue(ctx, CtxKeyRole, p.Role)
	ctx = context.WithValue(ctx, CtxKeyPayload, p)
	return ctx
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyUserID).(string)
	return v
}

// RoleFromContext returns the authenticated user's role, or "".
func RoleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyRole).(string)
	return v
}

// PayloadFromContext returns the verified access payload.
func PayloadFromContext(ctx context.Context) (jwtx.AccessPayload, bool) {
	p, ok := ctx.Value(CtxKeyPayload).(jwtx.AccessPayload)
	return p, ok
}
