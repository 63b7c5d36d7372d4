package api_context

import "context"

type ctxKey string

const (
	IDKey         ctxKey = "id"
	UploadIDKey   ctxKey = "uploadID"
	AuthUserIDKey ctxKey = "authUserID"
	AuthRolesKey  ctxKey = "authRoles"
)

// IDFromContext returns the path id validated by the id middleware.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(IDKey).(string)
	return id, ok
}

// WithUploadID tags ctx so log records carry the upload they belong to.
func WithUploadID(ctx context.Context, uploadID string) context.Context {
	return context.WithValue(ctx, UploadIDKey, uploadID)
}

func UploadIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UploadIDKey).(string)
	return id, ok && id != ""
}

func AuthUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AuthUserIDKey).(string)
	return id, ok && id != ""
}

func AuthRolesFromContext(ctx context.Context) ([]string, bool) {
	roles, ok := ctx.Value(AuthRolesKey).([]string)
	return roles, ok
}
