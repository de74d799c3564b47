package service

import (
	"context"

	"github.com/google/uuid"
)

type resolutionIDKey struct{}

// WithResolutionID returns a context carrying id for log correlation.
func WithResolutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, resolutionIDKey{}, id)
}

// ResolutionID returns the id carried by ctx, if any.
func ResolutionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(resolutionIDKey{}).(string)
	return id, ok
}

// ensureResolutionID tags ctx with a fresh id unless an outer lookup already did.
func ensureResolutionID(ctx context.Context) (context.Context, string) {
	if id, ok := ResolutionID(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return WithResolutionID(ctx, id), id
}
