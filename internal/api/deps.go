package api

import (
	"context"

	"github.com/better-wallet/signing-gateway/internal/app"
	"github.com/better-wallet/signing-gateway/internal/chain"
)

// SigningService is the subset of app.SigningService used by the API layer.
// It is an interface to allow handler-level unit tests without chain access.
type SigningService interface {
	SignWithSession(ctx context.Context, token string) (*app.SignResult, error)
	SignForUser(ctx context.Context, variant chain.Variant, userID string) (*app.SignResult, error)
}

var _ SigningService = (*app.SigningService)(nil)
