package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/better-wallet/signing-gateway/internal/app"
	"github.com/better-wallet/signing-gateway/internal/chain"
	"github.com/better-wallet/signing-gateway/internal/identity"
	"github.com/better-wallet/signing-gateway/internal/logger"
	"github.com/better-wallet/signing-gateway/internal/metrics"
	"github.com/better-wallet/signing-gateway/internal/middleware"
	"github.com/better-wallet/signing-gateway/internal/validation"
	apperrors "github.com/better-wallet/signing-gateway/pkg/errors"
)

// signRoute describes one /wallets/sign/{variant} endpoint
type signRoute struct {
	// session routes take {session}; the rest take {email} and a bearer token
	session bool
	variant chain.Variant
	// bundler routes need account-abstraction credentials
	bundler bool
}

var signRoutes = map[string]signRoute{
	"capsuleSession": {session: true, variant: chain.VariantEVMAA, bundler: true},
	"viem":           {variant: chain.VariantEVMViem},
	"ethers":         {variant: chain.VariantEVMEthers},
	"alchemy":        {variant: chain.VariantEVMAA, bundler: true},
	"cosmjs":         {variant: chain.VariantCosmos},
	"solana-web3":    {variant: chain.VariantSolana},
}

// SessionSignRequest is the body of the session route
type SessionSignRequest struct {
	Session string `json:"session"`
}

// UserSignRequest is the body of the pregenerated-wallet routes
type UserSignRequest struct {
	Email string `json:"email"`
}

// handleSign routes POST /wallets/sign/{variant}
func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/wallets/sign/")
	route, ok := signRoutes[name]
	if !ok {
		writeError(w, apperrors.NewWithDetail(
			apperrors.ErrCodeVariantNotSupported,
			"Unknown signing variant",
			name,
			http.StatusNotFound,
		))
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, apperrors.ErrMethodNotAllowed)
		return
	}

	ctx := logger.WithVariant(r.Context(), name)
	r = r.WithContext(ctx)

	if err := s.checkConfig(route); err != nil {
		logger.Error(ctx, "signing route not configured", "error", err)
		metrics.RecordSigning(name, "misconfigured", 0)
		writeError(w, apperrors.Configuration(err.Error()))
		return
	}

	if route.session {
		s.handleSessionSign(w, r, name)
		return
	}
	s.auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handleUserSign(w, r, name, route.variant)
	})).ServeHTTP(w, r)
}

// checkConfig reports credentials the route needs but the process lacks
func (s *Server) checkConfig(route signRoute) error {
	if err := s.config.RequireIdentityService(); err != nil {
		return err
	}
	if route.bundler {
		return s.config.RequireBundler()
	}
	return nil
}

func (s *Server) handleSessionSign(w http.ResponseWriter, r *http.Request, name string) {
	var req SessionSignRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}
	if strings.TrimSpace(req.Session) == "" {
		writeError(w, apperrors.InputValidation("Missing session", "session is required"))
		return
	}

	s.runSigning(w, r, name, func(ctx context.Context) (*app.SignResult, error) {
		return s.signing.SignWithSession(ctx, req.Session)
	})
}

func (s *Server) handleUserSign(w http.ResponseWriter, r *http.Request, name string, variant chain.Variant) {
	subject, ok := middleware.GetSubject(r.Context())
	if !ok {
		writeError(w, apperrors.Authentication("missing subject"))
		return
	}

	var req UserSignRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, apperrors.InputValidation("Missing email", "email is required"))
		return
	}
	if err := validation.ValidateEmail(email); err != nil {
		writeError(w, apperrors.InputValidation("Invalid email", err.Error()))
		return
	}

	if !strings.EqualFold(subject, email) {
		logger.Warn(r.Context(), "subject does not match requested wallet owner",
			"subject", logger.MaskEmail(subject),
			"email", logger.MaskEmail(email),
		)
		writeError(w, apperrors.Authorization("token subject does not own this wallet"))
		return
	}

	s.runSigning(w, r, name, func(ctx context.Context) (*app.SignResult, error) {
		return s.signing.SignForUser(ctx, variant, email)
	})
}

// runSigning bounds sign with the external call timeout and writes its outcome
func (s *Server) runSigning(w http.ResponseWriter, r *http.Request, name string, sign func(context.Context) (*app.SignResult, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.ExternalCallTimeout)
	defer cancel()

	start := time.Now()
	res, err := sign(ctx)
	if err != nil {
		appErr, outcome := mapSigningError(err)
		metrics.RecordSigning(name, outcome, time.Since(start))
		if appErr.StatusCode >= http.StatusInternalServerError {
			logger.Error(r.Context(), "signing failed", "error", err, "outcome", outcome)
		} else {
			logger.Info(r.Context(), "signing rejected", "error", err, "outcome", outcome)
		}
		writeError(w, appErr)
		return
	}

	metrics.RecordSigning(name, "ok", time.Since(start))
	writeJSON(w, http.StatusOK, res)
}

// mapSigningError converts a pipeline error to its response and metric outcome.
// Internal detail never reaches the response body.
func mapSigningError(err error) (*apperrors.AppError, string) {
	switch {
	case errors.Is(err, identity.ErrInvalidSession):
		return apperrors.InvalidSession("session could not be imported"), "invalid_session"
	case errors.Is(err, identity.ErrWalletNotFound):
		return apperrors.WalletNotFound(), "wallet_not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.GatewayTimeout(), "timeout"
	default:
		return apperrors.ExternalService(), "error"
	}
}

// decodeBody decodes a JSON request body into v. An empty body leaves v zero.
func decodeBody(r *http.Request, v any) *apperrors.AppError {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.NewWithDetail(
				apperrors.ErrCodeBadRequest,
				"Request body too large",
				"",
				http.StatusRequestEntityTooLarge,
			)
		}
		return apperrors.InputValidation("Invalid request body", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(err)
}
