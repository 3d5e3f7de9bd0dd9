package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxSessionLength bounds accepted session tokens
const MaxSessionLength = 16 * 1024

// Importer turns session tokens into identities without persisting anything.
type Importer struct {
	service Service
}

// NewImporter creates a new Importer
func NewImporter(service Service) *Importer {
	return &Importer{service: service}
}

// ImportSession validates token and asks the identity service to import it.
func (i *Importer) ImportSession(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if err := validateSessionToken(token); err != nil {
		return nil, err
	}

	id, err := i.service.ImportSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: import session: %w", ErrService, err)
	}
	return id, nil
}

// validateSessionToken accepts printable base64, base64url and dotted
// compact-serialization text.
func validateSessionToken(token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidSession)
	}
	if len(token) > MaxSessionLength {
		return fmt.Errorf("%w: token exceeds %d bytes", ErrInvalidSession, MaxSessionLength)
	}
	for _, c := range token {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '+', c == '/', c == '-', c == '_', c == '=', c == '.':
		default:
			return fmt.Errorf("%w: malformed token", ErrInvalidSession)
		}
	}
	return nil
}
