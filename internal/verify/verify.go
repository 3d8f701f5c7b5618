package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sl "invite_service/internal/lib/logger"
	"invite_service/internal/models"
	"invite_service/internal/storage"
	"invite_service/internal/token"
)

// Reason classifies a verification outcome.
type Reason string

const (
	ReasonOK              Reason = "OK"
	ReasonUserNotFound    Reason = "USER_NOT_FOUND"
	ReasonInvalidToken    Reason = "INVALID_TOKEN"
	ReasonAlreadyVerified Reason = "ALREADY_VERIFIED"
	ReasonTokenExpired    Reason = "TOKEN_EXPIRED"
)

// Message is the human-readable form shown to end users.
func (r Reason) Message() string {
	switch r {
	case ReasonOK:
		return "User verified successfully"
	case ReasonUserNotFound:
		return "User not found"
	case ReasonInvalidToken:
		return "Invalid token"
	case ReasonAlreadyVerified:
		return "User already verified"
	case ReasonTokenExpired:
		return "Token has expired"
	default:
		return "Verification failed"
	}
}

type Result struct {
	OK     bool
	Reason Reason
}

type UserProvider interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
}

type VerifiedSetter interface {
	SetVerified(ctx context.Context, userID int64) error
}

// Gateway decides verification outcomes. The same instance serves the
// plain API path and the Discord path.
type Gateway struct {
	log    *slog.Logger
	users  UserProvider
	marker VerifiedSetter
	tokens *token.Service
}

func New(log *slog.Logger, users UserProvider, marker VerifiedSetter, tokens *token.Service) *Gateway {
	return &Gateway{
		log:    log,
		users:  users,
		marker: marker,
		tokens: tokens,
	}
}

// Verify applies the decision order: unknown user, then token mismatch,
// then already verified, then expiry. Existence and token match come
// before staleness so a wrong token never reveals whether the real one
// has expired.
func (g *Gateway) Verify(ctx context.Context, email, code string) (Result, error) {
	const op = "verify.Verify"

	log := g.log.With(slog.String("op", op))

	user, err := g.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("verification for unknown email")
			return Result{Reason: ReasonUserNotFound}, nil
		}

		log.Error("failed to look up user", sl.Err(err))

		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	if user.Token != code {
		log.Info("token mismatch", slog.Int64("uid", user.ID))
		return Result{Reason: ReasonInvalidToken}, nil
	}

	if user.IsVerified {
		log.Info("already verified", slog.Int64("uid", user.ID))
		return Result{Reason: ReasonAlreadyVerified}, nil
	}

	if g.tokens.Expired(user.TokenCreatedAt) {
		log.Info("token expired", slog.Int64("uid", user.ID))
		return Result{Reason: ReasonTokenExpired}, nil
	}

	if err := g.marker.SetVerified(ctx, user.ID); err != nil {
		log.Error("failed to mark user verified", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user verified", slog.Int64("uid", user.ID))

	return Result{OK: true, Reason: ReasonOK}, nil
}
