package token

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	sl "invite_service/internal/lib/logger"
	"invite_service/internal/models"
	"invite_service/internal/storage"
)

// Alphabet is the character set verification codes are drawn from.
// 36^6 candidates keeps the collision retry loop effectively bounded.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const Length = 6

// Checker reports whether a candidate token is already held by some user.
// Satisfied by the postgres repo; tests substitute their own to keep the
// uniqueness loop finite.
type Checker interface {
	UserByToken(ctx context.Context, token string) (models.User, error)
}

// Store is the storage surface needed for refreshing a user's token.
type Store interface {
	Checker
	UpdateToken(ctx context.Context, userID int64, token string, createdAt time.Time) error
}

type Service struct {
	log        *slog.Logger
	store      Store
	expiryDays int
}

func New(log *slog.Logger, store Store, expiryDays int) *Service {
	if expiryDays <= 0 {
		expiryDays = 7
	}

	return &Service{
		log:        log,
		store:      store,
		expiryDays: expiryDays,
	}
}

// Generate produces a random fixed-length code from Alphabet.
func Generate() (string, error) {
	const op = "token.Generate"

	code := make([]byte, Length)
	max := big.NewInt(int64(len(Alphabet)))

	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		code[i] = Alphabet[n.Int64()]
	}

	return string(code), nil
}

// NewUnique generates codes until one is unused store-wide. The pre-check
// is optimistic; the store's unique constraint is the real arbiter and
// callers still retry on storage.ErrTokenTaken from the write.
func (s *Service) NewUnique(ctx context.Context) (string, error) {
	const op = "token.NewUnique"

	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		code, err := Generate()
		if err != nil {
			return "", err
		}

		_, err = s.store.UserByToken(ctx, code)
		if errors.Is(err, storage.ErrUserNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		s.log.Debug("token collision, regenerating")
	}
}

// ExpiredAt reports whether a token created at createdAt is past its
// expiry window as of now.
func (s *Service) ExpiredAt(createdAt, now time.Time) bool {
	expiry := createdAt.Add(time.Duration(s.expiryDays) * 24 * time.Hour)
	return now.After(expiry)
}

func (s *Service) Expired(createdAt time.Time) bool {
	return s.ExpiredAt(createdAt, time.Now())
}

func (s *Service) ExpiryDays() int {
	return s.expiryDays
}

// Refresh assigns a new unique token to the user, resetting verification
// and the token timestamp. A write-time collision retries with a fresh
// candidate.
func (s *Service) Refresh(ctx context.Context, userID int64) (string, error) {
	const op = "token.Refresh"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	for {
		code, err := s.NewUnique(ctx)
		if err != nil {
			return "", err
		}

		err = s.store.UpdateToken(ctx, userID, code, time.Now().UTC())
		if errors.Is(err, storage.ErrTokenTaken) {
			log.Debug("token taken between check and write, retrying")
			continue
		}
		if err != nil {
			log.Error("failed to update token", sl.Err(err))
			return "", fmt.Errorf("%s: %w", op, err)
		}

		log.Info("token refreshed")

		return code, nil
	}
}
