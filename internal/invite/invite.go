package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sl "invite_service/internal/lib/logger"
	"invite_service/internal/models"
	"invite_service/internal/storage"
	"invite_service/internal/token"
)

var ErrEmailTaken = storage.ErrEmailTaken

type Store interface {
	SaveUser(ctx context.Context, u models.User) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	Users(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, userID int64) error
	DeleteAllUsers(ctx context.Context) (int64, error)
}

// Publisher queues verification emails for the mail_sender worker.
type Publisher interface {
	SendMessage(ctx context.Context, msg models.EmailJob) error
}

// Registrant is one row of imported or self-registered user data.
type Registrant struct {
	Email   string
	Name    string
	College string
	Branch  string
	Year    string
}

type ImportResult struct {
	TotalProcessed int
	NewlyAdded     int
	Skipped        int
	NewUsers       []models.User
}

type Service struct {
	log    *slog.Logger
	store  Store
	tokens *token.Service
	queue  Publisher
}

func New(log *slog.Logger, store Store, tokens *token.Service, queue Publisher) *Service {
	return &Service{
		log:    log,
		store:  store,
		tokens: tokens,
		queue:  queue,
	}
}

// Create registers a single user with a fresh unique token. A token
// collision at insert time retries with a new candidate; a duplicate
// email surfaces as ErrEmailTaken.
func (s *Service) Create(ctx context.Context, r Registrant) (models.User, error) {
	const op = "invite.Create"

	log := s.log.With(slog.String("op", op))

	for {
		code, err := s.tokens.NewUnique(ctx)
		if err != nil {
			return models.User{}, fmt.Errorf("%s: %w", op, err)
		}

		user, err := s.store.SaveUser(ctx, models.User{
			Email:   strings.TrimSpace(r.Email),
			Name:    strings.TrimSpace(r.Name),
			College: strings.TrimSpace(r.College),
			Branch:  strings.TrimSpace(r.Branch),
			Year:    strings.TrimSpace(r.Year),
			Token:   code,
		})
		if errors.Is(err, storage.ErrTokenTaken) {
			log.Debug("token taken at insert, retrying")
			continue
		}
		if err != nil {
			if errors.Is(err, storage.ErrEmailTaken) {
				return models.User{}, ErrEmailTaken
			}

			log.Error("failed to save user", sl.Err(err))

			return models.User{}, fmt.Errorf("%s: %w", op, err)
		}

		log.Info("user created", slog.Int64("uid", user.ID))

		return user, nil
	}
}

// Import registers a batch of rows, skipping emails that already exist.
func (s *Service) Import(ctx context.Context, rows []Registrant) (ImportResult, error) {
	const op = "invite.Import"

	res := ImportResult{TotalProcessed: len(rows)}

	for _, r := range rows {
		user, err := s.Create(ctx, r)
		if errors.Is(err, ErrEmailTaken) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}

		res.NewlyAdded++
		res.NewUsers = append(res.NewUsers, user)
	}

	return res, nil
}

// QueueEmails publishes a verification email job for each user id.
// Returns the emails that could not be queued.
func (s *Service) QueueEmails(ctx context.Context, userIDs []int64) (sent int, failed []string, err error) {
	const op = "invite.QueueEmails"

	log := s.log.With(slog.String("op", op))

	for _, id := range userIDs {
		user, err := s.store.UserByID(ctx, id)
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("unknown user id in email batch", slog.Int64("uid", id))
			continue
		}
		if err != nil {
			return sent, failed, fmt.Errorf("%s: %w", op, err)
		}

		job := models.EmailJob{
			Email:      user.Email,
			Name:       user.Name,
			Token:      user.Token,
			ExpiryDays: s.tokens.ExpiryDays(),
		}

		if err := s.queue.SendMessage(ctx, job); err != nil {
			log.Error("failed to queue email", slog.Int64("uid", id), sl.Err(err))
			failed = append(failed, user.Email)
			continue
		}

		sent++
	}

	return sent, failed, nil
}

// Refresh issues a new token for the user and reports it.
func (s *Service) Refresh(ctx context.Context, userID int64) (string, error) {
	const op = "invite.Refresh"

	if _, err := s.store.UserByID(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", storage.ErrUserNotFound
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return s.tokens.Refresh(ctx, userID)
}

func (s *Service) List(ctx context.Context) ([]models.User, error) {
	return s.store.Users(ctx)
}

func (s *Service) Delete(ctx context.Context, userID int64) error {
	return s.store.DeleteUser(ctx, userID)
}

func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	return s.store.DeleteAllUsers(ctx)
}

// MaskToken hides all but the first and last character for display.
func MaskToken(code string) string {
	if len(code) <= 2 {
		return code
	}

	return code[:1] + strings.Repeat("*", len(code)-2) + code[len(code)-1:]
}
