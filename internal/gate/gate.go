package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sl "invite_service/internal/lib/logger"
)

// ErrRoleNotFound is returned by GuildActions when a configured role does
// not exist in the guild. The flow degrades (the role mutation is skipped)
// rather than aborting.
var ErrRoleNotFound = errors.New("role not found")

// VerifyOutcome is the gateway's answer as seen from the Discord side.
type VerifyOutcome struct {
	OK      bool
	Message string
}

// Verifier resolves an email/token submission, carrying the Discord user
// id for correlation only. A returned error means the verification service
// could not be reached, which is distinct from a rejected submission.
type Verifier interface {
	Verify(ctx context.Context, email, code, discordUserID string) (VerifyOutcome, error)
}

// GuildActions are the guild-side mutations the state machine needs.
type GuildActions interface {
	GrantRole(ctx context.Context, guildID, userID, roleName string) error
	RemoveRole(ctx context.Context, guildID, userID, roleName string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
}

// Notifier renders the verification affordance and outcome messages. The
// state machine does not care how they are presented.
type Notifier interface {
	PresentVerification(ctx context.Context, guildID, userID string, timeout time.Duration) error
	PresentOutcome(ctx context.Context, guildID, userID string, ok bool, message string) error
}

type SubmitStatus int

const (
	SubmitVerified SubmitStatus = iota
	SubmitFailed
	SubmitRejected
	SubmitNotPending
	SubmitInProgress
)

type SubmitResult struct {
	Status  SubmitStatus
	Message string
}

type PendingStatus struct {
	UserID    string
	GuildID   string
	Remaining time.Duration
}

type Config struct {
	MemberRole     string
	UnverifiedRole string
	Timeout        time.Duration
	KickGrace      time.Duration
}

type entry struct {
	guildID  string
	joinedAt time.Time
	timer    *time.Timer
	busy     bool
}

// Manager owns the pending-verification set. All transitions go through
// its methods; the map mutation under mu is the serialization point for
// submit, timeout and override races.
type Manager struct {
	log      *slog.Logger
	cfg      Config
	guild    GuildActions
	notify   Notifier
	verifier Verifier

	mu      sync.Mutex
	pending map[string]*entry

	now   func() time.Time
	sleep func(time.Duration)
}

func NewManager(log *slog.Logger, cfg Config, guild GuildActions, notify Notifier, verifier Verifier) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.KickGrace <= 0 {
		cfg.KickGrace = 3 * time.Second
	}

	return &Manager{
		log:      log,
		cfg:      cfg,
		guild:    guild,
		notify:   notify,
		verifier: verifier,
		pending:  make(map[string]*entry),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Join records a pending entry for the member, grants the unverified role
// if one is configured, presents the verification affordance and arms the
// eviction timer.
func (m *Manager) Join(ctx context.Context, guildID, userID string) {
	const op = "gate.Join"

	log := m.log.With(slog.String("op", op), slog.String("user_id", userID))

	m.mu.Lock()
	if prev, ok := m.pending[userID]; ok {
		prev.timer.Stop()
	}
	e := &entry{guildID: guildID, joinedAt: m.now()}
	e.timer = time.AfterFunc(m.cfg.Timeout, func() {
		m.Expire(context.Background(), userID)
	})
	m.pending[userID] = e
	m.mu.Unlock()

	log.Info("member pending verification", slog.String("guild_id", guildID))

	if m.cfg.UnverifiedRole != "" {
		if err := m.guild.GrantRole(ctx, guildID, userID, m.cfg.UnverifiedRole); err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				log.Warn("unverified role not configured in guild", slog.String("role", m.cfg.UnverifiedRole))
			} else {
				log.Error("failed to grant unverified role", sl.Err(err))
			}
		}
	}

	if err := m.notify.PresentVerification(ctx, guildID, userID, m.cfg.Timeout); err != nil {
		log.Error("failed to present verification", sl.Err(err))
	}
}

// Submit resolves the member's own email/token submission. Success grants
// the member role and clears the entry; any failure shows the reason,
// waits out the grace interval and kicks. The guild comes from the pending
// entry, so a submission over DM still resolves against the right guild.
func (m *Manager) Submit(ctx context.Context, userID, actorID, email, code string) SubmitResult {
	const op = "gate.Submit"

	log := m.log.With(slog.String("op", op), slog.String("user_id", userID))

	if actorID != userID {
		log.Info("submission by wrong actor", slog.String("actor_id", actorID))
		return SubmitResult{Status: SubmitRejected, Message: "This verification is not for you."}
	}

	m.mu.Lock()
	e, ok := m.pending[userID]
	if !ok {
		m.mu.Unlock()
		return SubmitResult{Status: SubmitNotPending, Message: "No pending verification found."}
	}
	if e.busy {
		m.mu.Unlock()
		return SubmitResult{Status: SubmitInProgress, Message: "Verification already in progress."}
	}
	e.busy = true
	guildID := e.guildID
	m.mu.Unlock()

	outcome, err := m.verifier.Verify(ctx, email, code, userID)
	if err != nil {
		log.Error("verification service unreachable", sl.Err(err))
		outcome = VerifyOutcome{Message: "Network error while verifying. Contact a server administrator."}
	}

	m.clear(userID)

	if outcome.OK {
		m.grantVerifiedRoles(ctx, log, guildID, userID)

		if err := m.notify.PresentOutcome(ctx, guildID, userID, true, outcome.Message); err != nil {
			log.Error("failed to present success", sl.Err(err))
		}

		log.Info("member verified")

		return SubmitResult{Status: SubmitVerified, Message: outcome.Message}
	}

	if err := m.notify.PresentOutcome(ctx, guildID, userID, false, outcome.Message); err != nil {
		log.Error("failed to present failure", sl.Err(err))
	}

	// Give the member a moment to read the reason before removal.
	m.sleep(m.cfg.KickGrace)

	reason := fmt.Sprintf("Verification failed: %s", outcome.Message)
	if err := m.guild.Kick(ctx, guildID, userID, reason); err != nil {
		log.Error("failed to kick member", sl.Err(err))
	} else {
		log.Info("member kicked", slog.String("reason", reason))
	}

	return SubmitResult{Status: SubmitFailed, Message: outcome.Message}
}

// Expire evicts the member if their pending entry has outlived the
// timeout. Both the per-member timer and the sweep land here; whichever
// arrives second finds the entry gone and does nothing.
func (m *Manager) Expire(ctx context.Context, userID string) {
	const op = "gate.Expire"

	log := m.log.With(slog.String("op", op), slog.String("user_id", userID))

	m.mu.Lock()
	e, ok := m.pending[userID]
	if !ok || e.busy || m.now().Sub(e.joinedAt) < m.cfg.Timeout {
		m.mu.Unlock()
		return
	}
	delete(m.pending, userID)
	e.timer.Stop()
	m.mu.Unlock()

	if err := m.guild.Kick(ctx, e.guildID, userID, "Verification timeout - did not verify within time limit"); err != nil {
		log.Error("failed to kick member on timeout", sl.Err(err))
		return
	}

	log.Info("member kicked after timeout")
}

// ForceVerify is the admin override: grant the member role and clear any
// pending entry without consulting the gateway.
func (m *Manager) ForceVerify(ctx context.Context, guildID, userID string) error {
	const op = "gate.ForceVerify"

	log := m.log.With(slog.String("op", op), slog.String("user_id", userID))

	m.clear(userID)

	if err := m.guild.GrantRole(ctx, guildID, userID, m.cfg.MemberRole); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if m.cfg.UnverifiedRole != "" {
		if err := m.guild.RemoveRole(ctx, guildID, userID, m.cfg.UnverifiedRole); err != nil && !errors.Is(err, ErrRoleNotFound) {
			log.Error("failed to remove unverified role", sl.Err(err))
		}
	}

	log.Info("member verified by admin override")

	return nil
}

// Status reports the pending members and their remaining time.
func (m *Manager) Status() []PendingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]PendingStatus, 0, len(m.pending))

	for userID, e := range m.pending {
		remaining := m.cfg.Timeout - now.Sub(e.joinedAt)
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, PendingStatus{
			UserID:    userID,
			GuildID:   e.guildID,
			Remaining: remaining,
		})
	}

	return out
}

// Sweep evicts every pending member past the timeout threshold.
func (m *Manager) Sweep(ctx context.Context) {
	m.mu.Lock()
	now := m.now()
	var expired []string
	for userID, e := range m.pending {
		if !e.busy && now.Sub(e.joinedAt) >= m.cfg.Timeout {
			expired = append(expired, userID)
		}
	}
	m.mu.Unlock()

	for _, userID := range expired {
		m.Expire(ctx, userID)
	}
}

func (m *Manager) grantVerifiedRoles(ctx context.Context, log *slog.Logger, guildID, userID string) {
	if err := m.guild.GrantRole(ctx, guildID, userID, m.cfg.MemberRole); err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			log.Warn("member role not configured in guild", slog.String("role", m.cfg.MemberRole))
		} else {
			log.Error("failed to grant member role", sl.Err(err))
		}
	}

	if m.cfg.UnverifiedRole != "" {
		if err := m.guild.RemoveRole(ctx, guildID, userID, m.cfg.UnverifiedRole); err != nil && !errors.Is(err, ErrRoleNotFound) {
			log.Error("failed to remove unverified role", sl.Err(err))
		}
	}
}

// clear removes the pending entry and cancels its timer. Safe to call for
// members that are not pending.
func (m *Manager) clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.pending[userID]; ok {
		e.timer.Stop()
		delete(m.pending, userID)
	}
}
