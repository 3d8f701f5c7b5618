package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeGuild struct {
	mu      sync.Mutex
	granted []string
	removed []string
	kicks   []string
	reasons []string

	grantErr error
}

func (f *fakeGuild) GrantRole(_ context.Context, _, userID, roleName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return f.grantErr
	}
	f.granted = append(f.granted, userID+":"+roleName)
	return nil
}

func (f *fakeGuild) RemoveRole(_ context.Context, _, userID, roleName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, userID+":"+roleName)
	return nil
}

func (f *fakeGuild) Kick(_ context.Context, _, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks = append(f.kicks, userID)
	f.reasons = append(f.reasons, reason)
	return nil
}

func (f *fakeGuild) kickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.kicks)
}

type fakeNotifier struct {
	mu        sync.Mutex
	presented []string
	outcomes  []string
}

func (f *fakeNotifier) PresentVerification(_ context.Context, _, userID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presented = append(f.presented, userID)
	return nil
}

func (f *fakeNotifier) PresentOutcome(_ context.Context, _, userID string, ok bool, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := "fail"
	if ok {
		status = "ok"
	}
	f.outcomes = append(f.outcomes, userID+":"+status)
	return nil
}

type fakeVerifier struct {
	outcome VerifyOutcome
	err     error
}

func (f *fakeVerifier) Verify(_ context.Context, _, _, _ string) (VerifyOutcome, error) {
	return f.outcome, f.err
}

func newTestManager(guild *fakeGuild, notify *fakeNotifier, verifier Verifier) *Manager {
	m := NewManager(slog.New(slog.DiscardHandler), Config{
		MemberRole:     "Member",
		UnverifiedRole: "Unverified",
		Timeout:        time.Hour,
		KickGrace:      time.Millisecond,
	}, guild, notify, verifier)
	m.sleep = func(time.Duration) {}
	return m
}

func (m *Manager) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// rewind shifts a pending entry's join time into the past.
func (m *Manager) rewind(userID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.pending[userID]; ok {
		e.joinedAt = e.joinedAt.Add(-d)
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()

	t.Run("registers pending entry and presents affordance", func(t *testing.T) {
		guild := &fakeGuild{}
		notify := &fakeNotifier{}
		m := newTestManager(guild, notify, &fakeVerifier{})

		m.Join(context.Background(), "g1", "u1")

		require.Equal(t, 1, m.pendingCount())
		require.Equal(t, []string{"u1"}, notify.presented)
		require.Equal(t, []string{"u1:Unverified"}, guild.granted)
	})

	t.Run("missing unverified role degrades without aborting", func(t *testing.T) {
		guild := &fakeGuild{grantErr: ErrRoleNotFound}
		notify := &fakeNotifier{}
		m := newTestManager(guild, notify, &fakeVerifier{})

		m.Join(context.Background(), "g1", "u1")

		require.Equal(t, 1, m.pendingCount())
		require.Equal(t, []string{"u1"}, notify.presented)
	})
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	t.Run("correct submission verifies and clears the entry", func(t *testing.T) {
		guild := &fakeGuild{}
		notify := &fakeNotifier{}
		m := newTestManager(guild, notify, &fakeVerifier{outcome: VerifyOutcome{OK: true, Message: "ok"}})

		m.Join(context.Background(), "g1", "u1")
		res := m.Submit(context.Background(), "u1", "u1", "alice@x.edu", "A1B2C3")

		require.Equal(t, SubmitVerified, res.Status)
		require.Equal(t, 0, m.pendingCount())
		require.Contains(t, guild.granted, "u1:Member")
		require.Contains(t, guild.removed, "u1:Unverified")
		require.Contains(t, notify.outcomes, "u1:ok")
		require.Zero(t, guild.kickCount())
	})

	t.Run("someone else's submission is rejected without state change", func(t *testing.T) {
		guild := &fakeGuild{}
		notify := &fakeNotifier{}
		m := newTestManager(guild, notify, &fakeVerifier{outcome: VerifyOutcome{OK: true}})

		m.Join(context.Background(), "g1", "u1")
		res := m.Submit(context.Background(), "u1", "intruder", "alice@x.edu", "A1B2C3")

		require.Equal(t, SubmitRejected, res.Status)
		require.Equal(t, 1, m.pendingCount())
		require.Zero(t, guild.kickCount())
	})

	t.Run("submission without a pending entry does nothing", func(t *testing.T) {
		guild := &fakeGuild{}
		m := newTestManager(guild, &fakeNotifier{}, &fakeVerifier{})

		res := m.Submit(context.Background(), "ghost", "ghost", "a@b.c", "AAAAAA")

		require.Equal(t, SubmitNotPending, res.Status)
		require.Zero(t, guild.kickCount())
	})

	t.Run("failed verification shows the reason then kicks", func(t *testing.T) {
		guild := &fakeGuild{}
		notify := &fakeNotifier{}
		m := newTestManager(guild, notify, &fakeVerifier{outcome: VerifyOutcome{Message: "Invalid token"}})

		m.Join(context.Background(), "g1", "u1")
		res := m.Submit(context.Background(), "u1", "u1", "alice@x.edu", "WRONG1")

		require.Equal(t, SubmitFailed, res.Status)
		require.Equal(t, 0, m.pendingCount())
		require.Contains(t, notify.outcomes, "u1:fail")
		require.Equal(t, []string{"u1"}, guild.kicks)
		require.Contains(t, guild.reasons[0], "Invalid token")
	})

	t.Run("unreachable verifier counts as failure, not success", func(t *testing.T) {
		guild := &fakeGuild{}
		notify := &fakeNotifier{}
		m := newTestManager(guild, notify, &fakeVerifier{err: errors.New("connection refused")})

		m.Join(context.Background(), "g1", "u1")
		res := m.Submit(context.Background(), "u1", "u1", "alice@x.edu", "A1B2C3")

		require.Equal(t, SubmitFailed, res.Status)
		require.NotContains(t, guild.granted, "u1:Member")
		require.Equal(t, []string{"u1"}, guild.kicks)
	})
}

func TestExpire(t *testing.T) {
	t.Parallel()

	t.Run("evicts a member past the threshold", func(t *testing.T) {
		guild := &fakeGuild{}
		m := newTestManager(guild, &fakeNotifier{}, &fakeVerifier{})

		m.Join(context.Background(), "g1", "u1")
		m.rewind("u1", 2*time.Hour)

		m.Expire(context.Background(), "u1")

		require.Equal(t, 0, m.pendingCount())
		require.Equal(t, []string{"u1"}, guild.kicks)
		require.Contains(t, guild.reasons[0], "timeout")
	})

	t.Run("premature expiry is a no-op", func(t *testing.T) {
		guild := &fakeGuild{}
		m := newTestManager(guild, &fakeNotifier{}, &fakeVerifier{})

		m.Join(context.Background(), "g1", "u1")
		m.Expire(context.Background(), "u1")

		require.Equal(t, 1, m.pendingCount())
		require.Zero(t, guild.kickCount())
	})

	t.Run("timer and sweep do not double-evict", func(t *testing.T) {
		guild := &fakeGuild{}
		m := newTestManager(guild, &fakeNotifier{}, &fakeVerifier{})

		m.Join(context.Background(), "g1", "u1")
		m.rewind("u1", 2*time.Hour)

		m.Expire(context.Background(), "u1")
		m.Sweep(context.Background())
		m.Expire(context.Background(), "u1")

		require.Equal(t, 1, guild.kickCount())
	})

	t.Run("expiry after verification is a no-op", func(t *testing.T) {
		guild := &fakeGuild{}
		m := newTestManager(guild, &fakeNotifier{}, &fakeVerifier{outcome: VerifyOutcome{OK: true}})

		m.Join(context.Background(), "g1", "u1")
		m.Submit(context.Background(), "u1", "u1", "alice@x.edu", "A1B2C3")
		m.rewind("u1", 2*time.Hour)

		m.Expire(context.Background(), "u1")

		require.Zero(t, guild.kickCount())
	})
}

func TestSweep(t *testing.T) {
	t.Parallel()

	t.Run("evicts only entries past the threshold", func(t *testing.T) {
		guild := &fakeGuild{}
		m := newTestManager(guild, &fakeNotifier{}, &fakeVerifier{})

		m.Join(context.Background(), "g1", "old")
		m.Join(context.Background(), "g1", "fresh")
		m.rewind("old", 2*time.Hour)

		m.Sweep(context.Background())

		require.Equal(t, []string{"old"}, guild.kicks)
		require.Equal(t, 1, m.pendingCount())
	})
}

func TestForceVerify(t *testing.T) {
	t.Parallel()

	t.Run("clears pending and grants roles even past the timeout", func(t *testing.T) {
		guild := &fakeGuild{}
		m := newTestManager(guild, &fakeNotifier{}, &fakeVerifier{})

		m.Join(context.Background(), "g1", "u1")
		m.rewind("u1", 2*time.Hour)

		require.NoError(t, m.ForceVerify(context.Background(), "g1", "u1"))
		require.Equal(t, 0, m.pendingCount())
		require.Contains(t, guild.granted, "u1:Member")

		// The sweep must find nothing afterwards.
		m.Sweep(context.Background())
		require.Zero(t, guild.kickCount())
	})

	t.Run("works for members that were never pending", func(t *testing.T) {
		guild := &fakeGuild{}
		m := newTestManager(guild, &fakeNotifier{}, &fakeVerifier{})

		require.NoError(t, m.ForceVerify(context.Background(), "g1", "u2"))
		require.Contains(t, guild.granted, "u2:Member")
	})

	t.Run("reports a missing member role", func(t *testing.T) {
		guild := &fakeGuild{grantErr: ErrRoleNotFound}
		m := newTestManager(guild, &fakeNotifier{}, &fakeVerifier{})

		err := m.ForceVerify(context.Background(), "g1", "u1")
		require.ErrorIs(t, err, ErrRoleNotFound)
	})
}

func TestStatus(t *testing.T) {
	t.Parallel()

	guild := &fakeGuild{}
	m := newTestManager(guild, &fakeNotifier{}, &fakeVerifier{})

	m.Join(context.Background(), "g1", "u1")
	m.rewind("u1", 30*time.Minute)

	status := m.Status()
	require.Len(t, status, 1)
	require.Equal(t, "u1", status[0].UserID)
	require.Equal(t, "g1", status[0].GuildID)
	require.InDelta(t, (30 * time.Minute).Seconds(), status[0].Remaining.Seconds(), 5)
}
