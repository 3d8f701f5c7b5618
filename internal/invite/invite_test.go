package invite_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"invite_service/internal/invite"
	"invite_service/internal/models"
	"invite_service/internal/storage"
	"invite_service/internal/token"
)

// fakeStore backs both the invite service and the token service.
type fakeStore struct {
	nextID  int64
	byEmail map[string]models.User
	byID    map[int64]models.User

	saveCollisions int
	saveErr        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byEmail: make(map[string]models.User),
		byID:    make(map[int64]models.User),
	}
}

func (f *fakeStore) SaveUser(_ context.Context, u models.User) (models.User, error) {
	if f.saveErr != nil {
		return models.User{}, f.saveErr
	}
	if f.saveCollisions > 0 {
		f.saveCollisions--
		return models.User{}, storage.ErrTokenTaken
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return models.User{}, storage.ErrEmailTaken
	}

	f.nextID++
	u.ID = f.nextID
	u.TokenCreatedAt = time.Now().UTC()
	f.byEmail[u.Email] = u
	f.byID[u.ID] = u

	return u, nil
}

func (f *fakeStore) UserByID(_ context.Context, id int64) (models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) UserByToken(_ context.Context, code string) (models.User, error) {
	for _, u := range f.byID {
		if u.Token == code {
			return u, nil
		}
	}
	return models.User{}, storage.ErrUserNotFound
}

func (f *fakeStore) UpdateToken(_ context.Context, id int64, code string, createdAt time.Time) error {
	u, ok := f.byID[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.Token = code
	u.IsVerified = false
	u.TokenCreatedAt = createdAt
	f.byID[id] = u
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeStore) Users(_ context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id int64) error {
	u, ok := f.byID[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	delete(f.byID, id)
	delete(f.byEmail, u.Email)
	return nil
}

func (f *fakeStore) DeleteAllUsers(_ context.Context) (int64, error) {
	n := int64(len(f.byID))
	f.byID = make(map[int64]models.User)
	f.byEmail = make(map[string]models.User)
	return n, nil
}

type fakeQueue struct {
	jobs    []models.EmailJob
	failFor map[string]bool
}

func (f *fakeQueue) SendMessage(_ context.Context, msg models.EmailJob) error {
	if f.failFor[msg.Email] {
		return errors.New("channel closed")
	}
	f.jobs = append(f.jobs, msg)
	return nil
}

func newService(store *fakeStore, queue *fakeQueue) *invite.Service {
	log := slog.New(slog.DiscardHandler)
	return invite.New(log, store, token.New(log, store, 7), queue)
}

func TestCreate(t *testing.T) {
	t.Parallel()

	t.Run("assigns a fresh token and trims fields", func(t *testing.T) {
		store := newFakeStore()
		svc := newService(store, &fakeQueue{})

		user, err := svc.Create(context.Background(), invite.Registrant{
			Email:   " alice@x.edu ",
			Name:    "Alice",
			College: "X College",
			Branch:  "CSE",
			Year:    "2",
		})
		require.NoError(t, err)
		require.Equal(t, "alice@x.edu", user.Email)
		require.Len(t, user.Token, token.Length)
		require.False(t, user.IsVerified)
	})

	t.Run("retries on a write-time token collision", func(t *testing.T) {
		store := newFakeStore()
		store.saveCollisions = 2
		svc := newService(store, &fakeQueue{})

		user, err := svc.Create(context.Background(), invite.Registrant{Email: "bob@x.edu", Name: "Bob"})
		require.NoError(t, err)
		require.NotZero(t, user.ID)
	})

	t.Run("duplicate email surfaces as ErrEmailTaken", func(t *testing.T) {
		store := newFakeStore()
		svc := newService(store, &fakeQueue{})

		_, err := svc.Create(context.Background(), invite.Registrant{Email: "alice@x.edu", Name: "Alice"})
		require.NoError(t, err)

		_, err = svc.Create(context.Background(), invite.Registrant{Email: "alice@x.edu", Name: "Alice again"})
		require.ErrorIs(t, err, invite.ErrEmailTaken)
	})
}

func TestImport(t *testing.T) {
	t.Parallel()

	t.Run("counts new and skipped rows", func(t *testing.T) {
		store := newFakeStore()
		svc := newService(store, &fakeQueue{})

		_, err := svc.Create(context.Background(), invite.Registrant{Email: "dupe@x.edu", Name: "Dupe"})
		require.NoError(t, err)

		res, err := svc.Import(context.Background(), []invite.Registrant{
			{Email: "alice@x.edu", Name: "Alice"},
			{Email: "dupe@x.edu", Name: "Dupe"},
			{Email: "bob@x.edu", Name: "Bob"},
		})
		require.NoError(t, err)
		require.Equal(t, 3, res.TotalProcessed)
		require.Equal(t, 2, res.NewlyAdded)
		require.Equal(t, 1, res.Skipped)
		require.Len(t, res.NewUsers, 2)
	})

	t.Run("storage failure aborts the batch", func(t *testing.T) {
		store := newFakeStore()
		store.saveErr = errors.New("connection reset")
		svc := newService(store, &fakeQueue{})

		_, err := svc.Import(context.Background(), []invite.Registrant{{Email: "alice@x.edu"}})
		require.Error(t, err)
	})
}

func TestQueueEmails(t *testing.T) {
	t.Parallel()

	t.Run("publishes a job per user", func(t *testing.T) {
		store := newFakeStore()
		queue := &fakeQueue{}
		svc := newService(store, queue)

		alice, err := svc.Create(context.Background(), invite.Registrant{Email: "alice@x.edu", Name: "Alice"})
		require.NoError(t, err)
		bob, err := svc.Create(context.Background(), invite.Registrant{Email: "bob@x.edu", Name: "Bob"})
		require.NoError(t, err)

		sent, failed, err := svc.QueueEmails(context.Background(), []int64{alice.ID, bob.ID})
		require.NoError(t, err)
		require.Equal(t, 2, sent)
		require.Empty(t, failed)
		require.Len(t, queue.jobs, 2)
		require.Equal(t, "alice@x.edu", queue.jobs[0].Email)
		require.Equal(t, alice.Token, queue.jobs[0].Token)
		require.Equal(t, 7, queue.jobs[0].ExpiryDays)
	})

	t.Run("collects emails that could not be queued", func(t *testing.T) {
		store := newFakeStore()
		queue := &fakeQueue{failFor: map[string]bool{"bob@x.edu": true}}
		svc := newService(store, queue)

		alice, err := svc.Create(context.Background(), invite.Registrant{Email: "alice@x.edu", Name: "Alice"})
		require.NoError(t, err)
		bob, err := svc.Create(context.Background(), invite.Registrant{Email: "bob@x.edu", Name: "Bob"})
		require.NoError(t, err)

		sent, failed, err := svc.QueueEmails(context.Background(), []int64{alice.ID, bob.ID})
		require.NoError(t, err)
		require.Equal(t, 1, sent)
		require.Equal(t, []string{"bob@x.edu"}, failed)
	})

	t.Run("unknown ids are skipped", func(t *testing.T) {
		store := newFakeStore()
		queue := &fakeQueue{}
		svc := newService(store, queue)

		sent, failed, err := svc.QueueEmails(context.Background(), []int64{404})
		require.NoError(t, err)
		require.Zero(t, sent)
		require.Empty(t, failed)
	})
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	t.Run("replaces the token and resets verification", func(t *testing.T) {
		store := newFakeStore()
		svc := newService(store, &fakeQueue{})

		user, err := svc.Create(context.Background(), invite.Registrant{Email: "alice@x.edu", Name: "Alice"})
		require.NoError(t, err)

		code, err := svc.Refresh(context.Background(), user.ID)
		require.NoError(t, err)
		require.Len(t, code, token.Length)
		require.NotEqual(t, user.Token, code)

		fresh, err := store.UserByID(context.Background(), user.ID)
		require.NoError(t, err)
		require.Equal(t, code, fresh.Token)
		require.False(t, fresh.IsVerified)
	})

	t.Run("unknown user", func(t *testing.T) {
		store := newFakeStore()
		svc := newService(store, &fakeQueue{})

		_, err := svc.Refresh(context.Background(), 404)
		require.ErrorIs(t, err, storage.ErrUserNotFound)
	})
}

func TestMaskToken(t *testing.T) {
	t.Parallel()

	require.Equal(t, "A****3", invite.MaskToken("A1B2C3"))
	require.Equal(t, "AB", invite.MaskToken("AB"))
	require.Equal(t, "", invite.MaskToken(""))
}
