package jwt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"invite_service/internal/lib/jwt"
)

func TestAdminToken(t *testing.T) {
	t.Parallel()

	const secret = "test-secret"

	t.Run("round trip", func(t *testing.T) {
		tokenStr, err := jwt.NewAdminToken("admin", secret, time.Hour)
		require.NoError(t, err)

		sub, err := jwt.ParseAdminToken(tokenStr, secret)
		require.NoError(t, err)
		require.Equal(t, "admin", sub)
	})

	t.Run("wrong secret", func(t *testing.T) {
		tokenStr, err := jwt.NewAdminToken("admin", secret, time.Hour)
		require.NoError(t, err)

		_, err = jwt.ParseAdminToken(tokenStr, "other-secret")
		require.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		tokenStr, err := jwt.NewAdminToken("admin", secret, -time.Minute)
		require.NoError(t, err)

		_, err = jwt.ParseAdminToken(tokenStr, secret)
		require.Error(t, err)
	})

	t.Run("garbage input", func(t *testing.T) {
		_, err := jwt.ParseAdminToken("not.a.token", secret)
		require.Error(t, err)
	})
}
