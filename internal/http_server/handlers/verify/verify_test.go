package verify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	handler "invite_service/internal/http_server/handlers/verify"
	"invite_service/internal/verify"
)

type fakeGateway struct {
	result verify.Result
	err    error

	gotEmail string
	gotCode  string
}

func (f *fakeGateway) Verify(_ context.Context, email, code string) (verify.Result, error) {
	f.gotEmail = email
	f.gotCode = code
	return f.result, f.err
}

func perform(t *testing.T, gateway *fakeGateway, body string) *httptest.ResponseRecorder {
	t.Helper()

	h := handler.New(slog.New(slog.DiscardHandler), validator.New(), gateway)

	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestVerifyHandler(t *testing.T) {
	t.Parallel()

	t.Run("successful verification", func(t *testing.T) {
		gw := &fakeGateway{result: verify.Result{OK: true, Reason: verify.ReasonOK}}

		rec := perform(t, gw, `{"email":"alice@x.edu","token":"A1B2C3"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		require.Equal(t, "OK", body["status"])
		require.Equal(t, "User verified successfully", body["message"])
		require.Equal(t, "alice@x.edu", gw.gotEmail)
		require.Equal(t, "A1B2C3", gw.gotCode)
	})

	t.Run("rejected submission still answers 200", func(t *testing.T) {
		gw := &fakeGateway{result: verify.Result{Reason: verify.ReasonInvalidToken}}

		rec := perform(t, gw, `{"email":"alice@x.edu","token":"WRONG1"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		require.Equal(t, "Error", body["status"])
		require.Equal(t, "Invalid token", body["error"])
	})

	t.Run("expired token reason surfaces", func(t *testing.T) {
		gw := &fakeGateway{result: verify.Result{Reason: verify.ReasonTokenExpired}}

		rec := perform(t, gw, `{"email":"alice@x.edu","token":"A1B2C3"}`)

		body := decode(t, rec)
		require.Equal(t, "Token has expired", body["error"])
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := perform(t, &fakeGateway{}, `{not json`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields fail validation", func(t *testing.T) {
		rec := perform(t, &fakeGateway{}, `{"email":"alice@x.edu"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		require.Equal(t, "Error", body["status"])
	})

	t.Run("invalid email fails validation", func(t *testing.T) {
		rec := perform(t, &fakeGateway{}, `{"email":"not-an-email","token":"A1B2C3"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("internal failure answers 500", func(t *testing.T) {
		gw := &fakeGateway{err: errors.New("connection refused")}

		rec := perform(t, gw, `{"email":"alice@x.edu","token":"A1B2C3"}`)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
