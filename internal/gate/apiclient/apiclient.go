package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"invite_service/internal/gate"
	resp "invite_service/internal/lib/api/response"
)

const requestTimeout = 30 * time.Second

// Client calls the verification API's /verify-discord endpoint with the
// shared secret header.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func New(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type request struct {
	Email         string `json:"email"`
	Token         string `json:"token"`
	DiscordUserID string `json:"discord_user_id"`
}

type response struct {
	resp.Response
	Message       string `json:"message,omitempty"`
	DiscordUserID string `json:"discord_user_id,omitempty"`
}

// Verify submits the email/token pair. Transport failures and timeouts
// come back as an error so callers can tell a rejected submission from an
// unreachable service.
func (c *Client) Verify(ctx context.Context, email, code, discordUserID string) (gate.VerifyOutcome, error) {
	const op = "gate.apiclient.Verify"

	body, err := json.Marshal(request{
		Email:         email,
		Token:         code,
		DiscordUserID: discordUserID,
	})
	if err != nil {
		return gate.VerifyOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return gate.VerifyOutcome{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return gate.VerifyOutcome{}, fmt.Errorf("%s: %w", op, err)
	}
	defer httpResp.Body.Close()

	var parsed response
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return gate.VerifyOutcome{
				Message: fmt.Sprintf("Server error (Status: %d)", httpResp.StatusCode),
			}, nil
		}

		return gate.VerifyOutcome{}, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	if parsed.Status == resp.StatusOK {
		msg := parsed.Message
		if msg == "" {
			msg = "Verification successful"
		}
		return gate.VerifyOutcome{OK: true, Message: msg}, nil
	}

	msg := parsed.Error
	if msg == "" {
		msg = fmt.Sprintf("Server error (Status: %d)", httpResp.StatusCode)
	}

	return gate.VerifyOutcome{Message: msg}, nil
}
