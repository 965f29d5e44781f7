// Package push sends mobile push notifications through an HTTP push
// gateway that fronts FCM and APNs.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidToken indicates the gateway no longer recognises a device
// token. Callers should forget the token.
var ErrInvalidToken = errors.New("invalid device token")

// AuthError indicates the gateway rejected the client credentials.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Message is a push notification addressed to one device.
type Message struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"`
	Channel  string            `json:"channel,omitempty"`
	Haptic   string            `json:"haptic,omitempty"`
}

type sendRequest struct {
	Token string `json:"token"`
	Message
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// unregisteredCodes are gateway error codes meaning the token is dead.
var unregisteredCodes = map[string]bool{
	"UNREGISTERED":        true,
	"InvalidRegistration": true,
	"NotRegistered":       true,
	"BadDeviceToken":      true,
}

const sendPath = "/v1/send"

// Client is a thin HTTP client for the push gateway. It handles Bearer
// token authentication, JSON marshaling, and automatic retry with
// exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a push gateway client for baseURL using token for
// Bearer authentication.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		maxRetries: 3,
	}
}

// Send delivers msg to the device identified by deviceToken.
func (c *Client) Send(ctx context.Context, deviceToken string, msg Message) error {
	if strings.TrimSpace(deviceToken) == "" {
		return ErrInvalidToken
	}

	data, err := json.Marshal(sendRequest{Token: deviceToken, Message: msg})
	if err != nil {
		return fmt.Errorf("marshaling push request: %w", err)
	}

	url := c.baseURL + sendPath
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing push request: %w", err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429) on %s", sendPath)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &AuthError{Message: fmt.Sprintf(
				"push gateway authentication failed (%d): check the gateway token for %s",
				resp.StatusCode, c.baseURL,
			)}
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return ErrInvalidToken
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			var gwErr errorResponse
			if json.Unmarshal(respBody, &gwErr) == nil && gwErr.Code != "" {
				if unregisteredCodes[gwErr.Code] {
					return ErrInvalidToken
				}
				return fmt.Errorf("push gateway error (%d): %s %s", resp.StatusCode, gwErr.Code, gwErr.Message)
			}
			return fmt.Errorf("unexpected status %d on %s: %s", resp.StatusCode, sendPath, string(respBody))
		}

		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
