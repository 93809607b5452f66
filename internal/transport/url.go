package transport

import (
	"net/url"
	"strings"
)

// buildURLLocked renders the upgrade address with identity query parameters.
// The session id is included only once the backend has issued one (or the
// caller resumed with a prior id), so reconnects resume server-side context.
// Callers hold c.mu.
func (c *Client) buildURLLocked() string {
	sessionID := c.sessionID
	if sessionID == "" {
		sessionID = c.opts.SessionID
	}
	out, err := buildEndpointURL(c.baseURL, c.opts.UserID, sessionID, c.opts.Mode)
	if err != nil {
		// A malformed base URL surfaces as a dial failure downstream.
		return c.baseURL
	}
	return out
}

func buildEndpointURL(base, userID, sessionID, mode string) (string, error) {
	base = strings.TrimSpace(base)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("user_id", userID)
	if mode == "" {
		mode = "live"
	}
	q.Set("mode", mode)
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
