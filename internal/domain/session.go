package domain

import "time"

// GoogleToken is the result of an OAuth code exchange.
type GoogleToken struct {
	AccessToken string
	Expiry      time.Time
	Email       string
}

// Session is an authenticated browser session carrying the caller's Google
// access token. Sheets are always read with the caller's own token.
type Session struct {
	ID          string    `json:"sessionId"`
	Email       string    `json:"email,omitempty"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// LoginResponse is returned by GET /auth/google for API clients.
type LoginResponse struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

// AuthStatus is returned by GET /auth/status.
type AuthStatus struct {
	Authenticated bool      `json:"authenticated"`
	Email         string    `json:"email,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
}
