package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

const sessionIssuer = "central-sheets-import"

// SessionService runs the Google OAuth handshake and issues signed session
// tokens that carry the caller's Google access token.
type SessionService struct {
	provider port.OAuthProvider
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewSessionService creates a session service.
func NewSessionService(provider port.OAuthProvider, secret string, ttl time.Duration, logger *zap.Logger) *SessionService {
	return &SessionService{
		provider: provider,
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock returns a copy of the service that reads time from now.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	cp := *s
	cp.now = now
	return &cp
}

// ============================================================
// Login: GET /auth/google
// ============================================================

// Login returns the consent URL and the state nonce the callback must echo.
func (s *SessionService) Login() *domain.LoginResponse {
	state := uuid.NewString()
	return &domain.LoginResponse{AuthURL: s.provider.AuthCodeURL(state), State: state}
}

// ============================================================
// Callback: GET /auth/callback
// ============================================================

// Callback verifies the state nonce, exchanges the code and signs a session.
func (s *SessionService) Callback(ctx context.Context, code, state, expectedState string) (string, *domain.Session, error) {
	ctx, span := authTracer.Start(ctx, "SessionService.Callback")
	defer span.End()

	if state == "" || state != expectedState {
		s.logger.Warn("oauth callback: state mismatch")
		return "", nil, &domain.ErrUnauthorized{Message: "Invalid OAuth state"}
	}
	if code == "" {
		return "", nil, &domain.ErrValidation{Field: "code", Message: "authorization code is required"}
	}

	tok, err := s.provider.Exchange(ctx, code)
	if err != nil {
		s.logger.Error("oauth code exchange failed", zap.Error(err))
		return "", nil, err
	}

	expiresAt := s.now().Add(s.ttl)
	if !tok.Expiry.IsZero() && tok.Expiry.Before(expiresAt) {
		expiresAt = tok.Expiry
	}
	session := &domain.Session{
		ID:          uuid.NewString(),
		Email:       tok.Email,
		AccessToken: tok.AccessToken,
		ExpiresAt:   expiresAt,
	}

	signed, err := s.sign(session)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}

	s.logger.Info("google session created",
		zap.String("session_id", session.ID),
		zap.String("email", session.Email),
		zap.Time("expires_at", expiresAt),
	)
	return signed, session, nil
}

// ============================================================
// Validate: used by middleware
// ============================================================

// SessionClaims are the claims of a session token.
type SessionClaims struct {
	AccessToken string `json:"gat"`
	Email       string `json:"email,omitempty"`
	Type        string `json:"type"`
	jwt.RegisteredClaims
}

// Validate parses a session token and returns the session it carries.
func (s *SessionService) Validate(tokenString string) (*domain.Session, error) {
	if tokenString == "" {
		return nil, &domain.ErrUnauthorized{Message: "Not authenticated with Google"}
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Session invalid or expired"}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Type != "session" || claims.AccessToken == "" {
		return nil, &domain.ErrUnauthorized{Message: "Session invalid"}
	}

	session := &domain.Session{
		ID:          claims.ID,
		Email:       claims.Email,
		AccessToken: claims.AccessToken,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (s *SessionService) sign(session *domain.Session) (string, error) {
	claims := SessionClaims{
		AccessToken: session.AccessToken,
		Email:       session.Email,
		Type:        "session",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   session.Email,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			Issuer:    sessionIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
