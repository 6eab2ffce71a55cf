package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/service"

	"go.uber.org/zap"
)

const stateTTL = 10 * time.Minute

// ============================================================
// Google OAuth
// ============================================================

func googleLoginHandler(sessions *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /auth/google")
		defer span.End()

		if sessions == nil {
			http.Redirect(w, r, "/?error=auth_failed", http.StatusFound)
			return
		}

		login := sessions.Login()
		setCookie(w, r, stateCookie, login.State, time.Now().Add(stateTTL))

		if strings.Contains(r.Header.Get("Accept"), "application/json") {
			writeJSON(w, http.StatusOK, login)
			return
		}
		http.Redirect(w, r, login.AuthURL, http.StatusFound)
	}
}

func googleCallbackHandler(sessions *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /auth/callback")
		defer span.End()

		q := r.URL.Query()
		if oauthErr := q.Get("error"); oauthErr != "" {
			logger.Warn("oauth consent denied", zap.String("error", oauthErr))
			http.Redirect(w, r, "/?error=oauth_denied", http.StatusFound)
			return
		}
		if q.Get("code") == "" {
			http.Redirect(w, r, "/?error=no_code", http.StatusFound)
			return
		}
		if sessions == nil {
			http.Redirect(w, r, "/?error=auth_failed", http.StatusFound)
			return
		}

		expected := ""
		if c, err := r.Cookie(stateCookie); err == nil {
			expected = c.Value
		}
		clearCookie(w, r, stateCookie)

		token, session, err := sessions.Callback(ctx, q.Get("code"), q.Get("state"), expected)
		if err != nil {
			logger.Error("oauth callback failed", zap.Error(err))
			http.Redirect(w, r, "/?error=callback_failed", http.StatusFound)
			return
		}

		setCookie(w, r, sessionCookie, token, session.ExpiresAt)
		http.Redirect(w, r, "/?auth=success", http.StatusFound)
	}
}

func authStatusHandler(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := domain.AuthStatus{}
		if sessions != nil {
			if session, err := sessions.Validate(sessionToken(r)); err == nil {
				status = domain.AuthStatus{Authenticated: true, Email: session.Email, ExpiresAt: session.ExpiresAt}
			}
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func logoutHandler(sessions *service.SessionService, sheetsSvc *service.SheetsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /auth/logout")
		defer span.End()

		if sessions != nil && sheetsSvc != nil {
			if session, err := sessions.Validate(sessionToken(r)); err == nil {
				sheetsSvc.Forget(session.ID)
				logger.Info("google session closed", zap.String("session_id", session.ID))
			}
		}
		clearCookie(w, r, sessionCookie)
		w.WriteHeader(http.StatusNoContent)
	}
}
