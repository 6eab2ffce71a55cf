package sheets

import (
	"context"
	"errors"
	"net/http"

	"github.com/boddenberg/central-sheets-import/internal/config"
	"github.com/boddenberg/central-sheets-import/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// OAuth implements port.OAuthProvider for Google accounts.
type OAuth struct {
	cfg              *oauth2.Config
	httpClient       *http.Client
	userinfoEndpoint string
	logger           *zap.Logger
}

// NewOAuth builds the authorization-code flow for read-only Sheets access.
func NewOAuth(gc config.GoogleConfig, httpClient *http.Client, logger *zap.Logger) *OAuth {
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     gc.ClientID,
			ClientSecret: gc.ClientSecret,
			RedirectURL:  gc.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheetsapi.SpreadsheetsReadonlyScope, googleoauth.UserinfoEmailScope},
		},
		httpClient: httpClient,
		logger:     logger,
	}
}

// WithEndpoints returns a copy talking to other OAuth and userinfo servers.
func (o *OAuth) WithEndpoints(authURL, tokenURL, userinfoEndpoint string) *OAuth {
	cp := *o
	cfg := *o.cfg
	cfg.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
	cp.cfg = &cfg
	cp.userinfoEndpoint = userinfoEndpoint
	return &cp
}

// AuthCodeURL returns the consent URL. Offline access with forced approval so
// Google always issues a refresh token.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the authorization code for a token and resolves the
// account email. A failed email lookup is logged and leaves Email empty.
func (o *OAuth) Exchange(ctx context.Context, code string) (*domain.GoogleToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)

	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, &domain.ErrUnauthorized{Message: "Google authorization failed"}
		}
		return nil, &domain.ErrExternalService{Service: "google-oauth", Err: err}
	}

	result := &domain.GoogleToken{AccessToken: tok.AccessToken, Expiry: tok.Expiry}

	opts := []option.ClientOption{option.WithTokenSource(o.cfg.TokenSource(ctx, tok))}
	if o.userinfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(o.userinfoEndpoint))
	}
	svc, err := googleoauth.NewService(ctx, opts...)
	if err != nil {
		o.logger.Warn("userinfo client unavailable", zap.Error(err))
		return result, nil
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		o.logger.Warn("failed to resolve google account email", zap.Error(err))
		return result, nil
	}
	result.Email = info.Email
	return result, nil
}
