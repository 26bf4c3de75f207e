// internal/infra/google/oauth.go
package google

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"payment_reminder/internal/domain/secrets"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
)

const defaultTokenURI = "https://oauth2.googleapis.com/token"

// expiryLeeway refreshes tokens slightly before they actually lapse.
const expiryLeeway = time.Minute

// Refresher keeps the calendar OAuth credentials fresh and writes refreshed
// tokens back into the secret store.
type Refresher struct {
	store      secrets.Store
	httpClient *http.Client // nil uses http.DefaultClient
	now        func() time.Time
	logger     *logrus.Entry
}

func NewRefresher(store secrets.Store, httpClient *http.Client, logger *logrus.Entry) *Refresher {
	return &Refresher{
		store:      store,
		httpClient: httpClient,
		now:        time.Now,
		logger:     logger.WithField("component", "oauth_refresher"),
	}
}

// Expired reports whether creds need a refresh. Credentials without a recorded
// expiry are treated as expired since their age is unknown.
func Expired(creds secrets.OAuthCredentials, now time.Time) bool {
	if creds.AccessToken == "" || creds.Expiry == nil {
		return true
	}
	return !now.Add(expiryLeeway).Before(*creds.Expiry)
}

func (r *Refresher) config(creds secrets.OAuthCredentials) *oauth2.Config {
	tokenURI := creds.TokenURI
	if tokenURI == "" {
		tokenURI = defaultTokenURI
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURI, AuthStyle: oauth2.AuthStyleInParams},
		Scopes:       []string{calendar.CalendarReadonlyScope},
	}
}

func (r *Refresher) oauthContext(ctx context.Context) context.Context {
	if r.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
}

// RefreshAndPersist returns usable credentials. When a refresh happens the new
// access (and, if rotated, refresh) token is written back to the secret store
// and refreshed is true. A failed write-back is returned as an error together
// with the fresh credentials, which remain usable for this run.
func (r *Refresher) RefreshAndPersist(ctx context.Context, creds secrets.OAuthCredentials) (secrets.OAuthCredentials, bool, error) {
	if !Expired(creds, r.now()) {
		return creds, false, nil
	}
	if creds.RefreshToken == "" {
		return creds, false, fmt.Errorf("calendar credentials expired and no refresh token is available")
	}

	r.logger.Info("Refreshing calendar access token")
	tok, err := r.config(creds).TokenSource(r.oauthContext(ctx), &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		return creds, false, fmt.Errorf("refresh calendar token: %w", err)
	}

	updated := creds
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		updated.Expiry = &expiry
	}

	if err := r.persist(ctx, updated); err != nil {
		return updated, true, err
	}
	r.logger.Info("Refreshed calendar token persisted to secret store")
	return updated, true, nil
}

// persist is a read-modify-write of the single credentials field.
func (r *Refresher) persist(ctx context.Context, creds secrets.OAuthCredentials) error {
	raw, err := r.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("re-read secret before token write-back: %w", err)
	}
	next, err := raw.WithCalendarOAuth(creds)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, next); err != nil {
		return fmt.Errorf("write refreshed token: %w", err)
	}
	return nil
}

// TokenSource wraps creds for API clients, refreshing in memory if the token
// lapses mid-run.
func (r *Refresher) TokenSource(ctx context.Context, creds secrets.OAuthCredentials) oauth2.TokenSource {
	tok := &oauth2.Token{AccessToken: creds.AccessToken, RefreshToken: creds.RefreshToken, TokenType: "Bearer"}
	if creds.Expiry != nil {
		tok.Expiry = *creds.Expiry
	}
	return r.config(creds).TokenSource(r.oauthContext(ctx), tok)
}
