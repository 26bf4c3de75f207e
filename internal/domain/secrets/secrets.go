// internal/domain/secrets/secrets.go
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Keys of the secret bundle, as stored by the deployment.
const (
	KeyCalendarOAuth     = "googleCalendarOAuthCredentials"
	KeySheetsCredentials = "googleSheetsCredentials"
	KeyTwilioAccountSID  = "twilioAccountSid"
	KeyTwilioAuthToken   = "twilioAuthToken"
	KeyTwilioPhoneNumber = "twilioPhoneNumber"
	KeyTelegramBotToken  = "telegramBotToken"
)

var ErrMissingKey = errors.New("secret key missing")

// Raw is the secret as stored: a JSON object whose values are kept verbatim so
// unknown fields survive a write-back.
type Raw map[string]json.RawMessage

// Store is a read-mostly key-value secret backend. Put is used only to write
// refreshed OAuth tokens back.
type Store interface {
	Get(ctx context.Context) (Raw, error)
	Put(ctx context.Context, raw Raw) error
}

// OAuthCredentials are the installed-app credentials for the calendar API.
type OAuthCredentials struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenURI     string     `json:"token_uri"`
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// Bundle is the decoded secret.
type Bundle struct {
	CalendarOAuth     OAuthCredentials
	SheetsCredentials []byte // service-account JSON
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	TelegramBotToken  string
}

// String reads a plain string field. Missing keys return ErrMissingKey.
func (r Raw) String(key string) (string, error) {
	v, ok := r[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("secret %s is not a string: %w", key, err)
	}
	return s, nil
}

// Document reads a field holding JSON, either embedded as a string (the
// deployed format) or as a nested object.
func (r Raw) Document(key string) ([]byte, error) {
	v, ok := r[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return []byte(s), nil
	}
	return []byte(v), nil
}

// WithCalendarOAuth returns a copy of r with the calendar credentials replaced,
// stored as an embedded JSON string like the original field.
func (r Raw) WithCalendarOAuth(creds OAuthCredentials) (Raw, error) {
	doc, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("encode oauth credentials: %w", err)
	}
	field, err := json.Marshal(string(doc))
	if err != nil {
		return nil, err
	}
	out := make(Raw, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out[KeyCalendarOAuth] = field
	return out, nil
}

// Decode extracts the bundle. Only the calendar credentials are mandatory;
// the rest is validated by whichever adapter needs it. When the calendar
// credentials are missing the other fields are still filled in and the error
// wraps ErrMissingKey.
func (r Raw) Decode() (Bundle, error) {
	var b Bundle
	if doc, err := r.Document(KeySheetsCredentials); err == nil {
		b.SheetsCredentials = doc
	}
	b.TwilioAccountSID, _ = r.String(KeyTwilioAccountSID)
	b.TwilioAuthToken, _ = r.String(KeyTwilioAuthToken)
	b.TwilioPhoneNumber, _ = r.String(KeyTwilioPhoneNumber)
	b.TelegramBotToken, _ = r.String(KeyTelegramBotToken)

	doc, err := r.Document(KeyCalendarOAuth)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(doc, &b.CalendarOAuth); err != nil {
		return b, fmt.Errorf("decode %s: %w", KeyCalendarOAuth, err)
	}
	return b, nil
}
