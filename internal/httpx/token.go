package httpx

import (
	"context"
	"time"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

// expirySkew is how long before the recorded expiry a token is treated as
// already expired, so a request never departs with a token about to lapse.
const expirySkew = 5 * time.Minute

// ExpiringToken is a bearer token with an explicit expiry and an optional
// refresh hook. Connectors that receive short-lived tokens from the host
// share this type instead of redefining per-call expiry shims.
type ExpiringToken struct {
	token     string
	expiresAt time.Time

	// refresh, when set, is invoked once the token is within expirySkew
	// of its expiry. It returns the replacement token and its expiry.
	refresh func(ctx context.Context) (string, time.Time, error)

	now func() time.Time
}

// NewStaticToken wraps a token that cannot be refreshed in-process. A zero
// expiresAt means the expiry is unknown and the token is always used.
func NewStaticToken(token string, expiresAt time.Time) *ExpiringToken {
	return &ExpiringToken{token: token, expiresAt: expiresAt, now: time.Now}
}

// NewRefreshableToken wraps a token with a refresh hook.
func NewRefreshableToken(token string, expiresAt time.Time, refresh func(ctx context.Context) (string, time.Time, error)) *ExpiringToken {
	return &ExpiringToken{token: token, expiresAt: expiresAt, refresh: refresh, now: time.Now}
}

// Get returns a token valid for at least expirySkew, refreshing if a hook
// is available. A static token past its expiry yields ErrAuthExpired so
// the user is routed back into authorization instead of seeing a vendor
// 401.
func (t *ExpiringToken) Get(ctx context.Context) (string, error) {
	if t.expiresAt.IsZero() || t.now().Before(t.expiresAt.Add(-expirySkew)) {
		return t.token, nil
	}
	if t.refresh == nil {
		return "", datasource.ErrAuthExpired
	}
	token, expiresAt, err := t.refresh(ctx)
	if err != nil {
		return "", err
	}
	t.token = token
	t.expiresAt = expiresAt
	return t.token, nil
}
