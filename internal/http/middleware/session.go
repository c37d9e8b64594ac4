package middleware

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/zyta-booking-widget/internal/tenancy"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

const (
	// SessionCookie carries the signed id of the current booking attempt.
	SessionCookie = "zyta_widget"
	// VisitorCookie carries the signed id of the browser, which outlives
	// booking sessions and keys the visitor's display preferences.
	VisitorCookie = "zyta_visitor"
)

const (
	sessionIssuer = "zyta-widget"
	visitorIssuer = "zyta-visitor"
)

// SessionOptions configures WidgetSession.
type SessionOptions struct {
	Secret     []byte
	TTL        time.Duration
	VisitorTTL time.Duration
	Secure     bool
	Logger     *logging.Logger
}

// WidgetSession identifies the visitor with HMAC-signed JWT cookies and
// stores the session and visitor ids in the request context. A missing,
// expired, or tampered cookie starts a new id; a cookie past half its
// lifetime is re-issued with the same id.
func WidgetSession(opts SessionOptions) func(http.Handler) http.Handler {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.VisitorTTL <= 0 {
		opts.VisitorTTL = 365 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	session := signedCookie{name: SessionCookie, issuer: sessionIssuer, ttl: opts.TTL}
	visitor := signedCookie{name: VisitorCookie, issuer: visitorIssuer, ttl: opts.VisitorTTL}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			sessionID, err := session.ensure(w, r, now, opts)
			if err != nil {
				opts.Logger.Error("widget session signing failed", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			visitorID, err := visitor.ensure(w, r, now, opts)
			if err != nil {
				opts.Logger.Error("widget visitor signing failed", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			ctx := tenancy.WithSessionID(r.Context(), sessionID)
			ctx = tenancy.WithVisitorID(ctx, visitorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type signedCookie struct {
	name   string
	issuer string
	ttl    time.Duration
}

// ensure returns the id the request's cookie carries, issuing or renewing
// the cookie when needed.
func (c signedCookie) ensure(w http.ResponseWriter, r *http.Request, now time.Time, opts SessionOptions) (string, error) {
	id, expires, ok := c.parse(r, opts.Secret)
	if ok && expires.Sub(now) >= c.ttl/2 {
		return id, nil
	}
	if !ok {
		id = uuid.NewString()
	}
	token, err := c.sign(id, now, opts.Secret)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(c.ttl),
		MaxAge:   int(c.ttl.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: sameSite(opts.Secure),
	})
	return id, nil
}

// sameSite lets the cookie reach the widget inside an embedding site's
// iframe. Browsers drop SameSite=None cookies that are not Secure, so plain
// HTTP development stays on Lax.
func sameSite(secure bool) http.SameSite {
	if secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (c signedCookie) parse(r *http.Request, secret []byte) (string, time.Time, bool) {
	cookie, err := r.Cookie(c.name)
	if err != nil || cookie.Value == "" {
		return "", time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", time.Time{}, false
	}
	return claims.Subject, claims.ExpiresAt.Time, true
}

func (c signedCookie) sign(id string, now time.Time, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   id,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
