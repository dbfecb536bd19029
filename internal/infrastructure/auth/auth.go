package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/config"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

const (
	// ContextUserIDKey is the gin context key holding the authenticated user id.
	ContextUserIDKey = "user_id"
	// GatewayUserHeader carries the user id set by a trusted gateway when auth is disabled.
	GatewayUserHeader = "X-User-ID"
	// AccessTokenQueryParam carries the credential for browser websocket clients.
	AccessTokenQueryParam = "access_token"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Principal is the identity proven by a credential.
type Principal struct {
	UserID    string
	ExpiresAt time.Time
}

// Validator validates JWTs using JWKS or a shared HMAC secret.
type Validator struct {
	enabled  bool
	issuer   string
	audience string
	secret   []byte
	jwks     *keyfunc.JWKS
	now      func() time.Time
	log      zerolog.Logger
}

// NewValidator initializes JWKS fetching when auth is enabled and a JWKS url is configured.
func NewValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	v := &Validator{
		enabled:  cfg.AuthEnabled,
		issuer:   strings.TrimSpace(cfg.AuthIssuer),
		audience: strings.TrimSpace(cfg.AuthAudience),
		secret:   []byte(cfg.AuthHMACSecret),
		now:      time.Now,
		log:      log.With().Str("component", "auth").Logger(),
	}
	if !cfg.AuthEnabled || strings.TrimSpace(cfg.AuthJWKSURL) == "" {
		return v, nil
	}

	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error().Err(err).Msg("jwks refresh error")
		},
	}
	jwks, err := keyfunc.Get(cfg.AuthJWKSURL, options)
	if err != nil {
		return nil, err
	}
	v.jwks = jwks
	return v, nil
}

// Enabled reports whether credentials are checked.
func (v *Validator) Enabled() bool {
	return v.enabled
}

// Verify checks a credential statelessly and returns the user it proves.
func (v *Validator) Verify(ctx context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Principal{}, unauthenticated(ctx, ErrMissingCredential)
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithTimeFunc(v.now)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var keyFunc jwt.Keyfunc
	if v.jwks != nil {
		keyFunc = v.jwks.Keyfunc
		opts = append(opts, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384"}))
	} else {
		if len(v.secret) == 0 {
			return Principal{}, unauthenticated(ctx, errors.New("no verification key configured"))
		}
		keyFunc = func(*jwt.Token) (interface{}, error) { return v.secret, nil }
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
	}

	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(credential, &claims, keyFunc, opts...)
	if err != nil || !token.Valid {
		return Principal{}, unauthenticated(ctx, errors.Join(ErrInvalidCredential, err))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Principal{}, unauthenticated(ctx, errors.Join(ErrInvalidCredential, errors.New("token has no subject")))
	}

	principal := Principal{UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}
	return principal, nil
}

// Authenticate resolves the caller of an HTTP request: the bearer header, then
// the access_token query parameter, then the gateway header when auth is disabled.
func (v *Validator) Authenticate(ctx context.Context, r *http.Request) (Principal, error) {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return v.verifyOrTrust(ctx, token)
	}
	if token := strings.TrimSpace(r.URL.Query().Get(AccessTokenQueryParam)); token != "" {
		return v.verifyOrTrust(ctx, token)
	}
	if !v.enabled {
		if userID := strings.TrimSpace(r.Header.Get(GatewayUserHeader)); userID != "" {
			return Principal{UserID: userID}, nil
		}
	}
	return Principal{}, unauthenticated(ctx, ErrMissingCredential)
}

// verifyOrTrust verifies the token when auth is enabled. With auth disabled a
// token is still parsed if a key is configured, otherwise rejected.
func (v *Validator) verifyOrTrust(ctx context.Context, token string) (Principal, error) {
	if !v.enabled && v.jwks == nil && len(v.secret) == 0 {
		return Principal{}, unauthenticated(ctx, errors.New("token auth is disabled"))
	}
	return v.Verify(ctx, token)
}

// Middleware enforces authentication and stores the user id in the gin context.
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := v.Authenticate(c.Request.Context(), c.Request)
		if err != nil {
			v.log.Debug().Err(err).Str("path", c.FullPath()).Msg("request rejected")
			platformerrors.WriteUnauthorized(c, "authentication required")
			return
		}
		c.Set(ContextUserIDKey, principal.UserID)
		c.Next()
	}
}

// UserID returns the authenticated user id stored by Middleware.
func UserID(c *gin.Context) (string, bool) {
	value, ok := c.Get(ContextUserIDKey)
	if !ok {
		return "", false
	}
	userID, ok := value.(string)
	return userID, ok && userID != ""
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthenticated(ctx context.Context, err error) error {
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeUnauthorized,
		"authentication failed", err, "8c2f6e14-0d7b-4a39-b5e1-f94a3c7d2e58")
}
