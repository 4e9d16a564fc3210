package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/ncsedu/grading-service/internal/config"
	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/utils"
)

// refreshWindow is how close to expiry a session token must be before the
// resolver attempts a silent refresh.
const refreshWindow = 5 * time.Minute

// SessionResolver turns the session cookie (or a Bearer header) into an
// authenticated identity. It never aborts a request: malformed, expired or
// absent tokens all degrade to anonymous, and downstream layers decide what
// anonymous may do.
type SessionResolver struct {
	client *casdoorsdk.Client
	cfg    *config.Config
	logger utils.Logger
}

func NewSessionResolver(cfg *config.Config, logger utils.Logger) *SessionResolver {
	client := casdoorsdk.NewClient(
		cfg.Casdoor.Endpoint,
		cfg.Casdoor.ClientID,
		cfg.Casdoor.ClientSecret,
		cfg.Casdoor.Cert,
		cfg.Casdoor.Application,
		cfg.Casdoor.Organization,
	)

	return &SessionResolver{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Resolve is the session middleware. On success it sets identity, user_id and
// user_email in the gin context; on any failure it simply continues.
func (r *SessionResolver) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := r.extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := r.client.ParseJwtToken(token)
		if err != nil {
			// Expired or garbage cookie; the user is simply anonymous.
			c.Next()
			return
		}

		identity := identityFromClaims(claims)
		if identity == nil {
			c.Next()
			return
		}

		r.maybeRefresh(c, claims)

		c.Set("identity", identity)
		c.Set("user_id", identity.ID)
		c.Set("user_email", identity.Email)

		c.Next()
	}
}

// RequireAuth aborts with 401 when no identity was resolved. Mount after
// Resolve on API groups that need an authenticated caller.
func (r *SessionResolver) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get("user_id"); !exists {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (r *SessionResolver) extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(r.cfg.SessionCookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}

	return ""
}

// maybeRefresh rotates the session cookie when the token is close to expiry
// and a refresh cookie is present. Failures are logged and ignored; the
// current token is still valid for this request.
func (r *SessionResolver) maybeRefresh(c *gin.Context, claims *casdoorsdk.Claims) {
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > refreshWindow {
		return
	}

	refreshToken, err := c.Cookie(r.cfg.RefreshCookieName)
	if err != nil || refreshToken == "" {
		return
	}

	newToken, err := r.client.RefreshOAuthToken(refreshToken)
	if err != nil {
		r.logger.Warn("silent session refresh failed", "error", err)
		return
	}

	secure := r.cfg.Environment != "development"
	maxAge := int(time.Until(newToken.Expiry).Seconds())
	if maxAge <= 0 {
		maxAge = 3600
	}

	c.SetCookie(r.cfg.SessionCookieName, newToken.AccessToken, maxAge, "/", "", secure, true)
	if newToken.RefreshToken != "" {
		c.SetCookie(r.cfg.RefreshCookieName, newToken.RefreshToken, 30*24*3600, "/", "", secure, true)
	}
}

// identityFromClaims maps the provider's JWT claims onto the identity the
// rest of the service consumes. Only verification state crosses the boundary.
func identityFromClaims(claims *casdoorsdk.Claims) *models.Identity {
	if claims == nil || claims.User.Id == "" {
		return nil
	}

	var confirmedAt *time.Time
	if claims.User.EmailVerified {
		if claims.IssuedAt != nil {
			t := claims.IssuedAt.Time
			confirmedAt = &t
		} else {
			now := time.Now()
			confirmedAt = &now
		}
	}

	return &models.Identity{
		ID:               claims.User.Id,
		Email:            claims.User.Email,
		EmailConfirmedAt: confirmedAt,
	}
}

// IdentityFromContext extracts the resolved identity, nil when anonymous.
func IdentityFromContext(c *gin.Context) *models.Identity {
	value, exists := c.Get("identity")
	if !exists {
		return nil
	}
	identity, ok := value.(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

// UserIDFromContext extracts the authenticated user ID, empty when anonymous.
func UserIDFromContext(c *gin.Context) string {
	return c.GetString("user_id")
}
