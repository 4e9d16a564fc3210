package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ncsedu/grading-service/internal/metrics"
	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/utils"
)

// NavState is the navigation state recomputed for every request. There is no
// stored session state machine; identity and profile at request time decide
// everything.
type NavState string

const (
	NavAnonymous        NavState = "anonymous"
	NavEmailUnconfirmed NavState = "email_unconfirmed"
	NavPendingApproval  NavState = "pending_approval"
	NavActive           NavState = "active"
)

// Guard page paths.
const (
	PathRoot            = "/"
	PathLogin           = "/login"
	PathSignup          = "/signup"
	PathVerifyEmail     = "/verify-email"
	PathWaitingApproval = "/waiting-approval"
	PathDashboard       = "/dashboard"
)

// NavStateFor derives the navigation state from the identity/profile pair.
// A missing profile with a confirmed email still waits on approval; signup
// completion and admin review both funnel through the waiting page.
func NavStateFor(identity *models.Identity, profile *models.Profile) NavState {
	if identity == nil || identity.ID == "" {
		return NavAnonymous
	}
	if profile.IsAdmin() {
		return NavActive
	}
	if !identity.EmailConfirmed() {
		return NavEmailUnconfirmed
	}
	if profile == nil || !profile.Approved {
		return NavPendingApproval
	}
	return NavActive
}

// RouteGuard gates page and API routes on the navigation state.
type RouteGuard struct {
	profileRepo repositories.ProfileRepository
	logger      utils.Logger
}

func NewRouteGuard(profileRepo repositories.ProfileRepository, logger utils.Logger) *RouteGuard {
	return &RouteGuard{profileRepo: profileRepo, logger: logger}
}

// resolveState loads the profile for the resolved identity and derives the
// state. Profile lookup failure is treated as Anonymous: routing protection
// fails closed, unlike the fail-open display loads.
func (g *RouteGuard) resolveState(ctx context.Context, identity *models.Identity) NavState {
	if identity == nil || identity.ID == "" {
		return NavAnonymous
	}

	profile, err := g.profileRepo.GetByID(ctx, identity.ID)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			g.logger.Warn("guard profile load failed", "error", err, "user_id", identity.ID)
			return NavAnonymous
		}
		profile = nil
	}

	return NavStateFor(identity, profile)
}

// Pages returns the page-route middleware implementing the redirect table.
// Root always passes; login and signup bounce active users to the dashboard;
// the two status pages are reachable in any state.
func (g *RouteGuard) Pages() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == PathRoot {
			c.Next()
			return
		}

		state := g.resolveState(c.Request.Context(), IdentityFromContext(c))
		c.Set("nav_state", state)

		switch path {
		case PathLogin, PathSignup:
			if state == NavActive {
				g.redirect(c, state, PathDashboard)
				return
			}
			c.Next()
			return
		case PathVerifyEmail, PathWaitingApproval:
			c.Next()
			return
		}

		switch state {
		case NavAnonymous:
			g.redirect(c, state, PathLogin)
		case NavEmailUnconfirmed:
			g.redirect(c, state, PathVerifyEmail)
		case NavPendingApproval:
			g.redirect(c, state, PathWaitingApproval)
		default:
			c.Next()
		}
	}
}

// API returns the API-route middleware: 401 for anonymous callers, 403 for
// gated ones. JSON, never redirects.
func (g *RouteGuard) API() gin.HandlerFunc {
	return func(c *gin.Context) {
		state := g.resolveState(c.Request.Context(), IdentityFromContext(c))
		c.Set("nav_state", state)

		switch state {
		case NavAnonymous:
			c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
			c.Abort()
		case NavEmailUnconfirmed:
			c.JSON(http.StatusForbidden, ErrorResponse{Message: "Email address not verified"})
			c.Abort()
		case NavPendingApproval:
			c.JSON(http.StatusForbidden, ErrorResponse{Message: "Account pending approval"})
			c.Abort()
		default:
			c.Next()
		}
	}
}

func (g *RouteGuard) redirect(c *gin.Context, state NavState, target string) {
	metrics.GuardRedirectsTotal.WithLabelValues(string(state)).Inc()
	c.Redirect(http.StatusFound, target)
	c.Abort()
}
