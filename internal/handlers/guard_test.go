package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/utils"
)

// guardProfileRepo serves profiles to the guard from a map. A non-nil err
// simulates a transport failure.
type guardProfileRepo struct {
	profiles map[string]*models.Profile
	err      error
}

func (m *guardProfileRepo) Create(ctx context.Context, profile *models.Profile) error { return nil }
func (m *guardProfileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	if m.err != nil {
		return nil, m.err
	}
	profile, ok := m.profiles[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return profile, nil
}
func (m *guardProfileRepo) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return nil, repositories.ErrNotFound
}
func (m *guardProfileRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return false, nil
}
func (m *guardProfileRepo) Update(ctx context.Context, profile *models.Profile) error { return nil }
func (m *guardProfileRepo) SetApproval(ctx context.Context, id string, approved bool) error {
	return nil
}
func (m *guardProfileRepo) List(ctx context.Context, filters repositories.ProfileFilters) ([]*models.Profile, int64, error) {
	return nil, 0, nil
}

func confirmedIdentity(id string) *models.Identity {
	confirmed := time.Now().Add(-time.Hour)
	return &models.Identity{ID: id, Email: id + "@example.com", EmailConfirmedAt: &confirmed}
}

func TestNavStateFor(t *testing.T) {
	confirmed := time.Now().Add(-time.Hour)

	tests := []struct {
		name     string
		identity *models.Identity
		profile  *models.Profile
		want     NavState
	}{
		{"no identity", nil, nil, NavAnonymous},
		{"empty identity", &models.Identity{}, nil, NavAnonymous},
		{
			"unconfirmed email",
			&models.Identity{ID: "u1", Email: "u1@example.com"},
			nil,
			NavEmailUnconfirmed,
		},
		{
			"confirmed but no profile",
			&models.Identity{ID: "u1", EmailConfirmedAt: &confirmed},
			nil,
			NavPendingApproval,
		},
		{
			"confirmed but unapproved",
			&models.Identity{ID: "u1", EmailConfirmedAt: &confirmed},
			&models.Profile{ID: "u1", Role: models.RoleStudent, Approved: false},
			NavPendingApproval,
		},
		{
			"approved student",
			&models.Identity{ID: "u1", EmailConfirmedAt: &confirmed},
			&models.Profile{ID: "u1", Role: models.RoleStudent, Approved: true},
			NavActive,
		},
		{
			"admin skips the email gate",
			&models.Identity{ID: "u1"},
			&models.Profile{ID: "u1", Role: models.RoleAdmin},
			NavActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NavStateFor(tt.identity, tt.profile); got != tt.want {
				t.Errorf("NavStateFor() = %s, want %s", got, tt.want)
			}
		})
	}
}

func newGuardRouter(repo *guardProfileRepo, identity *models.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	guard := NewRouteGuard(repo, logger)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if identity != nil {
			c.Set("identity", identity)
			c.Set("user_id", identity.ID)
		}
		c.Next()
	})

	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	pages := router.Group("", guard.Pages())
	pages.GET(PathLogin, ok)
	pages.GET(PathSignup, ok)
	pages.GET(PathVerifyEmail, ok)
	pages.GET(PathWaitingApproval, ok)
	pages.GET(PathDashboard, ok)

	api := router.Group("/api", guard.API())
	api.GET("/ping", ok)

	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRouteGuard_Pages(t *testing.T) {
	verified := time.Now().Add(-time.Hour)
	active := &models.Profile{ID: "u1", Role: models.RoleStudent, Approved: true, EmailVerifiedAt: &verified}
	pending := &models.Profile{ID: "u1", Role: models.RoleStudent, Approved: false, EmailVerifiedAt: &verified}

	t.Run("anonymous dashboard redirects to login", func(t *testing.T) {
		router := newGuardRouter(&guardProfileRepo{}, nil)
		w := get(router, PathDashboard)
		if w.Code != http.StatusFound || w.Header().Get("Location") != PathLogin {
			t.Errorf("got %d -> %q, want 302 -> %s", w.Code, w.Header().Get("Location"), PathLogin)
		}
	})

	t.Run("anonymous login passes", func(t *testing.T) {
		router := newGuardRouter(&guardProfileRepo{}, nil)
		if w := get(router, PathLogin); w.Code != http.StatusOK {
			t.Errorf("got %d, want 200", w.Code)
		}
	})

	t.Run("unconfirmed email redirects to verify page", func(t *testing.T) {
		repo := &guardProfileRepo{profiles: map[string]*models.Profile{"u1": pending}}
		router := newGuardRouter(repo, &models.Identity{ID: "u1"})
		w := get(router, PathDashboard)
		if w.Code != http.StatusFound || w.Header().Get("Location") != PathVerifyEmail {
			t.Errorf("got %d -> %q, want 302 -> %s", w.Code, w.Header().Get("Location"), PathVerifyEmail)
		}
	})

	t.Run("pending approval redirects to waiting page", func(t *testing.T) {
		repo := &guardProfileRepo{profiles: map[string]*models.Profile{"u1": pending}}
		router := newGuardRouter(repo, confirmedIdentity("u1"))
		w := get(router, PathDashboard)
		if w.Code != http.StatusFound || w.Header().Get("Location") != PathWaitingApproval {
			t.Errorf("got %d -> %q, want 302 -> %s", w.Code, w.Header().Get("Location"), PathWaitingApproval)
		}
	})

	t.Run("active user reaches the dashboard", func(t *testing.T) {
		repo := &guardProfileRepo{profiles: map[string]*models.Profile{"u1": active}}
		router := newGuardRouter(repo, confirmedIdentity("u1"))
		if w := get(router, PathDashboard); w.Code != http.StatusOK {
			t.Errorf("got %d, want 200", w.Code)
		}
	})

	t.Run("active user bounced off login", func(t *testing.T) {
		repo := &guardProfileRepo{profiles: map[string]*models.Profile{"u1": active}}
		router := newGuardRouter(repo, confirmedIdentity("u1"))
		w := get(router, PathLogin)
		if w.Code != http.StatusFound || w.Header().Get("Location") != PathDashboard {
			t.Errorf("got %d -> %q, want 302 -> %s", w.Code, w.Header().Get("Location"), PathDashboard)
		}
	})

	t.Run("waiting page reachable while pending", func(t *testing.T) {
		repo := &guardProfileRepo{profiles: map[string]*models.Profile{"u1": pending}}
		router := newGuardRouter(repo, confirmedIdentity("u1"))
		if w := get(router, PathWaitingApproval); w.Code != http.StatusOK {
			t.Errorf("got %d, want 200", w.Code)
		}
	})

	t.Run("profile load failure fails closed", func(t *testing.T) {
		repo := &guardProfileRepo{err: errors.New("db down")}
		router := newGuardRouter(repo, confirmedIdentity("u1"))
		w := get(router, PathDashboard)
		if w.Code != http.StatusFound || w.Header().Get("Location") != PathLogin {
			t.Errorf("got %d -> %q, want 302 -> %s", w.Code, w.Header().Get("Location"), PathLogin)
		}
	})
}

func TestRouteGuard_API(t *testing.T) {
	verified := time.Now().Add(-time.Hour)
	active := &models.Profile{ID: "u1", Role: models.RoleStudent, Approved: true, EmailVerifiedAt: &verified}
	pending := &models.Profile{ID: "u1", Role: models.RoleStudent, Approved: false, EmailVerifiedAt: &verified}

	t.Run("anonymous gets 401", func(t *testing.T) {
		router := newGuardRouter(&guardProfileRepo{}, nil)
		if w := get(router, "/api/ping"); w.Code != http.StatusUnauthorized {
			t.Errorf("got %d, want 401", w.Code)
		}
	})

	t.Run("pending gets 403", func(t *testing.T) {
		repo := &guardProfileRepo{profiles: map[string]*models.Profile{"u1": pending}}
		router := newGuardRouter(repo, confirmedIdentity("u1"))
		if w := get(router, "/api/ping"); w.Code != http.StatusForbidden {
			t.Errorf("got %d, want 403", w.Code)
		}
	})

	t.Run("unconfirmed gets 403", func(t *testing.T) {
		repo := &guardProfileRepo{profiles: map[string]*models.Profile{"u1": pending}}
		router := newGuardRouter(repo, &models.Identity{ID: "u1"})
		if w := get(router, "/api/ping"); w.Code != http.StatusForbidden {
			t.Errorf("got %d, want 403", w.Code)
		}
	})

	t.Run("active passes", func(t *testing.T) {
		repo := &guardProfileRepo{profiles: map[string]*models.Profile{"u1": active}}
		router := newGuardRouter(repo, confirmedIdentity("u1"))
		if w := get(router, "/api/ping"); w.Code != http.StatusOK {
			t.Errorf("got %d, want 200", w.Code)
		}
	})
}
