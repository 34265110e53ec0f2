package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagecall/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Security: config.SecurityConfig{
			AdminAPIKey:        "test-admin-key",
			CorsAllowedOrigins: []string{"*"},
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(testConfig(), testLogger())
	require.NoError(t, err)
	return s
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, testLogger())
	assert.Error(t, err)

	_, err = NewServer(testConfig(), nil)
	assert.Error(t, err)
}

func TestMountRoutes_RegistrarsAreMountedUnderV1(t *testing.T) {
	s := newTestServer(t)
	s.V1RouteRegistrars = append(s.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	s.MountRoutes()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMountRoutes_HealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	s.MountRoutes()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestShutdown_RunsAllHooksAndReturnsFirstError(t *testing.T) {
	s := newTestServer(t)

	var order []string
	s.OnShutdown(func(ctx context.Context) error {
		order = append(order, "first")
		return fmt.Errorf("pool close failed")
	})
	s.OnShutdown(func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})

	err := s.Shutdown(context.Background())
	assert.EqualError(t, err, "pool close failed")
	assert.Equal(t, []string{"first", "second"}, order)
}
