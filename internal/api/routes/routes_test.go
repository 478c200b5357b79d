package routes_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/livechat-service/internal/api/handlers"
	"github.com/unifiedui/livechat-service/internal/api/middleware"
	"github.com/unifiedui/livechat-service/internal/api/routes"
	"github.com/unifiedui/livechat-service/internal/services/business"
	"github.com/unifiedui/livechat-service/internal/services/chat/registry"
	"github.com/unifiedui/livechat-service/internal/services/chat/typing"
	"github.com/unifiedui/livechat-service/tests/mocks"
	"github.com/unifiedui/livechat-service/tests/testutils"
)

type terminatorFunc func(sessionID string) bool

func (f terminatorFunc) TerminateSession(sessionID string) bool { return f(sessionID) }

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()

	reg := registry.New(&registry.Config{Logger: testutils.NopLogger()})
	coord, err := typing.NewCoordinator(&typing.Config{Broadcaster: reg, Logger: testutils.NopLogger()})
	require.NoError(t, err)
	svc, err := business.NewService(&business.Config{Store: &mocks.MockBusinessStore{}, Logger: testutils.NopLogger()})
	require.NoError(t, err)

	cfg := &routes.Config{
		HealthHandler: handlers.NewHealthHandler(nil, nil, nil, reg, nil),
		SessionsHandler: handlers.NewSessionsHandler(&handlers.SessionsHandlerConfig{
			Sessions:   reg,
			Typing:     coord,
			Terminator: terminatorFunc(reg.Terminate),
		}),
		BusinessesHandler: handlers.NewBusinessesHandler(svc),
		CORS:              middleware.DefaultCORSConfig(nil),
	}

	router := testutils.SetupTestRouter()
	router.HandleMethodNotAllowed = true
	routes.SetupWithMiddleware(router, cfg, middleware.NewLoggingMiddlewareWithLogger(*testutils.NopLogger()), middleware.NewErrorMiddleware())
	return router
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "live", method: "GET", path: "/api/v1/chat/live", wantStatus: http.StatusOK},
		{name: "health without stores", method: "GET", path: "/api/v1/chat/health", wantStatus: http.StatusOK},
		{name: "unknown session", method: "GET", path: "/api/v1/chat/sessions/missing", wantStatus: http.StatusNotFound},
		{name: "delete unknown session", method: "DELETE", path: "/api/v1/chat/sessions/missing", wantStatus: http.StatusNotFound},
		{name: "history without archive", method: "GET", path: "/api/v1/chat/sessions/missing/history", wantStatus: http.StatusServiceUnavailable},
		{name: "unknown route", method: "GET", path: "/api/v1/chat/nope", wantStatus: http.StatusNotFound},
		{name: "wrong method", method: "POST", path: "/api/v1/chat/live", wantStatus: http.StatusMethodNotAllowed},
	}

	router := setupRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			w := testutils.PerformRequest(router, tt.method, tt.path, nil, nil)

			// Assert
			testutils.AssertStatusCode(t, tt.wantStatus, w)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRoutes_Preflight(t *testing.T) {
	// Arrange
	router := setupRouter(t)

	// Act
	w := testutils.PerformRequest(router, "OPTIONS", "/api/v1/chat/sessions/s1", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "DELETE",
	})

	// Assert
	testutils.AssertStatusCode(t, http.StatusNoContent, w)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
}
