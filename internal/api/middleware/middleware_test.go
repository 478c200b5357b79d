package middleware_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/livechat-service/internal/api/middleware"
	domainerrors "github.com/unifiedui/livechat-service/internal/domain/errors"
	"github.com/unifiedui/livechat-service/tests/testutils"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantDetails string
	}{
		{
			name:        "validation keeps details",
			err:         domainerrors.NewValidationError("invalid query parameters", "limit too large"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    domainerrors.ErrCodeValidation,
			wantDetails: "limit too large",
		},
		{
			name:        "not found keeps details",
			err:         domainerrors.NewNotFoundError("session", "s1"),
			wantStatus:  http.StatusNotFound,
			wantCode:    domainerrors.ErrCodeNotFound,
			wantDetails: "s1",
		},
		{
			name:       "internal hides details",
			err:        domainerrors.NewInternalError("failed to list messages", assert.AnError),
			wantStatus: http.StatusInternalServerError,
			wantCode:   domainerrors.ErrCodeInternal,
		},
		{
			name:       "plain error",
			err:        assert.AnError,
			wantStatus: http.StatusInternalServerError,
			wantCode:   domainerrors.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			router := testutils.SetupTestRouter()
			router.GET("/fail", func(c *gin.Context) { middleware.HandleError(c, tt.err) })

			// Act
			w := testutils.PerformRequest(router, "GET", "/fail", nil, nil)

			// Assert
			testutils.AssertStatusCode(t, tt.wantStatus, w)

			var response middleware.ErrorResponse
			testutils.ParseJSONResponse(t, w, &response)
			assert.Equal(t, tt.wantCode, response.Code)
			assert.Equal(t, tt.wantDetails, response.Details)
			assert.NotContains(t, w.Body.String(), assert.AnError.Error())
		})
	}
}

func TestErrorMiddleware_Recovery(t *testing.T) {
	// Arrange
	router := testutils.SetupTestRouter()
	router.Use(middleware.NewErrorMiddleware().Recovery())
	router.GET("/panic", func(*gin.Context) { panic("nil map") })

	// Act
	w := testutils.PerformRequest(router, "GET", "/panic", nil, nil)

	// Assert
	testutils.AssertStatusCode(t, http.StatusInternalServerError, w)

	var response middleware.ErrorResponse
	testutils.ParseJSONResponse(t, w, &response)
	assert.Equal(t, domainerrors.ErrCodeInternal, response.Code)
	assert.NotContains(t, w.Body.String(), "nil map")
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	// Arrange
	router := testutils.SetupTestRouter()
	router.HandleMethodNotAllowed = true
	router.GET("/only-get", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.NoRoute(middleware.NotFound())
	router.NoMethod(middleware.MethodNotAllowed())

	// Act
	missing := testutils.PerformRequest(router, "GET", "/missing", nil, nil)
	wrongMethod := testutils.PerformRequest(router, "POST", "/only-get", nil, nil)

	// Assert
	testutils.AssertStatusCode(t, http.StatusNotFound, missing)
	testutils.AssertStatusCode(t, http.StatusMethodNotAllowed, wrongMethod)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{name: "allowed origin", method: "GET", origin: "http://localhost:5173", wantStatus: http.StatusOK, wantAllow: "http://localhost:5173"},
		{name: "foreign origin", method: "GET", origin: "https://evil.example", wantStatus: http.StatusOK, wantAllow: ""},
		{name: "preflight", method: "OPTIONS", origin: "http://localhost:5173", wantStatus: http.StatusNoContent, wantAllow: "http://localhost:5173"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := middleware.DefaultCORSConfig(nil)
			router := testutils.SetupTestRouter()
			router.Use(middleware.NewCORSMiddleware(cfg))
			middleware.SetupCORSRoutes(router, cfg)
			router.GET("/api", func(c *gin.Context) { c.Status(http.StatusOK) })

			// Act
			w := testutils.PerformRequest(router, tt.method, "/api", nil, map[string]string{"Origin": tt.origin})

			// Assert
			testutils.AssertStatusCode(t, tt.wantStatus, w)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantAllow != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}

func TestDefaultCORSConfig_ConfiguredOrigins(t *testing.T) {
	cfg := middleware.DefaultCORSConfig([]string{"https://chat.example"})
	assert.Equal(t, []string{"https://chat.example"}, cfg.AllowOrigins)
}

func TestLoggingMiddleware(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	mw := middleware.NewLoggingMiddlewareWithLogger(logger)

	router := testutils.SetupTestRouter()
	router.Use(mw.Logger(), mw.RequestLogger())

	var requestID string
	router.GET("/sessions/:sessionId", func(c *gin.Context) {
		requestID = middleware.GetRequestID(c)
		reqLogger := middleware.GetRequestLogger(c)
		reqLogger.Info().Msg("inside handler")
		c.Status(http.StatusOK)
	})

	// Act
	req := httptest.NewRequest("GET", "/sessions/s1", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", requestID)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), `"session_id":"s1"`)
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
	assert.Contains(t, buf.String(), `"message":"request completed"`)
}

func TestRequestLogger_GeneratesID(t *testing.T) {
	// Arrange
	mw := middleware.NewLoggingMiddlewareWithLogger(zerolog.Nop())
	router := testutils.SetupTestRouter()
	router.Use(mw.RequestLogger())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Act
	w := testutils.PerformRequest(router, "GET", "/", nil, nil)

	// Assert
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}
