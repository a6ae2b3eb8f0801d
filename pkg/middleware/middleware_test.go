package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/market-console/finance-portal/pkg/errors"
	"github.com/market-console/finance-portal/pkg/logging"
	"github.com/market-console/finance-portal/pkg/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter() *gin.Engine {
	router := gin.New()
	cfg := DefaultConfig("test", logging.Discard())
	cfg.Validations = []CustomValidation{{
		Tag:     "even",
		Fn:      func(fl validator.FieldLevel) bool { return fl.Field().Int()%2 == 0 },
		Message: "must be even",
	}}
	Setup(router, cfg)
	return router
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSessionAuthRequiresBearer(t *testing.T) {
	router := newRouter()
	router.GET("/p", SessionAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"", "Basic abc", "Bearer ", "token"} {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.Equal(t, apperrors.CodeUnauthorized, decodeError(t, w).Code)
	}
}

func TestSessionAuthScopesSessionToToken(t *testing.T) {
	router := newRouter()
	var got *session.Context
	var fromCtx string
	router.GET("/p", SessionAuth(), func(c *gin.Context) {
		got = GetSession(c)
		fromCtx = session.TokenFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.Token)
	assert.Equal(t, "abc", fromCtx)
	assert.Equal(t, session.IDFromToken("abc"), got.SessionID)

	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "bearer abc")
	req.Header.Set(HeaderSessionID, "tab-2")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.IDFromToken("abc")+"/tab-2", got.SessionID)
}

func TestSessionAuthRejectsLongSessionID(t *testing.T) {
	router := newRouter()
	router.GET("/p", SessionAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set(HeaderSessionID, strings.Repeat("x", 65))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorHandlerRendersAppError(t *testing.T) {
	router := newRouter()
	router.GET("/gone", WrapHandler(func(*gin.Context) error {
		return apperrors.ErrSessionClosed()
	}))
	router.GET("/plain", WrapHandler(func(*gin.Context) error {
		return errors.New("kaboom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/gone", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGone, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, apperrors.CodeGone, resp.Code)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "/gone", resp.Path)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecoveryAndCorrelationHeaders(t *testing.T) {
	router := newRouter()
	router.GET("/panic", func(*gin.Context) { panic("nope") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(HeaderCorrelationID, "corr-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "corr-1", w.Header().Get(HeaderCorrelationID))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, apperrors.CodeInternalError, decodeError(t, w).Code)
}

func TestBindAndValidateUsesCustomMessages(t *testing.T) {
	router := newRouter()
	type body struct {
		Day   string `json:"day" binding:"omitempty,day"`
		Count int    `json:"count" binding:"even"`
	}
	router.POST("/v", func(c *gin.Context) {
		var b body
		if appErr := BindAndValidate(c, &b); appErr != nil {
			NewErrorResponder(c, nil).RespondWithAppError(appErr)
			return
		}
		c.Status(http.StatusNoContent)
	})

	send := func(payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, send(`{"day":"2024-05-01","count":2}`).Code)

	w := send(`{"day":"01/05/2024","count":3}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, apperrors.CodeValidationError, resp.Code)
	assert.Equal(t, "must be a date in YYYY-MM-DD format", resp.Details["day"])
	assert.Equal(t, "must be even", resp.Details["count"])
}

func TestContentTypeRejectsNonJSON(t *testing.T) {
	router := newRouter()
	router.PUT("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPut, "/x", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestNoRoute(t *testing.T) {
	router := newRouter()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ROUTE_NOT_FOUND", decodeError(t, w).Code)
}

func TestRateLimitPerSession(t *testing.T) {
	router := newRouter()
	router.GET("/p", SessionAuth(), RateLimit(&RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	assert.Equal(t, http.StatusOK, send("b"))
}

func TestRateLimitDisabled(t *testing.T) {
	router := newRouter()
	router.GET("/p", RateLimit(&RateLimitConfig{}), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}
