package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kastrel/nest/internal/auth"
)

func newAuthRouter(sessions *auth.Sessions, password string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionAuth(sessions, password))
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	r.GET("/dashboard/api/stats", ok)
	r.POST("/api/v1/traces", ok)
	r.GET("/health", ok)
	return r
}

func get(r *gin.Engine, path string, decorate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if decorate != nil {
		decorate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNoPasswordDisablesAuth(t *testing.T) {
	r := newAuthRouter(auth.NewSessions(), "")
	assert.Equal(t, http.StatusOK, get(r, "/dashboard/api/stats", nil).Code)
}

func TestDashboardRequiresSession(t *testing.T) {
	sessions := auth.NewSessions()
	r := newAuthRouter(sessions, "hunter2")

	assert.Equal(t, http.StatusUnauthorized, get(r, "/dashboard/api/stats", nil).Code)

	token := sessions.Create()
	w := get(r, "/dashboard/api/stats", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Bearer tokens work too, for non-browser clients.
	w = get(r, "/dashboard/api/stats", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPerchEndpointsStayOpen(t *testing.T) {
	r := newAuthRouter(auth.NewSessions(), "hunter2")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/traces", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusOK, get(r, "/health", nil).Code)
}
