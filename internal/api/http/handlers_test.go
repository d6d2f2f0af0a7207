package http

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kastrel/nest/internal/auth"
	"github.com/kastrel/nest/internal/demo"
	"github.com/kastrel/nest/internal/hub"
	"github.com/kastrel/nest/internal/infrastructure/logging"
	"github.com/kastrel/nest/internal/infrastructure/monitoring"
	"github.com/kastrel/nest/internal/relay"
	"github.com/kastrel/nest/internal/service"
	"github.com/kastrel/nest/internal/trace"
)

type testEnv struct {
	router   *gin.Engine
	nest     *service.Nest
	sessions *auth.Sessions
	demoDir  string
}

func newTestEnv(t *testing.T, upstreamURL, password string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewNop()
	metrics := monitoring.NewMetrics()
	nest := service.New(trace.NewStore(), hub.New(logger), logger, metrics)
	sessions := auth.NewSessions()

	demoDir := t.TempDir()
	loader, err := demo.NewLoader(demoDir)
	require.NoError(t, err)

	relayClient := relay.NewClient(relay.Config{
		BaseURL: upstreamURL,
		Timeout: 5 * time.Second,
	}, logger)

	h := NewHandlers(nest, relayClient, loader, sessions, password, logger, metrics)

	r := gin.New()
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/api/v1/health", h.AgentHealth)
	r.POST("/api/v1/agents/register", h.RegisterAgent)
	r.POST("/api/v1/traces", h.ReceiveTraces)
	r.GET("/dashboard/api/traces", h.ListTraces)
	r.GET("/dashboard/api/agents", h.ListAgents)
	r.GET("/dashboard/api/stats", h.GetStats)
	r.GET("/dashboard/api/demo/available-data", h.ListAvailableData)
	r.POST("/dashboard/api/demo/load-local-data", h.LoadLocalData)
	r.POST("/dashboard/api/subjects/:id/summarize", h.Summarize)
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)

	return &testEnv{router: r, nest: nest, sessions: sessions, demoDir: demoDir}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRegisterAgent(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")

	w := env.do(t, http.MethodPost, "/api/v1/agents/register",
		`{"agent_id":"perch-1","model_info":{"model_name":"gpt2"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "registered", decode(t, w)["status"])

	w = env.do(t, http.MethodGet, "/dashboard/api/agents", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])
}

func TestRegisterAgentRequiresID(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	w := env.do(t, http.MethodPost, "/api/v1/agents/register", `{"model_info":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceiveAndListTraces(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")

	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodPost, "/api/v1/traces",
			`{"agent_id":"perch-1","traces":{"layer.0":0.5},"metadata":{"timestamp":100}}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := env.do(t, http.MethodPost, "/api/v1/traces",
		`{"agent_id":"perch-2","traces":{"layer.1":0.7}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/dashboard/api/traces", "")
	body := decode(t, w)
	assert.Equal(t, float64(4), body["count"])

	w = env.do(t, http.MethodGet, "/dashboard/api/traces?limit=2", "")
	body = decode(t, w)
	assert.Equal(t, float64(2), body["count"])

	w = env.do(t, http.MethodGet, "/dashboard/api/traces?agent_id=perch-2", "")
	body = decode(t, w)
	assert.Equal(t, float64(1), body["count"])

	w = env.do(t, http.MethodGet, "/dashboard/api/traces?limit=nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	env.do(t, http.MethodPost, "/api/v1/traces",
		`{"agent_id":"perch-1","traces":{"layer.0":0.5,"layer.1":0.6}}`)

	w := env.do(t, http.MethodGet, "/dashboard/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["total_traces"])
	assert.Equal(t, float64(1), body["unique_agents"])
}

func TestDemoDataRoundTrip(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")

	fixture := `[{"agent_id":"demo-1","traces":{"layer.0":0.1}},{"agent_id":"demo-2","traces":{"layer.1":0.2}}]`
	require.NoError(t, os.WriteFile(filepath.Join(env.demoDir, "session.json"), []byte(fixture), 0o644))

	w := env.do(t, http.MethodGet, "/dashboard/api/demo/available-data", "")
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])

	w = env.do(t, http.MethodPost, "/dashboard/api/demo/load-local-data?filename=session.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["entries"])

	w = env.do(t, http.MethodGet, "/dashboard/api/traces", "")
	assert.Equal(t, float64(2), decode(t, w)["count"])
}

func TestDemoDataMissingFile(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	w := env.do(t, http.MethodPost, "/dashboard/api/demo/load-local-data?filename=nope.json", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "hunter2")

	w := env.do(t, http.MethodPost, "/login", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, env.sessions.Count())

	w = env.do(t, http.MethodPost, "/login", `{"password":"hunter2"}`)
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := decode(t, w)["token"].(string)
	assert.NotEmpty(t, token)
	assert.True(t, env.sessions.Verify(token))
}

func TestHealthReportsUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	env := newTestEnv(t, upstream.URL, "")
	w := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	svc := body["summary_service"].(map[string]interface{})
	assert.Equal(t, true, svc["healthy"])
}
