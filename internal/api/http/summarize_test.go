package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseUpstream(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/summarize", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// parseFrames splits an SSE response body back into its JSON payloads.
func parseFrames(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	var frames []map[string]interface{}
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]interface{}
		require.NoError(t, sonic.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	return frames
}

func TestSummarizeRelaysTokens(t *testing.T) {
	upstream := sseUpstream(t,
		`{"type":"token","order":0,"token":"The "}`,
		`{"type":"token","order":1,"token":"subject ","hallucination_prob":0.12}`,
		`{"type":"token","order":2,"token":"is fine."}`,
	)
	env := newTestEnv(t, upstream.URL, "")

	w := env.do(t, http.MethodPost, "/dashboard/api/subjects/sub-1/summarize",
		`{"subject_data":{"name":"Jo"},"documents":[],"messages":[]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	frames := parseFrames(t, w.Body.String())
	require.Len(t, frames, 4)
	assert.Equal(t, "token", frames[0]["type"])
	assert.Equal(t, "The ", frames[0]["token"])
	assert.Equal(t, 0.12, frames[1]["hallucination_prob"])
	assert.Equal(t, "done", frames[3]["type"])
}

func TestSummarizeForwardsUpstreamError(t *testing.T) {
	upstream := sseUpstream(t,
		`{"type":"token","order":0,"token":"partial"}`,
		`{"type":"error","message":"model exploded"}`,
	)
	env := newTestEnv(t, upstream.URL, "")

	w := env.do(t, http.MethodPost, "/dashboard/api/subjects/sub-1/summarize", `{}`)
	require.Equal(t, http.StatusOK, w.Code)

	frames := parseFrames(t, w.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "token", frames[0]["type"])
	assert.Equal(t, "error", frames[1]["type"])
	assert.Equal(t, "model exploded", frames[1]["message"])
}

func TestSummarizeUpstreamUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()
	env := newTestEnv(t, upstream.URL, "")

	w := env.do(t, http.MethodPost, "/dashboard/api/subjects/sub-1/summarize", `{}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode(t, w)["error"], "status 503")
}

func TestSummarizeRejectsBadBody(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	w := env.do(t, http.MethodPost, "/dashboard/api/subjects/sub-1/summarize", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
