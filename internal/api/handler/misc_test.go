package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/rizz_server/internal/api/middleware"
	"github.com/qs3c/rizz_server/internal/pkg/response"
	"github.com/qs3c/rizz_server/internal/pkg/ws"
)

func TestPricingHandler_Get(t *testing.T) {
	env := setupEnv(t)

	w := performRequest(env.router, "GET", "/pricing", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := dataMap(t, resp)
	assert.Equal(t, float64(5), data["daily_allowance"])
	costs := data["costs"].(map[string]interface{})
	assert.Equal(t, float64(1), costs["reply"])
	assert.Equal(t, float64(2), costs["image_reply"])
	ads := data["ads"].(map[string]interface{})
	assert.Equal(t, float64(120), ads["grace_seconds"])
	assert.Equal(t, float64(180), ads["cooldown_seconds"])

	plans := data["plans"].([]interface{})
	require.Len(t, plans, 3)
	assert.Equal(t, "monthly", plans[0].(map[string]interface{})["plan"])
}

func TestHealthHandler_Check(t *testing.T) {
	env := setupEnv(t)
	env.startGuest(t, "device-1", "web")

	w := performRequest(env.router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["sessions"])

	env.mr.Close()
	w = performRequest(env.router, "GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unavailable", body["checks"].(map[string]interface{})["redis"])
}

func TestAdsHandler_WebIsNoop(t *testing.T) {
	env := setupEnv(t)
	sessionID := env.startGuest(t, "device-1", "web")

	w := performRequest(env.router, "POST", "/ads/banner", map[string]bool{"visible": true},
		middleware.SessionIDHeader, sessionID)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, false, data["visible"])
	assert.Equal(t, false, data["native"])
}

func TestAdsHandler_NativeWithoutConnection(t *testing.T) {
	env := setupEnv(t)
	sessionID := env.startGuest(t, "device-1", "ios")

	w := performRequest(env.router, "POST", "/ads/banner", map[string]bool{"visible": true},
		middleware.SessionIDHeader, sessionID)
	assert.Equal(t, response.CodeServerError, parseResponse(t, w).Code)
}

func dialSession(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketHandler_RejectsUnknownSession(t *testing.T) {
	env := setupEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?session_id=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketHandler_BannerRoundTrip(t *testing.T) {
	env := setupEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	sessionID := env.startGuest(t, "device-1", "ios")
	conn := dialSession(t, server, sessionID)
	require.Eventually(t, func() bool { return env.hub.IsOnline(sessionID) }, time.Second, 10*time.Millisecond)

	done := make(chan response.Response, 1)
	go func() {
		w := performRequest(env.router, "POST", "/ads/banner", map[string]bool{"visible": true},
			middleware.SessionIDHeader, sessionID)
		var resp response.Response
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		done <- resp
	}()

	// App 外壳收到指令后回执
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string       `json:"type"`
		Data ws.AdCommand `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.TypeAdCommand, msg.Type)
	assert.Equal(t, ws.ActionShowBanner, msg.Data.Action)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": ws.TypeAdAck,
		"data": ws.AdAck{RequestID: msg.Data.RequestID, Completed: true},
	}))

	select {
	case resp := <-done:
		assert.Equal(t, response.CodeSuccess, resp.Code)
		assert.Equal(t, true, resp.Data.(map[string]interface{})["visible"])
	case <-time.After(2 * time.Second):
		t.Fatal("banner request did not complete")
	}
}

func TestWebSocketHandler_SupersededNotice(t *testing.T) {
	env := setupEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	first := env.startGuest(t, "device-1", "android")
	conn := dialSession(t, server, first)
	require.Eventually(t, func() bool { return env.hub.IsOnline(first) }, time.Second, 10*time.Millisecond)

	env.startGuest(t, "device-1", "android")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ws.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.TypeSessionSuperseded, msg.Type)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.False(t, env.hub.IsOnline(first))
}
