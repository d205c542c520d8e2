package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/api/middleware"
	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/pkg/clock"
	"github.com/qs3c/rizz_server/internal/pkg/kv"
	"github.com/qs3c/rizz_server/internal/pkg/logging"
	"github.com/qs3c/rizz_server/internal/pkg/response"
	"github.com/qs3c/rizz_server/internal/pkg/ws"
	"github.com/qs3c/rizz_server/internal/repository"
	"github.com/qs3c/rizz_server/internal/service"
	"github.com/qs3c/rizz_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testJWTSecret     = "test-secret-key"
	testWebhookSecret = "hook-secret"
)

// stubGenerator 返回预设结果
type stubGenerator struct {
	mu     sync.Mutex
	result *model.GenerationResult
	calls  int
}

func (g *stubGenerator) GenerateReply(ctx context.Context, text string, image *model.Image, style string) (*model.GenerationResult, error) {
	return g.next(), nil
}

func (g *stubGenerator) GenerateBio(ctx context.Context, text, style string) (*model.GenerationResult, error) {
	return g.next(), nil
}

func (g *stubGenerator) next() *model.GenerationResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	r := *g.result
	return &r
}

func (g *stubGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *stubGenerator) set(result *model.GenerationResult) {
	g.mu.Lock()
	g.result = result
	g.mu.Unlock()
}

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	mr       *miniredis.Miniredis
	clk      *clock.Fake
	cfg      *config.Config
	credits  *service.CreditStore
	sessions *service.SessionManager
	hub      *ws.Hub
	gen      *stubGenerator
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	rdb, mr := testutil.SetupTestRedis(t)
	clk := clock.NewFake(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))
	logger := logging.Discard()

	cfg := config.Defaults()
	cfg.JWT = config.JWTConfig{Secret: testJWTSecret, ExpireHours: 24}
	cfg.Subscription.WebhookSecret = testWebhookSecret

	profiles := repository.NewProfileRepository(db)
	guests := kv.NewStore(rdb, cfg.Guest.KeyPrefix, time.Hour)
	credits := service.NewCreditStore(profiles, guests, clk, cfg, logger)

	hub := ws.NewHub(logger)
	bridge := ws.NewAdBridge(hub, time.Second)
	sessions := service.NewSessionManager(credits, clk, cfg, func(id string) service.AdSDK {
		return bridge.ForSession(id)
	}, hub, nil, logger)

	gen := &stubGenerator{result: &model.GenerationResult{
		Kind:     model.ResultSuccess,
		Reply:    &model.ReplySet{Options: [3]string{"a", "b", "c"}, Score: 70, StatusLabel: "Warm"},
		Analysis: "Looks good.",
	}}
	generation := service.NewGenerationService(credits, gen, clk, cfg, logger)
	savedItems := service.NewSavedItemService(repository.NewSavedItemRepository(db), guests, clk)
	auth := service.NewAuthService(profiles, credits, cfg, logger)
	subscriptions := service.NewSubscriptionService(db, repository.NewSubscriptionRepository(db), profiles, clk, cfg, logger)

	authHandler := NewAuthHandler(auth)
	sessionHandler := NewSessionHandler(sessions, credits)
	generationHandler := NewGenerationHandler(generation)
	savedItemHandler := NewSavedItemHandler(savedItems)
	adsHandler := NewAdsHandler()
	subscriptionHandler := NewSubscriptionHandler(subscriptions, sessions, credits, hub, logger)
	websocketHandler := NewWebSocketHandler(hub, bridge, sessions, logger)

	router := gin.New()
	router.GET("/health", NewHealthHandler(db, rdb, sessions, hub).Check)
	router.GET("/ws", websocketHandler.Handle)
	router.GET("/pricing", NewPricingHandler(cfg).Get)
	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)
	router.POST("/webhooks/subscription", subscriptionHandler.Webhook)
	router.POST("/sessions", middleware.OptionalAuth(testJWTSecret), sessionHandler.Start)

	session := router.Group("")
	session.Use(middleware.OptionalAuth(testJWTSecret), middleware.Session(sessions))
	session.DELETE("/sessions/current", sessionHandler.End)
	session.GET("/profile", sessionHandler.Profile)
	session.POST("/generate", generationHandler.Generate)
	session.GET("/saved-items", savedItemHandler.List)
	session.POST("/saved-items", savedItemHandler.Add)
	session.DELETE("/saved-items/:id", savedItemHandler.Delete)
	session.POST("/ads/banner", adsHandler.Banner)
	session.GET("/subscription", middleware.Auth(testJWTSecret), subscriptionHandler.Current)

	return &testEnv{
		router:   router,
		db:       db,
		mr:       mr,
		clk:      clk,
		cfg:      cfg,
		credits:  credits,
		sessions: sessions,
		hub:      hub,
		gen:      gen,
	}
}

func performRequest(r http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// dataMap 将响应中的 data 转为 map
func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

// startGuest 以访客身份开启会话，返回会话 ID
func (e *testEnv) startGuest(t *testing.T, deviceID, platform string) string {
	t.Helper()
	w := performRequest(e.router, "POST", "/sessions", map[string]string{
		"platform":  platform,
		"device_id": deviceID,
	})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	return dataMap(t, resp)["session_id"].(string)
}

// startUser 以登录用户身份开启会话
func (e *testEnv) startUser(t *testing.T, token, platform string) string {
	t.Helper()
	w := performRequest(e.router, "POST", "/sessions", map[string]string{"platform": platform},
		"Authorization", "Bearer "+token)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	return dataMap(t, resp)["session_id"].(string)
}
