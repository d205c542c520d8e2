package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/api/handler"
	"github.com/qs3c/rizz_server/internal/api/middleware"
)

type Router struct {
	authHandler         *handler.AuthHandler
	sessionHandler      *handler.SessionHandler
	generationHandler   *handler.GenerationHandler
	savedItemHandler    *handler.SavedItemHandler
	adsHandler          *handler.AdsHandler
	subscriptionHandler *handler.SubscriptionHandler
	pricingHandler      *handler.PricingHandler
	websocketHandler    *handler.WebSocketHandler
	healthHandler       *handler.HealthHandler
	sessions            middleware.SessionLookup
	cfg                 *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	sessionHandler *handler.SessionHandler,
	generationHandler *handler.GenerationHandler,
	savedItemHandler *handler.SavedItemHandler,
	adsHandler *handler.AdsHandler,
	subscriptionHandler *handler.SubscriptionHandler,
	pricingHandler *handler.PricingHandler,
	websocketHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
	sessions middleware.SessionLookup,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:         authHandler,
		sessionHandler:      sessionHandler,
		generationHandler:   generationHandler,
		savedItemHandler:    savedItemHandler,
		adsHandler:          adsHandler,
		subscriptionHandler: subscriptionHandler,
		pricingHandler:      pricingHandler,
		websocketHandler:    websocketHandler,
		healthHandler:       healthHandler,
		sessions:            sessions,
		cfg:                 cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", r.healthHandler.Check)

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
		}

		// 公开接口 - 价格
		api.GET("/pricing", r.pricingHandler.Get)

		// 应用商店回调（共享密钥）
		api.POST("/webhooks/subscription", r.subscriptionHandler.Webhook)

		// 开启会话：登录用户或访客
		api.POST("/sessions", middleware.OptionalAuth(r.cfg.JWT.Secret), r.sessionHandler.Start)

		// 需要有效会话的接口
		session := api.Group("")
		session.Use(middleware.OptionalAuth(r.cfg.JWT.Secret))
		session.Use(middleware.Session(r.sessions))
		{
			session.DELETE("/sessions/current", r.sessionHandler.End)
			session.GET("/profile", r.sessionHandler.Profile)
			session.POST("/generate", r.generationHandler.Generate)

			// 收藏
			saved := session.Group("/saved-items")
			{
				saved.GET("", r.savedItemHandler.List)
				saved.POST("", r.savedItemHandler.Add)
				saved.DELETE("/:id", r.savedItemHandler.Delete)
			}

			session.POST("/ads/banner", r.adsHandler.Banner)
			session.GET("/subscription", middleware.Auth(r.cfg.JWT.Secret), r.subscriptionHandler.Current)
		}
	}

	return engine
}
