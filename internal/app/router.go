package app

import (
	"caseprep_backend/docs"
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/middleware"
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/util"
	"caseprep_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/health", c.health.HealthCheck)
	router.NoRoute(util.NotFound)

	// 1. public routes
	a.registerPublicRoutes(router, c)

	// 2. authenticated routes
	authGroup := router.Group("/api")
	authGroup.Use(
		middleware.AuthMiddleware(&cfg.JWT),
		middleware.UserSyncMiddleware(a.services.auth),
		middleware.ActivityMiddleware(repos.user),
	)
	{
		a.registerCandidateRoutes(authGroup, c)
	}

	// 3. admin routes
	a.registerAdminRoutes(router, c, repos, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)

		public.GET("/cases", c.cases.ListCases)
		public.GET("/cases/:id", c.cases.GetCase)
		public.GET("/credits/packages", c.credit.ListPackages)

		// signed by the payment provider, not by our JWT
		public.POST("/webhooks/stripe", c.checkout.Webhook)
	}
}

func (a *App) registerCandidateRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/me", c.auth.Me)

	progress := group.Group("/progress")
	{
		progress.POST("/bootstrap", c.interview.Bootstrap)
		progress.GET("", c.interview.ListProgress)
		progress.GET("/:caseId", c.interview.GetProgress)
	}

	group.POST("/cases/:id/start", c.interview.StartCase)
	group.GET("/cases/:id/responses", c.interview.ListResponses)
	group.POST("/case-feedback", a.limiters.feedback.Middleware(), c.interview.SubmitFeedback)

	credits := group.Group("/credits")
	{
		credits.GET("/balance", c.credit.GetBalance)
		credits.GET("/transactions", c.credit.ListTransactions)
	}

	checkout := group.Group("/checkout")
	{
		checkout.POST("/sessions", c.checkout.CreateCheckout)
		checkout.GET("/sessions/:id", c.checkout.GetCheckoutStatus)
	}

	group.POST("/uploads/whiteboard", c.upload.UploadWhiteboard)
	group.POST("/transcribe", a.limiters.feedback.Middleware(), c.upload.Transcribe)
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(
		middleware.AuthMiddleware(&cfg.JWT),
		middleware.UserSyncMiddleware(a.services.auth),
		middleware.RoleMiddleware(model.Admin),
		middleware.ActivityMiddleware(repos.user),
	)
	{
		admin.GET("/credits/:userId/audit", c.credit.Audit)
		admin.POST("/credits/grant", c.credit.Grant)
		admin.POST("/cases/seed", c.cases.SeedCases)
	}
}
