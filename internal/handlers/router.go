package handlers

import (
	"github.com/aluoptimize/aluoptimize/internal/middleware"
	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/gin-gonic/gin"
)

// Router bundles everything the HTTP routes need
type Router struct {
	Tokens         middleware.TokenParser
	Active         middleware.ActiveChecker
	Limiter        *middleware.RateLimiter
	AllowedOrigins []string
	Health         Pinger

	Auth          *AuthHandler
	Production    *ProductionHandler
	Waste         *WasteHandler
	Manage        *ManageHandler
	Notifications *NotificationHandler
}

// Register mounts every route on engine
func (r *Router) Register(engine *gin.Engine) {
	engine.Use(middleware.CORS(r.AllowedOrigins))
	if r.Limiter != nil {
		engine.Use(middleware.RateLimit(r.Limiter))
	}

	engine.GET("/", Welcome)
	engine.GET("/health", Health(r.Health))

	public := engine.Group("/api/v1/auth")
	{
		public.POST("/register", r.Auth.Register)
		public.POST("/login", r.Auth.Login)
		public.POST("/refresh", r.Auth.Refresh)
	}

	api := engine.Group("/api/v1")
	api.Use(middleware.Auth(r.Tokens, r.Active))

	staff := middleware.RequireRole(models.RoleStaff, models.RoleAdmin)
	{
		api.GET("/me", r.Auth.Me)
		api.POST("/me/password", r.Auth.ChangePassword)

		api.POST("/inputs", r.Production.Submit)
		api.GET("/inputs", r.Production.ListInputs)
		api.GET("/inputs/pending", staff, r.Production.ListPending)
		api.GET("/inputs/:id", r.Production.GetInput)
		api.POST("/inputs/:id/predict", staff, r.Production.Predict)
		api.POST("/inputs/:id/send", staff, r.Production.Send)
		api.POST("/inputs/:id/reject", staff, r.Production.Reject)

		api.GET("/outputs", r.Production.ListOutputs)
		api.PATCH("/outputs/:id", staff, r.Production.RecordActual)
		api.GET("/prediction-logs", staff, r.Production.ListLogs)
		api.POST("/scoring/preview", r.Production.Preview)

		api.GET("/waste", r.Waste.List)
		api.GET("/waste/recommendations", r.Waste.ListRecommendations)
		api.POST("/waste", staff, r.Waste.Create)
		api.PUT("/waste/:id", staff, r.Waste.Update)
		api.DELETE("/waste/:id", staff, r.Waste.Delete)

		api.GET("/notifications", r.Notifications.List)
		api.GET("/notifications/wait", r.Notifications.Wait)
		api.POST("/notifications/:id/read", r.Notifications.MarkRead)
	}

	manage := api.Group("/manage", staff)
	{
		manage.GET("/users", r.Auth.ListUsers)
		manage.POST("/users", r.Auth.CreateUser)
		manage.POST("/users/approve", r.Auth.BulkApprove)
		manage.POST("/users/:id/approve", r.Auth.Approve)
		manage.POST("/users/:id/reject", r.Auth.Reject)
		manage.POST("/users/:id/password", r.Auth.SetPassword)

		manage.GET("/dashboard", r.Manage.Dashboard)
		manage.POST("/reports", r.Manage.GenerateReport)
		manage.GET("/reports/archive", r.Manage.DownloadReport)
	}
}
