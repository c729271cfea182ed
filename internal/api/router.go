package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orrn/fileprint/internal/api/handlers"
	"github.com/orrn/fileprint/internal/api/middleware"
	"github.com/orrn/fileprint/internal/logging"
)

type Deps struct {
	Planner   handlers.PrintPlanner
	Queue     handlers.QueueInspector
	Previewer handlers.Previewer
	History   handlers.JobHistory
	Auth      *middleware.AuthMiddleware
	Logger    *zap.Logger
}

// NewRouter wires the intake endpoints at the root and the administrative
// history endpoints under /api, behind auth.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	auth := deps.Auth
	if auth == nil {
		auth = middleware.NewAuthMiddleware("", "")
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(logging.GinMiddleware(logger.Named("http")))
	r.Use(logging.Recovery(logger))
	r.Use(middleware.CORS())

	printHandler := handlers.NewPrintHandler(deps.Planner, deps.Queue, deps.Previewer, logger)
	printHandler.RegisterRoutes(r)

	authGroup := r.Group("/auth")
	authGroup.POST("/login", auth.LoginHandler)
	authGroup.POST("/logout", auth.LogoutHandler)
	authGroup.GET("/status", auth.StatusHandler)

	if deps.History != nil {
		admin := r.Group("/api", auth.RequireAuth())
		handlers.NewJobHandler(deps.History, deps.Planner).RegisterRoutes(admin)
	}

	return r
}
