package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/globeco/order-submission-service/internal/config"
	"github.com/globeco/order-submission-service/internal/handlers"
	"github.com/globeco/order-submission-service/internal/logging"
	"github.com/globeco/order-submission-service/internal/middleware"
)

// Server is the minimal lifecycle every entry point drives: build the
// router, then run it with graceful shutdown.
type Server interface {
	Setup()
	Start() error
	Router() *gin.Engine
}

// HTTPServer wires the gin engine, middleware chain and route table.
type HTTPServer struct {
	router   *gin.Engine
	config   *config.Config
	logger   *zap.Logger
	services *Services
}

// Services holds every handler the router dispatches to.
type Services struct {
	OrderHandler     *handlers.OrderHandler
	ReferenceHandler *handlers.ReferenceHandler
}

// New creates an HTTPServer. Setup must be called before Start.
func New(cfg *config.Config, svcs *Services, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{config: cfg, services: svcs, logger: logger}
}

// Setup builds the middleware chain and registers every route.
func (s *HTTPServer) Setup() {
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()
}

func (s *HTTPServer) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(logging.AccessLog(s.logger))
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.CorrelationIDHeader},
		ExposeHeaders:    []string{middleware.CorrelationIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}

func (s *HTTPServer) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	orders := s.router.Group("/orders")
	{
		orders.POST("", s.services.OrderHandler.CreateBatch)
		orders.POST("/batch/submit", s.services.OrderHandler.SubmitBatch)
	}

	statuses := s.router.Group("/statuses")
	{
		statuses.GET("", s.services.ReferenceHandler.ListStatuses)
		statuses.GET("/:id", s.services.ReferenceHandler.GetStatus)
		statuses.POST("", s.services.ReferenceHandler.CreateStatus)
		statuses.PUT("/:id", s.services.ReferenceHandler.UpdateStatus)
		statuses.DELETE("/:id", s.services.ReferenceHandler.DeleteStatus)
	}

	orderTypes := s.router.Group("/order-types")
	{
		orderTypes.GET("", s.services.ReferenceHandler.ListOrderTypes)
		orderTypes.GET("/:id", s.services.ReferenceHandler.GetOrderType)
		orderTypes.POST("", s.services.ReferenceHandler.CreateOrderType)
		orderTypes.PUT("/:id", s.services.ReferenceHandler.UpdateOrderType)
		orderTypes.DELETE("/:id", s.services.ReferenceHandler.DeleteOrderType)
	}

	blotters := s.router.Group("/blotters")
	{
		blotters.GET("", s.services.ReferenceHandler.ListBlotters)
		blotters.GET("/:id", s.services.ReferenceHandler.GetBlotter)
		blotters.POST("", s.services.ReferenceHandler.CreateBlotter)
		blotters.PUT("/:id", s.services.ReferenceHandler.UpdateBlotter)
		blotters.DELETE("/:id", s.services.ReferenceHandler.DeleteBlotter)
	}
}

func (s *HTTPServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// Start runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests within a 30s grace period.
func (s *HTTPServer) Start() error {
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", s.config.Port),
		Handler:        s.router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		s.logger.Info("starting server", zap.Int("port", s.config.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	s.logger.Info("server exited")
	return nil
}

// Router returns the gin router, for tests that drive it with
// httptest without starting a real listener.
func (s *HTTPServer) Router() *gin.Engine {
	return s.router
}
