package server

import (
	"context"
	"fmt"
	"net/http"

	"brokerage-sim-go/internal/broker"
	"brokerage-sim-go/internal/config"
	"brokerage-sim-go/internal/quote"
	"brokerage-sim-go/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server exposes the brokerage operations as a JSON API.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	accounts  *broker.AccountService
	orders    *broker.OrderProcessor
	projector *broker.Projector
	ledger    *broker.Ledger
	quotes    quote.ClientInterface
	sessions  session.StoreInterface
	server    *http.Server
}

// NewServer creates a new Server with all routes registered.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	accounts *broker.AccountService,
	orders *broker.OrderProcessor,
	projector *broker.Projector,
	ledger *broker.Ledger,
	quotes quote.ClientInterface,
	sessions session.StoreInterface,
) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger.Named("server"),
		accounts:  accounts,
		orders:    orders,
		projector: projector,
		ledger:    ledger,
		quotes:    quotes,
		sessions:  sessions,
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: s.router(),
	}

	return s
}

func (s *Server) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.healthHandler)

	// Public routes
	router.POST("/register", s.registerHandler)
	router.POST("/login", s.loginHandler)
	router.POST("/refresh", s.refreshHandler)

	// Protected routes
	api := router.Group("/api")
	api.Use(s.jwtAuth())
	{
		api.POST("/logout", s.logoutHandler)
		api.GET("/quote/:symbol", s.quoteHandler)
		api.POST("/buy", s.buyHandler)
		api.POST("/sell", s.sellHandler)
		api.GET("/portfolio", s.portfolioHandler)
		api.GET("/history", s.historyHandler)
		api.POST("/password", s.changePasswordHandler)
	}

	return router
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
