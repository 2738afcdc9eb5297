package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"weex-trading-bot/internal/fusion"
	"weex-trading-bot/internal/journal"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/weex"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowOrigins   []string `json:"allow_origins"`
}

// BotAPI is the surface the strategy loops expose to the dashboard.
type BotAPI interface {
	Status() map[string]interface{}
	LastSignals() []fusion.TradeSignal
	Pause()
	Resume()
	Running() bool
}

// Server is the dashboard HTTP API. It reads engine state concurrently
// with the strategy loops; all engine accessors are mutex-guarded.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig

	exchange  weex.Exchange
	positions *position.Engine
	riskMgr   *risk.Manager
	journal   *journal.Journal
	bot       BotAPI

	auth       AuthConfig
	jwtManager *JWTManager
	log        zerolog.Logger
	startedAt  time.Time
}

// NewServer builds the dashboard server and registers its routes.
func NewServer(
	config ServerConfig,
	auth AuthConfig,
	exchange weex.Exchange,
	positions *position.Engine,
	riskMgr *risk.Manager,
	jrnl *journal.Journal,
	bot BotAPI,
	log zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		config:    config,
		exchange:  exchange,
		positions: positions,
		riskMgr:   riskMgr,
		journal:   jrnl,
		bot:       bot,
		auth:      auth,
		log:       log.With().Str("component", "api").Logger(),
		startedAt: time.Now(),
	}
	if auth.Enabled {
		s.jwtManager = NewJWTManager(auth.JWTSecret, auth.TokenDuration)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.auth.Enabled {
		s.router.POST("/api/auth/login", s.handleLogin)
	}
	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.auth.Enabled})
	})

	api := s.router.Group("/api")
	if s.auth.Enabled {
		api.Use(authMiddleware(s.jwtManager))
	}
	{
		api.GET("/status", s.handleStatus)
		api.GET("/balance", s.handleBalance)

		api.GET("/positions", s.handleGetPositions)
		api.POST("/positions/close-all", s.handleCloseAll)
		api.POST("/positions/:symbol/close", s.handleClosePosition)

		api.GET("/risk", s.handleRisk)
		api.GET("/journal", s.handleJournal)
		api.GET("/signals", s.handleSignals)

		api.POST("/bot/pause", s.handlePause)
		api.POST("/bot/resume", s.handleResume)
	}
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if req.Username != s.auth.AdminUser || !VerifyPassword(req.Password, s.auth.AdminPasswordHash) {
		s.log.Warn().Str("username", req.Username).Msg("failed login attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := s.jwtManager.Generate(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   s.jwtManager.TokenDuration(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	wins, losses := s.positions.Stats()
	status := gin.H{
		"open_positions": s.positions.Count(),
		"wins":           wins,
		"losses":         losses,
		"risk":           s.riskMgr.GetStatus(),
		"uptime":         time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.bot != nil {
		status["bot"] = s.bot.Status()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleBalance(c *gin.Context) {
	balance, err := s.exchange.GetAccountBalance()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("balance fetch failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (s *Server) handleGetPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.positions.Positions()})
}

func (s *Server) handleClosePosition(c *gin.Context) {
	symbol := c.Param("symbol")
	if !s.positions.HasPosition(symbol) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open position on " + symbol})
		return
	}

	var pnl float64
	for _, pos := range s.positions.Positions() {
		if pos.Symbol == symbol {
			pnl = pos.PnLUSD
		}
	}

	if err := s.positions.Close(symbol, position.ReasonManualClose, pnl); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": symbol})
}

func (s *Server) handleCloseAll(c *gin.Context) {
	count := s.positions.Count()
	s.positions.CloseAll()
	c.JSON(http.StatusOK, gin.H{"requested": count, "remaining": s.positions.Count()})
}

func (s *Server) handleRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.riskMgr.GetStatus())
}

func (s *Server) handleJournal(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1-500"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"entries": s.journal.Recent(limit)})
}

func (s *Server) handleSignals(c *gin.Context) {
	if s.bot == nil {
		c.JSON(http.StatusOK, gin.H{"signals": []fusion.TradeSignal{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": s.bot.LastSignals()})
}

func (s *Server) handlePause(c *gin.Context) {
	if s.bot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no bot attached"})
		return
	}
	s.bot.Pause()
	c.JSON(http.StatusOK, gin.H{"running": s.bot.Running()})
}

func (s *Server) handleResume(c *gin.Context) {
	if s.bot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no bot attached"})
		return
	}
	s.bot.Resume()
	c.JSON(http.StatusOK, gin.H{"running": s.bot.Running()})
}
