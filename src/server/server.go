package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tickstream/src/broker"
	"tickstream/src/config"
	"tickstream/src/engine"
	"tickstream/src/interfaces"
	"tickstream/src/logger"
	"tickstream/src/models"
	"tickstream/src/storage"
	"tickstream/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server is the HTTP/websocket surface: auth endpoints, watchlist CRUD,
// on-demand snapshots and the viewer stream.
type Server struct {
	Config    *config.Config
	Logger    *logger.Logger
	Broker    interfaces.IBrokerSession
	Store     interfaces.IWatchlistStore
	Feed      interfaces.ITickerFeed
	Scheduler *utils.MarketScheduler
	Hub       *Hub

	engine   *engine.Engine
	router   *gin.Engine
	srv      *http.Server
	upgrader websocket.Upgrader

	// baseCtx outlives individual requests. Websocket work spawned from a
	// handler must not inherit the request context: net/http cancels it as
	// soon as the handler returns, long before the hijacked connection dies.
	baseCtx context.Context
}

// -----------------------------------------------------------------------------

func NewServer(cfg *config.Config, brokerSession interfaces.IBrokerSession, store interfaces.IWatchlistStore, feed interfaces.ITickerFeed, scheduler *utils.MarketScheduler, log *logger.Logger) *Server {
	s := &Server{
		Config:    cfg,
		Logger:    log,
		Broker:    brokerSession,
		Store:     store,
		Feed:      feed,
		Scheduler: scheduler,
		Hub:       NewHub(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser origin checks are handled by the CORS layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.buildRouter()
	return s
}

// -----------------------------------------------------------------------------

// AttachEngine installs the coordination core. Must be called before Start.
func (s *Server) AttachEngine(e *engine.Engine) {
	s.engine = e
}

// -----------------------------------------------------------------------------

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if s.engine == nil {
		return fmt.Errorf("server has no engine attached")
	}
	s.baseCtx = ctx

	go s.Hub.Run(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.srv = &http.Server{Addr: addr, Handler: s.router}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.Logger.Error("HTTP shutdown error: %v", err)
		}
	}()

	s.Logger.Info("HTTP server listening on %s", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Router
// -----------------------------------------------------------------------------

func (s *Server) buildRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())

	r.GET("/", s.handleRoot)
	r.GET("/api/health", s.handleHealth)

	auth := r.Group("/api/auth")
	{
		auth.GET("/status", s.handleAuthStatus)
		auth.GET("/login-url", s.handleLoginURL)
		auth.GET("/callback", s.handleAuthCallback)
		auth.POST("/logout", s.handleLogout)
	}

	wl := r.Group("/api/watchlists")
	{
		wl.GET("", s.handleListWatchlists)
		wl.POST("", s.handleCreateWatchlist)
		wl.GET("/:id", s.handleGetWatchlist)
		wl.PUT("/:id", s.handleRenameWatchlist)
		wl.DELETE("/:id", s.handleDeleteWatchlist)
		wl.POST("/:id/symbols", s.handleAddSymbol)
		wl.DELETE("/:id/symbols", s.handleRemoveSymbol)
	}

	// A static /api/stocks/search sibling would collide with the
	// :exchange wildcard, so search lives at /api/search.
	r.GET("/api/search", s.handleSearch)
	r.GET("/api/stocks/:exchange/:symbol", s.handleStockSnapshot)

	r.GET("/ws", s.handleWebsocket)

	s.router = r
}

// -----------------------------------------------------------------------------

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := s.Config.FrontendURL
		if origin == "" {
			origin = "*"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Basic handlers
// -----------------------------------------------------------------------------

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":   s.Config.Name,
		"status": "running",
	})
}

// -----------------------------------------------------------------------------

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"authenticated": s.Broker.IsAuthenticated(),
		"feed_state":    s.Feed.State(),
		"viewers":       s.Hub.ViewerCount(),
		"market_open":   s.Scheduler.AnyMarketOpen(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// -----------------------------------------------------------------------------
// Auth handlers
// -----------------------------------------------------------------------------

func (s *Server) handleAuthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"authenticated": s.Broker.IsAuthenticated()})
}

// -----------------------------------------------------------------------------

func (s *Server) handleLoginURL(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"login_url": s.Broker.LoginURL()})
}

// -----------------------------------------------------------------------------

// handleAuthCallback is the broker's login redirect target: it carries the
// one-time request token we exchange for an access token.
func (s *Server) handleAuthCallback(c *gin.Context) {
	requestToken := c.Query("request_token")
	if requestToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing request_token"})
		return
	}

	if _, err := s.Broker.ExchangeToken(requestToken); err != nil {
		s.Logger.Error("Token exchange failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token exchange failed"})
		return
	}

	// New credentials mean the subscription set must be rebuilt.
	s.engine.NotifyWatchlistChanged()

	if s.Config.FrontendURL != "" {
		c.Redirect(http.StatusFound, s.Config.FrontendURL)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

// -----------------------------------------------------------------------------

func (s *Server) handleLogout(c *gin.Context) {
	s.engine.Logout()
	c.JSON(http.StatusOK, gin.H{"authenticated": false})
}

// -----------------------------------------------------------------------------
// Watchlist handlers
// -----------------------------------------------------------------------------

func (s *Server) handleListWatchlists(c *gin.Context) {
	lists, err := s.Store.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"watchlists": lists})
}

// -----------------------------------------------------------------------------

func (s *Server) handleGetWatchlist(c *gin.Context) {
	wl, err := s.Store.Get(c.Param("id"))
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, wl)
}

// -----------------------------------------------------------------------------

func (s *Server) handleCreateWatchlist(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	wl, err := s.Store.Create(req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, wl)
}

// -----------------------------------------------------------------------------

func (s *Server) handleRenameWatchlist(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if err := s.Store.Rename(c.Param("id"), req.Name); err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"renamed": true})
}

// -----------------------------------------------------------------------------

func (s *Server) handleDeleteWatchlist(c *gin.Context) {
	if err := s.Store.Delete(c.Param("id")); err != nil {
		s.writeStoreError(c, err)
		return
	}
	s.engine.NotifyWatchlistChanged()
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// -----------------------------------------------------------------------------

func (s *Server) handleAddSymbol(c *gin.Context) {
	var req struct {
		Symbol   string `json:"symbol" binding:"required"`
		Exchange string `json:"exchange" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and exchange are required"})
		return
	}

	wl, err := s.Store.AddEntry(c.Param("id"), req.Symbol, req.Exchange)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	s.engine.NotifyWatchlistChanged()
	c.JSON(http.StatusOK, wl)
}

// -----------------------------------------------------------------------------

func (s *Server) handleRemoveSymbol(c *gin.Context) {
	symbol := c.Query("symbol")
	exchange := c.DefaultQuery("exchange", "NSE")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	wl, err := s.Store.RemoveEntry(c.Param("id"), symbol, exchange)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	s.engine.NotifyWatchlistChanged()
	c.JSON(http.StatusOK, wl)
}

// -----------------------------------------------------------------------------

func (s *Server) writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrWatchlistNotFound), errors.Is(err, storage.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrDuplicateEntry):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrDefaultWatchlist):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// -----------------------------------------------------------------------------
// Stock handlers
// -----------------------------------------------------------------------------

func (s *Server) handleStockSnapshot(c *gin.Context) {
	if !s.Broker.IsAuthenticated() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	rec, err := s.engine.GetSnapshot(c.Request.Context(), c.Param("exchange"), c.Param("symbol"))
	if err != nil {
		if errors.Is(err, broker.ErrInstrumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if broker.IsAuthError(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// -----------------------------------------------------------------------------

func (s *Server) handleSearch(c *gin.Context) {
	if !s.Broker.IsAuthenticated() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	exchange := c.DefaultQuery("exchange", "NSE")

	results, err := s.Broker.SearchInstruments(exchange, query, 20)
	if err != nil {
		if broker.IsAuthError(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// -----------------------------------------------------------------------------
// Websocket handler
// -----------------------------------------------------------------------------

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Error("Websocket upgrade failed: %v", err)
		return
	}

	client := newClient(s.Hub, conn)
	s.Hub.register <- client

	go client.writePump()
	go client.readPump()

	// First frame: full snapshot, or an auth-required notice. Either way
	// the connection stays open and picks up future broadcasts.
	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	go s.sendInitialFrame(ctx, client)
}

// -----------------------------------------------------------------------------

// Handler returns the HTTP routing tree.
func (s *Server) Handler() http.Handler {
	return s.router
}

// -----------------------------------------------------------------------------

func (s *Server) sendInitialFrame(ctx context.Context, client *Client) {
	if !s.Broker.IsAuthenticated() {
		client.enqueue(&models.MStreamMessage{
			Type:      models.MsgTypeError,
			Code:      "auth_required",
			Message:   "broker session is not authenticated",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	snapshot, err := s.engine.InitialSnapshot(ctx)
	if err != nil {
		s.Logger.Error("Initial snapshot failed: %v", err)
		client.enqueue(&models.MStreamMessage{
			Type:      models.MsgTypeError,
			Code:      "snapshot_failed",
			Message:   "could not build initial snapshot",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	client.enqueue(snapshot)
}
