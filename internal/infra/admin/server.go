package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/engine"
	"ndax_bridge/internal/infra"

	"github.com/gin-gonic/gin"
)

// SessionStatus reports exchange session state.
type SessionStatus interface {
	IsAuthenticated() bool
	Subscriptions() []domain.Subscription
}

// QuoteSource serves the latest level1 quotes.
type QuoteSource interface {
	All() []domain.Level1Quote
	Get(instrumentID int64) (domain.Level1Quote, bool)
}

// Sources is everything the admin endpoints read. Nil fields are skipped.
type Sources struct {
	Session     SessionStatus
	Quotes      QuoteSource
	Engine      func() engine.State
	QueueDepths func() map[string]int
	Subscribers func() int
}

// Server exposes health, metrics, quotes and pprof over HTTP.
type Server struct {
	addr   string
	router *gin.Engine
	src    Sources
	logger *slog.Logger
}

// NewServer builds the router.
func NewServer(addr string, src Sources) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		addr:   addr,
		router: gin.New(),
		src:    src,
		logger: slog.Default().With("module", "admin"),
	}
	s.router.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	sys := s.router.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", s.ready)
		sys.GET("/metrics", s.metrics)
		sys.GET("/quotes", s.quotes)
		sys.GET("/quotes/:id", s.quote)
		sys.GET("/engine", s.engineState)
	}
	pp := s.router.Group("/debug/pprof")
	{
		pp.GET("/", gin.WrapF(pprof.Index))
		pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pp.GET("/profile", gin.WrapF(pprof.Profile))
		pp.GET("/symbol", gin.WrapF(pprof.Symbol))
		pp.GET("/trace", gin.WrapF(pprof.Trace))
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server starting", slog.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) ready(c *gin.Context) {
	if s.src.Session == nil || !s.src.Session.IsAuthenticated() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "NOT_AUTHENTICATED"})
		return
	}
	subs := s.src.Session.Subscriptions()
	names := make([]string, 0, len(subs))
	for _, sub := range subs {
		names = append(names, sub.String())
	}
	c.JSON(http.StatusOK, gin.H{"status": "READY", "subscriptions": names})
}

func (s *Server) metrics(c *gin.Context) {
	body := gin.H{"metrics": infra.GlobalMetrics.Snapshot()}
	if s.src.QueueDepths != nil {
		body["queues"] = s.src.QueueDepths()
	}
	if s.src.Subscribers != nil {
		body["subscribers"] = s.src.Subscribers()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) quotes(c *gin.Context) {
	if s.src.Quotes == nil {
		c.JSON(http.StatusOK, []domain.BroadcastQuote{})
		return
	}
	all := s.src.Quotes.All()
	out := make([]domain.BroadcastQuote, 0, len(all))
	for _, q := range all {
		out = append(out, q.ToBroadcast())
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) quote(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instrument id must be an integer"})
		return
	}
	if s.src.Quotes == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no quote"})
		return
	}
	q, ok := s.src.Quotes.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no quote"})
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) engineState(c *gin.Context) {
	if s.src.Engine == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "engine not running"})
		return
	}
	c.JSON(http.StatusOK, s.src.Engine())
}
