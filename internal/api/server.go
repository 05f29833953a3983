// Package api serves the monitor's read-only query surface over HTTP.
package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"

	"positionmonitor/internal/model"
	"positionmonitor/internal/monitor"
	"positionmonitor/internal/portfolio"
	"positionmonitor/internal/risk"
	"positionmonitor/pkg/exception"
)

const dateLayout = "2006-01-02"

// Monitor is the query surface the server exposes.
type Monitor interface {
	State() monitor.State
	AccountNames(ctx context.Context) ([]string, error)
	AccountPortfolio(account string) (*portfolio.Cache, bool)
	CurrentPrice(account, symbol string) (float64, bool)
	AccountTrades(ctx context.Context, account string, date time.Time) ([]model.Trade, error)
	TradingScheduleRows() []model.TradingSchedule
	NextTimeSlice(account string) (time.Time, bool)
	SnapshotsForAccount(account string) []model.SnapshotID
	PortfolioSnapshot(ctx context.Context, id int64) (*model.PortfolioSnapshot, error)
}

type Config struct {
	Monitor Monitor
	Risk    *risk.Engine
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

// Server is the HTTP facade.
type Server struct {
	monitor  Monitor
	risk     *risk.Engine
	gatherer prometheus.Gatherer
	now      func() time.Time
	router   *gin.Engine
	http     *http.Server
}

func NewServer(cfg Config) *Server {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	engine := cfg.Risk
	if engine == nil {
		engine = risk.NewEngine(now)
	}

	s := &Server{
		monitor:  cfg.Monitor,
		risk:     engine,
		gatherer: cfg.Gatherer,
		now:      now,
		router:   gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves on addr in the background.
func (s *Server) Start(addr string) {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logs.Infof("api listening on %s", addr)
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logs.Errorf("api server stopped, err: %+v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	metrics := promhttp.Handler()
	if s.gatherer != nil {
		metrics = promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	}
	s.router.GET("/metrics", gin.WrapH(metrics))
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	v1.GET("/accounts", s.listAccounts)
	v1.GET("/schedule", s.listSchedule)
	v1.GET("/snapshots/:id", s.getSnapshot)

	account := v1.Group("/accounts/:account", s.requirePortfolio)
	account.GET("", s.getAccount)
	account.GET("/positions", s.getPositions)
	account.GET("/indices", s.getIndices)
	account.GET("/prices/:symbol", s.getPrice)
	account.GET("/trades", s.getTrades)
	account.GET("/snapshots", s.getAccountSnapshots)
	account.GET("/next-time-slice", s.getNextTimeSlice)
	account.GET("/risk", s.getRisk)
}

func (s *Server) healthCheck(c *gin.Context) {
	state := s.monitor.State()
	status := http.StatusOK
	if state != monitor.StateMonitoring {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status": state.String(),
		"time":   s.now().UTC(),
	})
}

func (s *Server) listAccounts(c *gin.Context) {
	names, err := s.monitor.AccountNames(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": names})
}

func (s *Server) listSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schedule": s.monitor.TradingScheduleRows()})
}

func (s *Server) getSnapshot(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot id"})
		return
	}
	snap, err := s.monitor.PortfolioSnapshot(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

const portfolioKey = "portfolio"

func (s *Server) requirePortfolio(c *gin.Context) {
	cache, ok := s.monitor.AccountPortfolio(c.Param("account"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "account not monitored"})
		return
	}
	c.Set(portfolioKey, cache)
	c.Next()
}

func portfolioOf(c *gin.Context) *portfolio.Cache {
	return c.MustGet(portfolioKey).(*portfolio.Cache)
}

type accountSummary struct {
	Account                 string             `json:"account"`
	AccountData             *model.AccountData `json:"accountData,omitempty"`
	Positions               int                `json:"positions"`
	NumberOfTrades          int                `json:"numberOfTrades"`
	DividendsReceived       string             `json:"dividendsReceived"`
	GrossExposure           int64              `json:"grossExposure"`
	NettedExposure          int64              `json:"nettedExposure"`
	Subscribed              bool               `json:"subscribed"`
	LastQuoteTime           time.Time          `json:"lastQuoteTime"`
	QuoteServiceStoppedTime time.Time          `json:"quoteServiceStoppedTime"`
}

func (s *Server) getAccount(c *gin.Context) {
	cache := portfolioOf(c)
	gross, netted := cache.Exposure()
	summary := accountSummary{
		Account:                 cache.Account(),
		Positions:               cache.PositionCount(),
		NumberOfTrades:          cache.NumberOfTrades(),
		DividendsReceived:       cache.DividendsReceived().String(),
		GrossExposure:           gross,
		NettedExposure:          netted,
		Subscribed:              cache.IsSubscribed(),
		LastQuoteTime:           cache.LastQuoteTime(),
		QuoteServiceStoppedTime: cache.QuoteServiceStoppedTime(),
	}
	if data, ok := cache.AccountData(); ok {
		summary.AccountData = &data
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": portfolioOf(c).Positions()})
}

func (s *Server) getIndices(c *gin.Context) {
	cache := portfolioOf(c)
	resp := gin.H{"indices": cache.Indices()}
	if b, ok := cache.Benchmark(); ok {
		resp["benchmark"] = b
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getPrice(c *gin.Context) {
	symbol := c.Param("symbol")
	price, ok := s.monitor.CurrentPrice(c.Param("account"), symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price": price})
}

func (s *Server) getTrades(c *gin.Context) {
	date := s.now()
	if v := c.Query("date"); v != "" {
		parsed, err := time.ParseInLocation(dateLayout, v, date.Location())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}
	trades, err := s.monitor.AccountTrades(c.Request.Context(), c.Param("account"), date)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	c.JSON(http.StatusOK, gin.H{"date": date.Format(dateLayout), "trades": trades})
}

func (s *Server) getAccountSnapshots(c *gin.Context) {
	ids := s.monitor.SnapshotsForAccount(c.Param("account"))
	if ids == nil {
		ids = []model.SnapshotID{}
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": ids})
}

func (s *Server) getNextTimeSlice(c *gin.Context) {
	next, ok := s.monitor.NextTimeSlice(c.Param("account"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no upcoming time slice"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"next": next})
}

func (s *Server) getRisk(c *gin.Context) {
	assessment, ok := s.risk.Evaluate(portfolioOf(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no delta available"})
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, exception.ErrSourceNotFound):
		status = http.StatusNotFound
	case stderrors.Is(err, exception.ErrMonitorNotInitialized):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logs.Errorf("%s %s, err: %+v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
