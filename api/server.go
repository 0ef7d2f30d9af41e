// Package api exposes the gateway over HTTP: read-only views of the books,
// the command surface used by operators and the metrics endpoint.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Aidin1998/fixgate/api/responses"
	"github.com/Aidin1998/fixgate/internal/accounts"
	"github.com/Aidin1998/fixgate/internal/commands"
	"github.com/Aidin1998/fixgate/internal/journal"
	"github.com/Aidin1998/fixgate/internal/marketdata"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Gateway is the part of the gateway served over HTTP.
type Gateway interface {
	IsConnected() bool
	IsReady() bool
	IsTradingDeskOpen() bool
	Stale() bool
	Outstanding() int
	ExchangeSettings() map[string]string

	Accounts() []accounts.Account
	Account(id string) (accounts.Account, error)
	Instruments() []marketdata.Instrument
	LatestSnapshot(symbol string) (marketdata.Snapshot, error)
	MarketDetail(symbol string) (marketdata.Detail, error)
	ActiveOrders() []trading.Order
	Order(clOrdID string) (trading.Order, error)
	Executions() []trading.Execution
	Positions() []trading.Position
	PositionsFor(symbol string) []trading.Position

	Subscribe(ctx context.Context, symbol string) error
	Unsubscribe(ctx context.Context, symbol string) error
	SubmitOrder(ctx context.Context, o commands.NewOrder) (trading.Order, error)
	CancelOrder(ctx context.Context, clOrdID string) error
	CancelOrders(ctx context.Context, symbol string) (int, error)
	ClosePosition(ctx context.Context, positionID string) error
	CloseAllPositions(ctx context.Context, symbol string) (int, error)
	CloseWinners(ctx context.Context, symbol string) (int, error)
	CloseLosers(ctx context.Context, symbol string) (int, error)
	QueryPositions(ctx context.Context) error
	QueryAccounts(ctx context.Context) error
}

// History is the persisted trading history. It is optional.
type History interface {
	Executions(ctx context.Context, f journal.Filter) ([]journal.ExecutionRecord, error)
	OrderHistory(ctx context.Context, clOrdID string) ([]journal.OrderEventRecord, error)
}

// Options configures the server.
type Options struct {
	AllowedOrigins []string
	History        History
}

// Server represents the API server
type Server struct {
	router    *gin.Engine
	logger    *zap.Logger
	gateway   Gateway
	history   History
	validator *validator.Validate

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates a new API server for gw
func NewServer(gw Gateway, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:    logger.Named("api"),
		gateway:   gw,
		history:   opts.History,
		validator: validator.New(),
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Trace-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))

	s.router = router
	s.registerRoutes()
	return s
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()
	s.logger.Info("Starting API server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Unavailable.Explain("api server").Wrap(err)
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// registerRoutes registers all API routes. Symbols contain a slash, so they
// travel as the symbol query parameter.
func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)
		v1.GET("/status", s.status)
		v1.GET("/settings", s.settings)

		accounts := v1.Group("/accounts")
		{
			accounts.GET("", s.listAccounts)
			accounts.GET("/:id", s.getAccount)
			accounts.POST("/refresh", s.refreshAccounts)
		}

		market := v1.Group("/market")
		{
			market.GET("/instruments", s.listInstruments)
			market.GET("/snapshot", s.getSnapshot)
			market.GET("/detail", s.getDetail)
			market.POST("/subscriptions", s.subscribe)
			market.DELETE("/subscriptions", s.unsubscribe)
		}

		orders := v1.Group("/orders")
		{
			orders.GET("", s.listOrders)
			orders.POST("", s.placeOrder)
			orders.DELETE("", s.cancelOrders)
			orders.GET("/:id", s.getOrder)
			orders.DELETE("/:id", s.cancelOrder)
			orders.GET("/:id/history", s.orderHistory)
		}

		v1.GET("/executions", s.listExecutions)

		positions := v1.Group("/positions")
		{
			positions.GET("", s.listPositions)
			positions.POST("/refresh", s.refreshPositions)
			positions.POST("/close", s.closePositions)
			positions.DELETE("/:id", s.closePosition)
		}
	}
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	if !s.gateway.IsConnected() {
		status, code = "disconnected", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().UTC(),
	})
}

func (s *Server) status(c *gin.Context) {
	responses.Success(c, gin.H{
		"connected":     s.gateway.IsConnected(),
		"ready":         s.gateway.IsReady(),
		"desk_open":     s.gateway.IsTradingDeskOpen(),
		"stale":         s.gateway.Stale(),
		"outstanding":   s.gateway.Outstanding(),
		"active_orders": len(s.gateway.ActiveOrders()),
		"positions":     len(s.gateway.Positions()),
	})
}

func (s *Server) settings(c *gin.Context) {
	responses.Success(c, s.gateway.ExchangeSettings())
}

func (s *Server) listAccounts(c *gin.Context) {
	responses.Success(c, s.gateway.Accounts())
}

func (s *Server) getAccount(c *gin.Context) {
	a, err := s.gateway.Account(c.Param("id"))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, a)
}

func (s *Server) refreshAccounts(c *gin.Context) {
	if err := s.gateway.QueryAccounts(c.Request.Context()); err != nil {
		responses.Error(c, err)
		return
	}
	responses.Accepted(c, nil)
}

func (s *Server) listInstruments(c *gin.Context) {
	responses.Success(c, s.gateway.Instruments())
}

// symbol returns the required symbol query parameter.
func symbol(c *gin.Context) (string, bool) {
	sym := c.Query("symbol")
	if sym == "" {
		responses.Error(c, errors.Invalid.Explain("symbol is required").
			WithField("required", "symbol", "query parameter missing"))
		return "", false
	}
	return sym, true
}

func (s *Server) getSnapshot(c *gin.Context) {
	sym, ok := symbol(c)
	if !ok {
		return
	}
	snap, err := s.gateway.LatestSnapshot(sym)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, gin.H{
		"snapshot": snap,
		"mid":      snap.Mid(),
		"spread":   snap.Spread(),
	})
}

func (s *Server) getDetail(c *gin.Context) {
	sym, ok := symbol(c)
	if !ok {
		return
	}
	d, err := s.gateway.MarketDetail(sym)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, d)
}

type subscriptionRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

func (s *Server) subscribe(c *gin.Context) {
	var req subscriptionRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.gateway.Subscribe(c.Request.Context(), req.Symbol); err != nil {
		responses.Error(c, err)
		return
	}
	responses.Accepted(c, gin.H{"symbol": req.Symbol})
}

func (s *Server) unsubscribe(c *gin.Context) {
	sym, ok := symbol(c)
	if !ok {
		return
	}
	if err := s.gateway.Unsubscribe(c.Request.Context(), sym); err != nil {
		responses.Error(c, err)
		return
	}
	responses.Accepted(c, gin.H{"symbol": sym})
}

func (s *Server) listOrders(c *gin.Context) {
	orders := s.gateway.ActiveOrders()
	if sym := c.Query("symbol"); sym != "" {
		filtered := orders[:0]
		for _, o := range orders {
			if o.Symbol == sym {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	responses.Success(c, orders)
}

func (s *Server) getOrder(c *gin.Context) {
	o, err := s.gateway.Order(c.Param("id"))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, o)
}

func (s *Server) placeOrder(c *gin.Context) {
	var req orderRequest
	if !s.bind(c, &req) {
		return
	}
	if err := req.check(); err != nil {
		responses.Error(c, err)
		return
	}
	o, err := s.gateway.SubmitOrder(c.Request.Context(), req.command())
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Accepted(c, o)
}

func (s *Server) cancelOrder(c *gin.Context) {
	id := c.Param("id")
	if err := s.gateway.CancelOrder(c.Request.Context(), id); err != nil {
		responses.Error(c, err)
		return
	}
	responses.Accepted(c, gin.H{"cl_ord_id": id})
}

func (s *Server) cancelOrders(c *gin.Context) {
	sym, ok := symbol(c)
	if !ok {
		return
	}
	n, err := s.gateway.CancelOrders(c.Request.Context(), sym)
	s.batchResult(c, n, err)
}

func (s *Server) orderHistory(c *gin.Context) {
	if s.history == nil {
		responses.Error(c, errors.Unavailable.Explain("journal disabled"))
		return
	}
	hist, err := s.history.OrderHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, hist)
}

type executionsQuery struct {
	Account string    `form:"account"`
	Symbol  string    `form:"symbol"`
	Since   time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit   int       `form:"limit" validate:"min=0,max=10000"`
}

// listExecutions serves the journal when it is enabled and the fills seen
// since startup otherwise.
func (s *Server) listExecutions(c *gin.Context) {
	var q executionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		responses.Error(c, errors.Invalid.Explain("invalid query").Wrap(err))
		return
	}
	if err := s.validator.Struct(q); err != nil {
		responses.Error(c, validationError(err))
		return
	}
	if s.history != nil {
		recs, err := s.history.Executions(c.Request.Context(), journal.Filter{
			Account: q.Account,
			Symbol:  q.Symbol,
			Since:   q.Since,
			Limit:   q.Limit,
		})
		if err != nil {
			responses.Error(c, err)
			return
		}
		responses.Success(c, recs)
		return
	}

	var out []trading.Execution
	for _, e := range s.gateway.Executions() {
		if (q.Account == "" || e.Account == q.Account) &&
			(q.Symbol == "" || e.Symbol == q.Symbol) &&
			(q.Since.IsZero() || !e.Timestamp.Before(q.Since)) {
			out = append(out, e)
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	responses.Success(c, out)
}

func (s *Server) listPositions(c *gin.Context) {
	if sym := c.Query("symbol"); sym != "" {
		responses.Success(c, s.gateway.PositionsFor(sym))
		return
	}
	responses.Success(c, s.gateway.Positions())
}

func (s *Server) refreshPositions(c *gin.Context) {
	if err := s.gateway.QueryPositions(c.Request.Context()); err != nil {
		responses.Error(c, err)
		return
	}
	responses.Accepted(c, nil)
}

func (s *Server) closePosition(c *gin.Context) {
	id := c.Param("id")
	if err := s.gateway.ClosePosition(c.Request.Context(), id); err != nil {
		responses.Error(c, err)
		return
	}
	responses.Accepted(c, gin.H{"position_id": id})
}

type closeRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	Which  string `json:"which" validate:"omitempty,oneof=all winners losers"`
}

func (s *Server) closePositions(c *gin.Context) {
	var req closeRequest
	if !s.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	var (
		n   int
		err error
	)
	switch req.Which {
	case "winners":
		n, err = s.gateway.CloseWinners(ctx, req.Symbol)
	case "losers":
		n, err = s.gateway.CloseLosers(ctx, req.Symbol)
	default:
		n, err = s.gateway.CloseAllPositions(ctx, req.Symbol)
	}
	s.batchResult(c, n, err)
}

// batchResult reports how many requests were sent. A partial failure is
// still reported as an error with the count attached.
func (s *Server) batchResult(c *gin.Context, n int, err error) {
	if err != nil {
		s.logger.Warn("Batch command failed", zap.Int("sent", n), zap.Error(err))
		p := errors.Problem(err, c.Request.URL.Path).WithExtra("sent", n)
		c.Header("Content-Type", "application/problem+json")
		c.JSON(p.Status, p)
		return
	}
	responses.Accepted(c, gin.H{"sent": n})
}

// bind decodes and validates the JSON body into dst.
func (s *Server) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		responses.Error(c, errors.Invalid.Explain("invalid request body").Wrap(err))
		return false
	}
	if err := s.validator.Struct(dst); err != nil {
		responses.Error(c, validationError(err))
		return false
	}
	return true
}

func validationError(err error) error {
	out := errors.Invalid.Explain("validation failed")
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return out.Wrap(err)
	}
	for _, fe := range verrs {
		out = out.WithField(fe.Tag(), fe.Field(), fe.Error())
	}
	return out
}
