package api

import (
	"errors"
	"time"

	models "github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	domrepo "github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	"github.com/predeshen/yfinance-trading-signal/internal/lifecycle"
	"github.com/predeshen/yfinance-trading-signal/internal/risk"
	"github.com/predeshen/yfinance-trading-signal/internal/usecase"
	xhttp "github.com/predeshen/yfinance-trading-signal/pkg/http"
	xlogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
	"github.com/predeshen/yfinance-trading-signal/pkg/util"

	"github.com/labstack/echo/v4"
)

// ScannerHandler exposes the scanner state over HTTP following Clean Architecture.
type ScannerHandler struct {
	logger  *xlogger.Logger
	store   domrepo.OutcomeStore
	machine *lifecycle.Machine
	candles *usecase.CandlesUseCase
	tracker *usecase.PriceTracker
	scanner *usecase.Scanner
	stream  domrepo.PriceStream // nil when streaming is disabled
}

func NewScannerHandler(
	logger *xlogger.Logger,
	store domrepo.OutcomeStore,
	machine *lifecycle.Machine,
	candles *usecase.CandlesUseCase,
	tracker *usecase.PriceTracker,
	scanner *usecase.Scanner,
	stream domrepo.PriceStream,
) *ScannerHandler {
	return &ScannerHandler{
		logger:  logger,
		store:   store,
		machine: machine,
		candles: candles,
		tracker: tracker,
		scanner: scanner,
		stream:  stream,
	}
}

func (h *ScannerHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/status", h.Status)

	g := e.Group("/api/v1")
	g.GET("/signals", h.Signals)
	g.GET("/trades", h.Trades)
	g.GET("/trades/:id", h.Trade)
	g.POST("/trades/:id/close", h.CloseTrade)
	g.GET("/candles", h.Candles)
	g.GET("/stats/outcomes", h.OutcomeStats)
}

func (h *ScannerHandler) Health(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("store unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// symbolStatus is the per-symbol slice of the /status payload.
type symbolStatus struct {
	Symbol     string  `json:"symbol"`
	Provider   string  `json:"provider"`
	LastPrice  float64 `json:"last_price,omitempty"`
	PriceAt    int64   `json:"price_at,omitempty"`
	OpenTrades int     `json:"open_trades"`
}

func (h *ScannerHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	ticks := h.tracker.Snapshot()

	symbols := h.scanner.Symbols()
	out := make([]symbolStatus, 0, len(symbols))
	for _, sym := range symbols {
		st := symbolStatus{Symbol: sym.Name, Provider: sym.Provider}
		if tick, ok := ticks[sym.Name]; ok {
			st.LastPrice = tick.Price
			st.PriceAt = tick.Timestamp
		}
		open, err := h.store.OpenTrades(ctx, sym.Name)
		if err != nil {
			h.logger.Error("status open trades", xlogger.String("symbol", sym.Name), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
		st.OpenTrades = len(open)
		out = append(out, st)
	}

	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbols":          out,
		"stream_connected": h.stream != nil && h.stream.IsConnected(),
		"recent_logs":      h.logger.CollectedLogs(),
		"server_time":      time.Now().UTC(),
	})
}

func (h *ScannerHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sigs, err := h.store.RecentSignals(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("recent signals query", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, sigs, int64(len(sigs)))
}

func (h *ScannerHandler) Trades(c echo.Context) error {
	req := &models.TradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	trades, err := h.store.TradesByState(c.Request().Context(), models.TradeState(req.State), req.Limit)
	if err != nil {
		h.logger.Error("trades query", xlogger.String("state", req.State), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, trades, int64(len(trades)))
}

func (h *ScannerHandler) Trade(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.BadRequestResponse(c, "trade id required")
	}

	t, err := h.store.GetTrade(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("trade lookup", xlogger.String("trade_id", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if t == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("trade %s not found", id))
	}
	return xhttp.SuccessResponse(c, t)
}

func (h *ScannerHandler) CloseTrade(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.BadRequestResponse(c, "trade id required")
	}
	req := &models.CloseTradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	t, err := h.store.GetTrade(ctx, id)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	if t == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("trade %s not found", id))
	}
	if t.State.Terminal() {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("trade %s already closed as %s", id, t.State))
	}

	state, err := h.machine.CloseManual(ctx, t, req.Price, time.Now().UTC(), req.Reason)
	if err != nil {
		if errors.Is(err, lifecycle.ErrStateConflict) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("trade %s changed state concurrently", id))
		}
		h.logger.Error("manual close", xlogger.String("trade_id", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	h.logger.Info("trade closed manually",
		xlogger.String("trade_id", id),
		xlogger.String("state", string(state)),
		xlogger.Float64("price", req.Price))
	return xhttp.SuccessResponse(c, t)
}

func (h *ScannerHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var from, to time.Time
	if s := c.QueryParam("from"); s != "" {
		from = xhttp.ParseTimeDefault(s, time.Time{})
	}
	if s := c.QueryParam("to"); s != "" {
		to = xhttp.ParseTimeDefault(s, time.Time{})
	}
	if !from.IsZero() && !to.IsZero() {
		from, to = util.AlignFromTo(from, to, req.TF)
	}

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    req.Symbol,
		Timeframe: domrepo.Timeframe(req.TF),
		Limit:     req.Limit,
		From:      from,
		To:        to,
	})
	if err != nil {
		h.logger.Error("candles query", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *ScannerHandler) OutcomeStats(c echo.Context) error {
	req := &models.OutcomeStatsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	dir := models.Direction(req.Direction)

	outcomes, err := h.store.QueryClosedOutcomes(c.Request().Context(), req.Symbol, dir, req.Limit)
	if err != nil {
		h.logger.Error("closed outcomes query", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, risk.ComputeStats(req.Symbol, dir, outcomes))
}

var _ xhttp.Handler = (*ScannerHandler)(nil)
