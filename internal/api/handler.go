package api

import (
	"context"
	"log/slog"
	"strings"

	"market_engine/internal/domain"
	"market_engine/internal/engine"

	"github.com/labstack/echo/v4"
)

// Engine is the slice of the engine the HTTP layer drives.
type Engine interface {
	Snapshot() engine.Snapshot
	SelectPair(ctx context.Context, pairID string) error
	PlaceOrder(ctx context.Context, side domain.Side, pairID string, price, qty float64) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	DismissNotice()
}

// SelectPairRequest is the body of POST /api/pair.
type SelectPairRequest struct {
	Pair string `json:"pair" validate:"required,min=3,max=32"`
}

// PlaceOrderRequest is the body of POST /api/orders. An empty pair means
// the currently selected one.
type PlaceOrderRequest struct {
	Side     string  `json:"side" default:"buy" validate:"oneof=buy sell"`
	Pair     string  `json:"pair" validate:"omitempty,min=3,max=32"`
	Price    float64 `json:"price" validate:"gt=0"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
}

// Handler serves the engine over HTTP.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

func NewHandler(eng Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: eng, logger: logger.With("module", "api")}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/snapshot", h.Snapshot)
	g.POST("/pair", h.SelectPair)
	g.POST("/orders", h.PlaceOrder)
	g.DELETE("/orders/:id", h.CancelOrder)
	g.POST("/notice/dismiss", h.DismissNotice)
}

func (h *Handler) Snapshot(c echo.Context) error {
	return SuccessResponse(c, h.engine.Snapshot())
}

func (h *Handler) SelectPair(c echo.Context) error {
	req := &SelectPairRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	if err := h.engine.SelectPair(c.Request().Context(), req.Pair); err != nil {
		h.logger.Warn("select pair failed", slog.String("pair", req.Pair), slog.Any("error", err))
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, map[string]string{"pair": strings.ToUpper(strings.TrimSpace(req.Pair))})
}

func (h *Handler) PlaceOrder(c echo.Context) error {
	req := &PlaceOrderRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	pair := req.Pair
	if pair == "" {
		pair = h.engine.Snapshot().SelectedPair
	}

	order, err := h.engine.PlaceOrder(c.Request().Context(), domain.Side(req.Side), pair, req.Price, req.Quantity)
	if err != nil {
		h.logger.Warn("place order failed", slog.String("pair", pair), slog.Any("error", err))
		return AppErrorResponse(c, err)
	}
	return CreatedResponse(c, order)
}

func (h *Handler) CancelOrder(c echo.Context) error {
	id := c.Param("id")
	if err := h.engine.CancelOrder(c.Request().Context(), id); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, map[string]string{"id": id})
}

func (h *Handler) DismissNotice(c echo.Context) error {
	h.engine.DismissNotice()
	return SuccessResponse(c, nil)
}
