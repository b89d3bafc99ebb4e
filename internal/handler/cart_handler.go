package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/cart"
	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/session"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// /cartのHTTP。実体はユーザーごとのReconciliation Engine。
type CartHandler struct {
	engines *cart.Registry
}

// DI
func NewCartHandler(engines *cart.Registry) *CartHandler {
	return &CartHandler{engines: engines}
}

type AddCartLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type UpdateCartLineRequest struct {
	Quantity int64 `json:"quantity"`
}

type CartLineResponse struct {
	ID              int64           `json:"id"`
	ProductID       int64           `json:"product_id"`
	Quantity        int64           `json:"quantity"`
	PriceAtAddition decimal.Decimal `json:"price_at_addition"`
	CreatedAt       time.Time       `json:"created_at"`
}

type CartResponse struct {
	Items     []CartLineResponse `json:"items"`
	Total     decimal.Decimal    `json:"total"`
	ItemCount int64              `json:"item_count"`
}

// /cart配下を登録
func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/cart")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))

	g.GET("", h.getCart)
	g.POST("/items", h.addLine)
	g.PATCH("/items/:id", h.patchLine)
	g.DELETE("/items/:id", h.deleteLine)
	g.DELETE("", h.clearCart)
}

func (h *CartHandler) getCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var resp CartResponse
	err := h.engines.With(session.Identity(userID), func(e *cart.Engine) error {
		if err := e.Load(c.Request().Context()); err != nil {
			return err
		}
		resp = buildCartResponse(e)
		return nil
	})
	if err != nil {
		return writeCartError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *CartHandler) addLine(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req AddCartLineRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	// 省略時は1個
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	var resp CartResponse
	err := h.engines.With(session.Identity(userID), func(e *cart.Engine) error {
		if len(e.Snapshot()) == 0 {
			// merge判定はスナップショット基準なので先に読んでおく
			if err := e.Load(c.Request().Context()); err != nil {
				return err
			}
		}
		if err := e.Add(c.Request().Context(), req.ProductID, req.Quantity); err != nil {
			return err
		}
		resp = buildCartResponse(e)
		return nil
	})
	if err != nil {
		return writeCartError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *CartHandler) patchLine(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	lineID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req UpdateCartLineRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	var resp CartResponse
	werr := h.engines.With(session.Identity(userID), func(e *cart.Engine) error {
		if len(e.Snapshot()) == 0 {
			if err := e.Load(c.Request().Context()); err != nil {
				return err
			}
		}
		if err := e.SetQuantity(c.Request().Context(), lineID, req.Quantity); err != nil {
			return err
		}
		resp = buildCartResponse(e)
		return nil
	})
	if werr != nil {
		return writeCartError(c, werr)
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *CartHandler) deleteLine(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	lineID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var resp CartResponse
	werr := h.engines.With(session.Identity(userID), func(e *cart.Engine) error {
		if err := e.Remove(c.Request().Context(), lineID); err != nil {
			return err
		}
		resp = buildCartResponse(e)
		return nil
	})
	if werr != nil {
		return writeCartError(c, werr)
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *CartHandler) clearCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var resp CartResponse
	err := h.engines.With(session.Identity(userID), func(e *cart.Engine) error {
		if err := e.Clear(c.Request().Context()); err != nil {
			return err
		}
		resp = buildCartResponse(e)
		return nil
	})
	if err != nil {
		return writeCartError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// スナップショットからCartResponseを作る。
func buildCartResponse(e *cart.Engine) CartResponse {
	lines := e.Snapshot()

	items := make([]CartLineResponse, 0, len(lines))
	for _, l := range lines {
		items = append(items, CartLineResponse{
			ID:              l.ID,
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			PriceAtAddition: l.PriceAtAddition,
			CreatedAt:       l.CreatedAt,
		})
	}

	return CartResponse{
		Items:     items,
		Total:     e.Total(),
		ItemCount: e.ItemCount(),
	}
}

// Engineの型付きエラーをHTTPへ写す。
func writeCartError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, cart.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	case errors.Is(err, cart.ErrProductNotFound):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid"})
	case errors.Is(err, cart.ErrInvalidQuantity):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid quantity"})
	case errors.Is(err, cart.ErrLineNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case cart.IsSyncError(err):
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	raw := c.Get(middleware.CtxUserIDKey)
	userID, ok := raw.(int64)
	if !ok || userID <= 0 {
		return 0, false
	}
	return userID, true
}
