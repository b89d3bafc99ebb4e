package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"storefront/internal/cart"
	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

const handlerTestSecret = "handler-test-secret"

// カート明細のインメモリ実装。順序は作成日時の降順。
type memCartStore struct {
	nextID int64
	lines  map[int64]model.CartLine
	clock  time.Time
}

func newMemCartStore() *memCartStore {
	return &memCartStore{
		nextID: 1,
		lines:  make(map[int64]model.CartLine),
		clock:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memCartStore) ListLines(ctx context.Context, userID int64) ([]model.CartLine, error) {
	var out []model.CartLine
	for _, l := range s.lines {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *memCartStore) UpsertLine(ctx context.Context, userID int64, productID int64, addQty int64, priceAtAddition decimal.Decimal) (model.CartLine, error) {
	for id, l := range s.lines {
		if l.UserID == userID && l.ProductID == productID {
			l.Quantity += addQty
			s.lines[id] = l
			return l, nil
		}
	}

	s.clock = s.clock.Add(time.Second)
	line := model.CartLine{
		ID:              s.nextID,
		UserID:          userID,
		ProductID:       productID,
		Quantity:        addQty,
		PriceAtAddition: priceAtAddition,
		CreatedAt:       s.clock,
	}
	s.nextID++
	s.lines[line.ID] = line
	return line, nil
}

func (s *memCartStore) UpdateQuantity(ctx context.Context, lineID int64, qty int64) (model.CartLine, error) {
	l, ok := s.lines[lineID]
	if !ok {
		return model.CartLine{}, repository.ErrNotFound
	}
	l.Quantity = qty
	s.lines[lineID] = l
	return l, nil
}

func (s *memCartStore) DeleteLine(ctx context.Context, userID int64, lineID int64) error {
	if l, ok := s.lines[lineID]; ok && l.UserID == userID {
		delete(s.lines, lineID)
	}
	return nil
}

func (s *memCartStore) DeleteAllLines(ctx context.Context, userID int64) error {
	for id, l := range s.lines {
		if l.UserID == userID {
			delete(s.lines, id)
		}
	}
	return nil
}

var _ repository.CartStore = (*memCartStore)(nil)

type memProductRepo struct {
	products map[int64]model.Product
}

func (r *memProductRepo) ListPublic(ctx context.Context, q repository.ProductListQuery) ([]model.Product, int64, error) {
	return nil, 0, nil
}

func (r *memProductRepo) FindByID(ctx context.Context, productID int64) (model.Product, error) {
	p, ok := r.products[productID]
	if !ok {
		return model.Product{}, repository.ErrNotFound
	}
	return p, nil
}

var _ repository.ProductRepository = (*memProductRepo)(nil)

type stubUserRepo struct {
	users map[int64]*model.User
}

func (r *stubUserRepo) Create(ctx context.Context, user *model.User) error { return nil }

func (r *stubUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (r *stubUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, repository.ErrUserNotFound
}

func (r *stubUserRepo) Update(ctx context.Context, user *model.User) error { return nil }

func (r *stubUserRepo) IncrementTokenVersion(ctx context.Context, id int64) error { return nil }

var _ repository.UserRepository = (*stubUserRepo)(nil)

type cartTestEnv struct {
	echo     *echo.Echo
	store    *memCartStore
	products *memProductRepo
}

func newCartTestEnv(t *testing.T) *cartTestEnv {
	t.Helper()

	store := newMemCartStore()
	products := &memProductRepo{products: map[int64]model.Product{
		10: {ID: 10, Name: "Basic Plan", UnitPrice: decimal.RequireFromString("19.95"), BillingPeriod: model.BillingMonthly, IsActive: true},
		11: {ID: 11, Name: "Pro Plan", UnitPrice: decimal.RequireFromString("49.00"), BillingPeriod: model.BillingMonthly, IsActive: true},
		12: {ID: 12, Name: "Retired Plan", UnitPrice: decimal.RequireFromString("5.00"), BillingPeriod: model.BillingMonthly, IsActive: false},
	}}
	userRepo := &stubUserRepo{users: map[int64]*model.User{
		1: {ID: 1, Role: model.RoleUser, TokenVersion: 0, IsActive: true},
		2: {ID: 2, Role: model.RoleUser, TokenVersion: 0, IsActive: true},
	}}

	e := echo.New()
	h := handler.NewCartHandler(cart.NewRegistry(store, products))
	h.RegisterRoutes(e, config.Config{JWTSecret: handlerTestSecret}, userRepo)

	return &cartTestEnv{echo: e, store: store, products: products}
}

func accessTokenFor(t *testing.T, userID int64) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": userID,
		"tv":  0,
		"iat": 1,
		"exp": 9999999999,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(handlerTestSecret))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return s
}

func (env *cartTestEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *strings.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	} else {
		reqBody = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reqBody)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) handler.CartResponse {
	t.Helper()

	var resp handler.CartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v (body=%s)", err, rec.Body.String())
	}
	return resp
}

func TestCartHandler_GetCart_Unauthorized(t *testing.T) {
	env := newCartTestEnv(t)

	rec := env.do(t, http.MethodGet, "/cart", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartHandler_GetCart_Empty(t *testing.T) {
	env := newCartTestEnv(t)
	token := accessTokenFor(t, 1)

	rec := env.do(t, http.MethodGet, "/cart", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeCart(t, rec)
	assert.Empty(t, resp.Items)
	assert.True(t, resp.Total.IsZero())
	assert.Equal(t, int64(0), resp.ItemCount)
}

func TestCartHandler_AddLine_AndMerge(t *testing.T) {
	env := newCartTestEnv(t)
	token := accessTokenFor(t, 1)

	rec := env.do(t, http.MethodPost, "/cart/items", `{"product_id":10,"quantity":1}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	// カタログ価格が変わっても既存明細の価格は据え置き
	env.products.products[10] = model.Product{ID: 10, Name: "Basic Plan", UnitPrice: decimal.RequireFromString("29.95"), BillingPeriod: model.BillingMonthly, IsActive: true}

	rec = env.do(t, http.MethodPost, "/cart/items", `{"product_id":10,"quantity":2}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeCart(t, rec)
	assert.Equal(t, 1, len(resp.Items))
	assert.Equal(t, int64(3), resp.Items[0].Quantity)
	assert.True(t, resp.Items[0].PriceAtAddition.Equal(decimal.RequireFromString("19.95")))
	assert.True(t, resp.Total.Equal(decimal.RequireFromString("59.85")))
	assert.Equal(t, int64(3), resp.ItemCount)
}

func TestCartHandler_AddLine_DefaultQuantityIsOne(t *testing.T) {
	env := newCartTestEnv(t)
	token := accessTokenFor(t, 1)

	rec := env.do(t, http.MethodPost, "/cart/items", `{"product_id":10}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeCart(t, rec)
	assert.Equal(t, int64(1), resp.ItemCount)
}

func TestCartHandler_AddLine_UnknownProduct(t *testing.T) {
	env := newCartTestEnv(t)
	token := accessTokenFor(t, 1)

	rec := env.do(t, http.MethodPost, "/cart/items", `{"product_id":999,"quantity":1}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartHandler_AddLine_InactiveProduct(t *testing.T) {
	env := newCartTestEnv(t)
	token := accessTokenFor(t, 1)

	rec := env.do(t, http.MethodPost, "/cart/items", `{"product_id":12,"quantity":1}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartHandler_AddLine_NegativeQuantity(t *testing.T) {
	env := newCartTestEnv(t)
	token := accessTokenFor(t, 1)

	rec := env.do(t, http.MethodPost, "/cart/items", `{"product_id":10,"quantity":-1}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartHandler_PatchLine_ZeroRemoves(t *testing.T) {
	env := newCartTestEnv(t)
	token := accessTokenFor(t, 1)

	rec := env.do(t, http.MethodPost, "/cart/items", `{"product_id":10,"quantity":2}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	lineID := decodeCart(t, rec).Items[0].ID

	rec = env.do(t, http.MethodPatch, "/cart/items/"+itoa(lineID), `{"quantity":0}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeCart(t, rec)
	assert.Empty(t, resp.Items)
	assert.Equal(t, int64(0), resp.ItemCount)
}

func TestCartHandler_PatchLine_UnknownLine(t *testing.T) {
	env := newCartTestEnv(t)
	token := accessTokenFor(t, 1)

	rec := env.do(t, http.MethodPatch, "/cart/items/999", `{"quantity":2}`, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartHandler_DeleteLine_IsIdempotent(t *testing.T) {
	env := newCartTestEnv(t)
	token := accessTokenFor(t, 1)

	rec := env.do(t, http.MethodPost, "/cart/items", `{"product_id":10,"quantity":1}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	lineID := decodeCart(t, rec).Items[0].ID

	rec = env.do(t, http.MethodDelete, "/cart/items/"+itoa(lineID), "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	// 2回目も成功扱い
	rec = env.do(t, http.MethodDelete, "/cart/items/"+itoa(lineID), "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Items)
}

func TestCartHandler_ClearCart(t *testing.T) {
	env := newCartTestEnv(t)
	token := accessTokenFor(t, 1)

	env.do(t, http.MethodPost, "/cart/items", `{"product_id":10,"quantity":1}`, token)
	env.do(t, http.MethodPost, "/cart/items", `{"product_id":11,"quantity":2}`, token)

	rec := env.do(t, http.MethodDelete, "/cart", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeCart(t, rec)
	assert.Empty(t, resp.Items)
	assert.Equal(t, int64(0), resp.ItemCount)

	rec = env.do(t, http.MethodGet, "/cart", "", token)
	assert.Empty(t, decodeCart(t, rec).Items)
}

func TestCartHandler_DeleteLine_CannotTouchOtherUsersLine(t *testing.T) {
	env := newCartTestEnv(t)

	rec := env.do(t, http.MethodPost, "/cart/items", `{"product_id":10,"quantity":1}`, accessTokenFor(t, 1))
	assert.Equal(t, http.StatusOK, rec.Code)
	lineID := decodeCart(t, rec).Items[0].ID

	// 他人の明細IDを指定したDELETEは冪等no-op
	rec = env.do(t, http.MethodDelete, "/cart/items/"+itoa(lineID), "", accessTokenFor(t, 2))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/cart", "", accessTokenFor(t, 1))
	assert.Equal(t, 1, len(decodeCart(t, rec).Items))
}

func TestCartHandler_PatchLineToZero_CannotTouchOtherUsersLine(t *testing.T) {
	env := newCartTestEnv(t)

	rec := env.do(t, http.MethodPost, "/cart/items", `{"product_id":10,"quantity":1}`, accessTokenFor(t, 1))
	assert.Equal(t, http.StatusOK, rec.Code)
	lineID := decodeCart(t, rec).Items[0].ID

	rec = env.do(t, http.MethodPatch, "/cart/items/"+itoa(lineID), `{"quantity":0}`, accessTokenFor(t, 2))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/cart", "", accessTokenFor(t, 1))
	assert.Equal(t, 1, len(decodeCart(t, rec).Items))
}

func TestCartHandler_CartsAreScopedPerUser(t *testing.T) {
	env := newCartTestEnv(t)

	rec := env.do(t, http.MethodPost, "/cart/items", `{"product_id":10,"quantity":1}`, accessTokenFor(t, 1))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/cart", "", accessTokenFor(t, 2))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Items)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
