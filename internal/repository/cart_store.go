package repository

import (
	"context"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

// CartStore はカート明細の永続化（リモートの正）を約束する。
// 並び順は作成日時の降順（新しい明細が先頭）。
type CartStore interface {
	ListLines(ctx context.Context, userID int64) ([]model.CartLine, error)
	// (userID, productID) で一意。既存があれば数量を加算し、
	// price_at_addition は最初の挿入時の値のまま。
	UpsertLine(ctx context.Context, userID int64, productID int64, addQty int64, priceAtAddition decimal.Decimal) (model.CartLine, error)
	UpdateQuantity(ctx context.Context, lineID int64, qty int64) (model.CartLine, error)
	// 本人の明細だけを消す。存在しない（他人のものを含む）削除はエラーにしない（冪等）
	DeleteLine(ctx context.Context, userID int64, lineID int64) error
	DeleteAllLines(ctx context.Context, userID int64) error
}
