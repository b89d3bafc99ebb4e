package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// カートの明細。
// (user_id, product_id) につき1行。同一商品の追加は数量加算で吸収する。
// price_at_addition は追加時点の価格を必ず保存し、以後変更しない。
type CartLine struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64           `gorm:"not null;uniqueIndex:uq_cart_lines_user_product,priority:1;index" json:"user_id"`
	ProductID       int64           `gorm:"not null;uniqueIndex:uq_cart_lines_user_product,priority:2" json:"product_id"`
	Quantity        int64           `gorm:"not null" json:"quantity"`
	PriceAtAddition decimal.Decimal `gorm:"type:numeric(12,2);not null;column:price_at_addition" json:"price_at_addition"`
	CreatedAt       time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
