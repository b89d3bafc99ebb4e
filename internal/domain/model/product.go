package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BillingPeriod string

const (
	BillingOneTime BillingPeriod = "one_time"
	BillingMonthly BillingPeriod = "monthly"
	BillingYearly  BillingPeriod = "yearly"
)

// カタログ商品（サブスクプラン・レンタル枠）
type Product struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	Description   string          `gorm:"type:text" json:"description"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	BillingPeriod BillingPeriod   `gorm:"type:varchar(20);not null;default:'one_time'" json:"billing_period"`
	IsActive      bool            `gorm:"not null;default:false" json:"is_active"`
	CreatedAt     time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}
