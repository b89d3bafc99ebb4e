package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartStoreGorm struct {
	db *gorm.DB
}

// DI
func NewCartStoreGorm(db *gorm.DB) *CartStoreGorm {
	return &CartStoreGorm{db: db}
}

// ユーザーのカート明細を一覧取得（新しい明細が先頭）
func (r *CartStoreGorm) ListLines(ctx context.Context, userID int64) ([]model.CartLine, error) {
	var lines []model.CartLine

	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Find(&lines).Error; err != nil {
		return []model.CartLine{}, err
	}

	return lines, nil
}

// 同一商品は数量加算。price_at_addition は最初の挿入時だけ書く。
func (r *CartStoreGorm) UpsertLine(ctx context.Context, userID int64, productID int64, addQty int64, priceAtAddition decimal.Decimal) (model.CartLine, error) {

	if addQty <= 0 {
		return model.CartLine{}, errors.New("invalid quantity")
	}

	var out model.CartLine

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var line model.CartLine

		findErr := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND product_id = ?", userID, productID).
			First(&line).Error

		if findErr == nil {
			// 既存ありだったら数量を増やす（価格は触らない）
			newQty := line.Quantity + addQty

			res := tx.Model(&model.CartLine{}).
				Where("id = ?", line.ID).
				Update("quantity", newQty)

			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return repo.ErrNotFound
			}

			line.Quantity = newQty
			out = line
			return nil
		}

		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		//無い場合は新規作成
		now := time.Now()
		newLine := model.CartLine{
			UserID:          userID,
			ProductID:       productID,
			Quantity:        addQty,
			PriceAtAddition: priceAtAddition,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := tx.Create(&newLine).Error; err != nil {
			return err
		}

		out = newLine
		return nil
	})

	if err != nil {
		return model.CartLine{}, err
	}
	return out, nil
}

// 明細の数量を更新
func (r *CartStoreGorm) UpdateQuantity(ctx context.Context, lineID int64, qty int64) (model.CartLine, error) {
	res := r.db.WithContext(ctx).
		Model(&model.CartLine{}).
		Where("id = ?", lineID).
		Update("quantity", qty)

	if res.Error != nil {
		return model.CartLine{}, res.Error
	}
	if res.RowsAffected == 0 {
		return model.CartLine{}, repo.ErrNotFound
	}

	var line model.CartLine
	if err := r.db.WithContext(ctx).First(&line, lineID).Error; err != nil {
		return model.CartLine{}, err
	}
	return line, nil
}

// 明細を削除。user_idで絞るので他人の明細は消えない。0件でもエラーにしない（冪等）
func (r *CartStoreGorm) DeleteLine(ctx context.Context, userID int64, lineID int64) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", lineID, userID).
		Delete(&model.CartLine{}).Error
}

// 指定ユーザーの明細を全削除
func (r *CartStoreGorm) DeleteAllLines(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.CartLine{}).Error
}
