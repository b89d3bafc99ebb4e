package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// リフレッシュトークンの保存・取得・更新・削除
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	// ローテーション時に旧トークンを使用済みへ
	MarkUsed(ctx context.Context, tokenID string, usedAt time.Time) error
	// 期限切れトークンが提示されたときの単体無効化
	Revoke(ctx context.Context, tokenID string, revokedAt time.Time) error
	// 使い回し検知時の全無効化
	RevokeAllByUserID(ctx context.Context, userID int64, revokedAt time.Time) error
	// ログアウト時の全削除
	DeleteAllByUserID(ctx context.Context, userID int64) error
}
