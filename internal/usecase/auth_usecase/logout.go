package auth

import (
	"context"
	"errors"

	"storefront/internal/repository"
)

// LogoutUsecaseはログアウト。
// token_versionを+1して既発行のアクセストークンを無効化し、
// リフレッシュトークンは全削除する（本人のログアウトなので残す理由がない）。
type LogoutUsecase struct {
	userRepo repository.UserRepository
	rtRepo   repository.RefreshTokenRepository
}

// DI
func NewLogoutUsecase(
	userRepo repository.UserRepository,
	rtRepo repository.RefreshTokenRepository,
) *LogoutUsecase {
	return &LogoutUsecase{
		userRepo: userRepo,
		rtRepo:   rtRepo,
	}
}

func (u *LogoutUsecase) Execute(ctx context.Context, userID int64) error {
	if err := u.rtRepo.DeleteAllByUserID(ctx, userID); err != nil {
		return err
	}

	if err := u.userRepo.IncrementTokenVersion(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}

	return nil
}
