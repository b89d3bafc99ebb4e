package auth

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
)

// 無効・期限切れ・使用済みのリフレッシュトークン
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

type RefreshInput struct {
	PlainRefreshToken string
	UserAgent         string
}

type RefreshOutput struct {
	User  model.User     `json:"user"`
	Token JwtAccessToken `json:"token"`
}

type RefreshSideEffect struct {
	PlainRefreshToken string
}

// RefreshUsecaseはリフレッシュトークンのローテーション。
// 使用済みトークンの再提示（使い回し検知）は、該当ユーザーの全トークンを無効化する。
type RefreshUsecase struct {
	userRepo   repository.UserRepository
	rtRepo     repository.RefreshTokenRepository
	issuer     AccessTokenIssuer
	idGen      IDGenerator
	clock      Clock
	refreshTTL time.Duration
}

// DI
func NewRefreshUsecase(
	userRepo repository.UserRepository,
	rtRepo repository.RefreshTokenRepository,
	issuer AccessTokenIssuer,
	idGen IDGenerator,
	clock Clock,
	refreshTTL time.Duration,
) *RefreshUsecase {
	return &RefreshUsecase{
		userRepo:   userRepo,
		rtRepo:     rtRepo,
		issuer:     issuer,
		idGen:      idGen,
		clock:      clock,
		refreshTTL: refreshTTL,
	}
}

func (u *RefreshUsecase) Execute(ctx context.Context, in RefreshInput) (RefreshOutput, RefreshSideEffect, error) {
	var out RefreshOutput
	var side RefreshSideEffect

	if in.PlainRefreshToken == "" {
		return out, side, ErrInvalidRefreshToken
	}

	now := u.clock.Now()

	token, err := u.rtRepo.FindByTokenHash(ctx, HashRefreshToken(in.PlainRefreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return out, side, ErrInvalidRefreshToken
		}
		return out, side, err
	}

	//使い回し検知：使用済み/無効化済みの提示は全トークン無効化
	if token.UsedAt != nil || token.RevokedAt != nil {
		_ = u.rtRepo.RevokeAllByUserID(ctx, token.UserID, now)
		return out, side, ErrInvalidRefreshToken
	}

	//期限切れ。提示されたトークンは以後有効扱いにならないよう無効化しておく
	if now.After(token.ExpiresAt) {
		_ = u.rtRepo.Revoke(ctx, token.ID, now)
		return out, side, ErrInvalidRefreshToken
	}

	//ユーザー確認
	user, err := u.userRepo.FindByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return out, side, ErrInvalidRefreshToken
		}
		return out, side, err
	}
	if !user.IsActive {
		return out, side, ErrUserInactive
	}

	//旧トークンを使用済みに
	if err := u.rtRepo.MarkUsed(ctx, token.ID, now); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return out, side, ErrInvalidRefreshToken
		}
		return out, side, err
	}

	//新しいAccessToken
	accessToken, accessExp, err := u.issuer.Issue(user.ID, user.TokenVersion, now)
	if err != nil {
		return out, side, err
	}

	//新しいRefreshToken
	plainRefresh, err := GenerateSecureToken(32)
	if err != nil {
		return out, side, err
	}

	next := &model.RefreshToken{
		ID:        u.idGen.NewID(),
		UserID:    user.ID,
		TokenHash: HashRefreshToken(plainRefresh),
		UserAgent: in.UserAgent,
		ExpiresAt: now.Add(u.refreshTTL),
	}

	if err := u.rtRepo.Create(ctx, next); err != nil {
		return out, side, err
	}

	safeUser := *user
	safeUser.PasswordHash = ""

	out.User = safeUser
	out.Token = JwtAccessToken{
		AccessToken:  accessToken,
		ExpiresIn:    int(accessExp.Sub(now).Seconds()),
		TokenVersion: user.TokenVersion,
	}

	side.PlainRefreshToken = plainRefresh
	return out, side, nil
}
