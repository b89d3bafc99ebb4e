package cart

import (
	"errors"
	"fmt"
)

var (
	// identityが無い状態での操作
	ErrUnauthenticated = errors.New("unauthenticated")
	// カタログに商品が無い（または非公開）
	ErrProductNotFound = errors.New("product not found")
	// 対象明細が自分のスナップショットに無い
	ErrLineNotFound = errors.New("cart line not found")
	// Addの数量は1以上
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// SyncError はストアI/Oの失敗。
// 失敗時スナップショットは直前の確定状態のまま残る。リトライはしない（呼び出し側の責務）。
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("cart sync %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func newSyncError(op string, err error) error {
	return &SyncError{Op: op, Err: err}
}

// IsSyncError はerrがSyncErrorかどうか。
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}
