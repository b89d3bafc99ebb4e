package cart

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/session"
)

// Engine はカートの照合（reconciliation）を担う。
// ローカルのスナップショットとリモートストアの整合を保ち、
// すべての変更は「ストアで確定 → 全件再読込」の順で反映する。
// 楽観的なローカル先行反映はしない（確定前の状態を見せない）。
//
// Engine自体はゴルーチンセーフではない。1セッション=1呼び出し系列が前提で、
// HTTP側の直列化はRegistryが行う。
type Engine struct {
	store    repository.CartStore
	catalog  repository.ProductRepository
	session  session.Provider
	snapshot []model.CartLine
	busy     bool
}

// DI
// identity喪失（ログアウト）の通知を受けたらスナップショットを空にする。
func NewEngine(store repository.CartStore, catalog repository.ProductRepository, sess session.Provider) *Engine {
	e := &Engine{
		store:   store,
		catalog: catalog,
		session: sess,
	}

	sess.OnChange(func(_ session.Identity, ok bool) {
		if !ok {
			e.snapshot = nil
		}
	})

	return e
}

// Snapshot は現在のスナップショットのコピーを返す（新しい明細が先頭）。
func (e *Engine) Snapshot() []model.CartLine {
	out := make([]model.CartLine, len(e.snapshot))
	copy(out, e.snapshot)
	return out
}

// Busy は同期処理が進行中かどうか。
func (e *Engine) Busy() bool {
	return e.busy
}

// Load はスナップショットをストアの全件で置き換える。
// identityが無ければ空にするだけでストアは呼ばない。
// ストアエラー時は直前のスナップショットを保持したままSyncErrorを返す。
func (e *Engine) Load(ctx context.Context) error {
	e.busy = true
	defer func() { e.busy = false }()

	return e.reload(ctx)
}

// Add は商品をカートへ追加する。
// 既存明細があれば数量加算（価格は最初の追加時点のまま）、無ければ
// 現在のカタログ価格をスナップショットして新規明細を作る。
func (e *Engine) Add(ctx context.Context, productID int64, qty int64) error {
	e.busy = true
	defer func() { e.busy = false }()

	userID, ok := e.session.Current()
	if !ok {
		return ErrUnauthenticated
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}

	p, err := e.catalog.FindByID(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrProductNotFound
	}
	if err != nil {
		return newSyncError("catalog lookup", err)
	}
	if !p.IsActive {
		return ErrProductNotFound
	}

	// merge-on-add: スナップショット上の既存明細に加算する
	if line, found := e.findByProduct(productID); found {
		_, updErr := e.store.UpdateQuantity(ctx, line.ID, line.Quantity+qty)
		if updErr != nil && !errors.Is(updErr, repository.ErrNotFound) {
			return newSyncError("add", updErr)
		}
		if errors.Is(updErr, repository.ErrNotFound) {
			// スナップショットが古く、明細は既に消えていた。挿入側へ倒す
			if _, err := e.store.UpsertLine(ctx, int64(userID), productID, qty, p.UnitPrice); err != nil {
				return newSyncError("add", err)
			}
		}
	} else {
		if _, err := e.store.UpsertLine(ctx, int64(userID), productID, qty, p.UnitPrice); err != nil {
			return newSyncError("add", err)
		}
	}

	return e.reload(ctx)
}

// SetQuantity は明細の数量を置き換える。0以下はRemoveに委譲する。
func (e *Engine) SetQuantity(ctx context.Context, lineID int64, qty int64) error {
	if qty <= 0 {
		return e.Remove(ctx, lineID)
	}

	e.busy = true
	defer func() { e.busy = false }()

	if _, ok := e.session.Current(); !ok {
		return ErrUnauthenticated
	}

	// ローカルの所有チェック（正はストア側）
	if _, found := e.findByID(lineID); !found {
		return ErrLineNotFound
	}

	if _, err := e.store.UpdateQuantity(ctx, lineID, qty); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrLineNotFound
		}
		return newSyncError("set quantity", err)
	}

	return e.reload(ctx)
}

// Remove は明細を削除する。存在しない明細の削除は冪等（エラーにしない）。
// 削除は本人のidentityでスコープされるため、他人の明細IDを渡しても何も起きない。
func (e *Engine) Remove(ctx context.Context, lineID int64) error {
	e.busy = true
	defer func() { e.busy = false }()

	userID, ok := e.session.Current()
	if !ok {
		return ErrUnauthenticated
	}

	if err := e.store.DeleteLine(ctx, int64(userID), lineID); err != nil {
		return newSyncError("remove", err)
	}

	return e.reload(ctx)
}

// Clear はユーザーの明細を全削除する。
// 結果は自明（空）なので再読込はせず、スナップショットを直接空にする。
func (e *Engine) Clear(ctx context.Context) error {
	e.busy = true
	defer func() { e.busy = false }()

	userID, ok := e.session.Current()
	if !ok {
		return ErrUnauthenticated
	}

	if err := e.store.DeleteAllLines(ctx, int64(userID)); err != nil {
		return newSyncError("clear", err)
	}

	e.snapshot = []model.CartLine{}
	return nil
}

// ストアの全件でスナップショットを置き換える。失敗時は置き換えない。
func (e *Engine) reload(ctx context.Context) error {
	userID, ok := e.session.Current()
	if !ok {
		e.snapshot = nil
		return nil
	}

	lines, err := e.store.ListLines(ctx, int64(userID))
	if err != nil {
		return newSyncError("load", err)
	}

	e.snapshot = lines
	return nil
}

func (e *Engine) findByProduct(productID int64) (model.CartLine, bool) {
	for _, l := range e.snapshot {
		if l.ProductID == productID {
			return l, true
		}
	}
	return model.CartLine{}, false
}

func (e *Engine) findByID(lineID int64) (model.CartLine, bool) {
	for _, l := range e.snapshot {
		if l.ID == lineID {
			return l, true
		}
	}
	return model.CartLine{}, false
}
