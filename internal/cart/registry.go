package cart

import (
	"sync"

	"storefront/internal/repository"
	"storefront/internal/session"
)

// Registry はユーザーごとのEngineの生成・直列化・破棄を担う。
// Engineはゴルーチンセーフでないため、同一ユーザーの操作はここで直列にする。
type Registry struct {
	mu      sync.Mutex
	store   repository.CartStore
	catalog repository.ProductRepository
	entries map[session.Identity]*registryEntry
}

type registryEntry struct {
	mu      sync.Mutex
	engine  *Engine
	session *session.MemoryProvider
}

// DI
func NewRegistry(store repository.CartStore, catalog repository.ProductRepository) *Registry {
	return &Registry{
		store:   store,
		catalog: catalog,
		entries: make(map[session.Identity]*registryEntry),
	}
}

// With は該当ユーザーのEngineに対してfnを直列実行する。
// Engineは無ければ作る（ログイン済みidentityで）。
func (r *Registry) With(id session.Identity, fn func(e *Engine) error) error {
	ent := r.entry(id)

	ent.mu.Lock()
	defer ent.mu.Unlock()

	return fn(ent.engine)
}

// Drop はログアウト時の破棄。identity喪失を通知してスナップショットを
// 空にしてから、Engineを捨てる。
func (r *Registry) Drop(id session.Identity) {
	r.mu.Lock()
	ent, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return
	}

	ent.mu.Lock()
	ent.session.SignOut()
	ent.mu.Unlock()
}

func (r *Registry) entry(id session.Identity) *registryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ent, ok := r.entries[id]; ok {
		return ent
	}

	sess := session.NewAuthenticated(id)
	ent := &registryEntry{
		engine:  NewEngine(r.store, r.catalog, sess),
		session: sess,
	}
	r.entries[id] = ent
	return ent
}
