package session

import "sync"

// Identity は認証済みユーザーの識別子。
type Identity int64

// Provider は現在のidentityと、その変化（ログイン/ログアウト）の通知を約束する。
type Provider interface {
	// 現在のidentity。未認証なら ok=false
	Current() (Identity, bool)
	// identityが変わるたびに呼ばれるリスナーを登録する
	OnChange(fn func(id Identity, ok bool))
}

// MemoryProvider はProviderのインメモリ実装。
// サーバー側ではユーザーごとに1つ持ち、ログアウトでSignOutする。
type MemoryProvider struct {
	mu        sync.Mutex
	id        Identity
	ok        bool
	listeners []func(Identity, bool)
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{}
}

// ログイン済み状態で作る
func NewAuthenticated(id Identity) *MemoryProvider {
	return &MemoryProvider{id: id, ok: true}
}

func (p *MemoryProvider) Current() (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id, p.ok
}

func (p *MemoryProvider) OnChange(fn func(id Identity, ok bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// SignIn はidentityをセットして通知する。
func (p *MemoryProvider) SignIn(id Identity) {
	p.set(id, true)
}

// SignOut はidentityを失わせて通知する。
func (p *MemoryProvider) SignOut() {
	p.set(0, false)
}

func (p *MemoryProvider) set(id Identity, ok bool) {
	p.mu.Lock()
	p.id = id
	p.ok = ok
	fns := make([]func(Identity, bool), len(p.listeners))
	copy(fns, p.listeners)
	p.mu.Unlock()

	for _, fn := range fns {
		fn(id, ok)
	}
}
