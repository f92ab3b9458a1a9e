package capture

import (
	"sync"

	"github.com/google/uuid"
)

// Previews hands out short-lived handles for serving a selected scan back to
// the browser. A handle stays valid until it is revoked.
type Previews struct {
	mu    sync.RWMutex
	items map[string]Image
}

func NewPreviews() *Previews {
	return &Previews{items: make(map[string]Image)}
}

func (p *Previews) Create(img Image) string {
	id := uuid.NewString()
	p.mu.Lock()
	p.items[id] = img
	p.mu.Unlock()
	return id
}

func (p *Previews) Get(id string) (Image, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	img, ok := p.items[id]
	return img, ok
}

// Revoke releases a handle. Revoking an unknown or empty handle is a no-op.
func (p *Previews) Revoke(id string) {
	if id == "" {
		return
	}
	p.mu.Lock()
	delete(p.items, id)
	p.mu.Unlock()
}

// Len reports how many previews are live.
func (p *Previews) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}
