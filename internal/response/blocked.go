package response

import (
	"sort"
	"sync"
)

// BlockedIPSet is the mutable set of blocked source addresses. It is owned
// exclusively by the controller and mutated only by the BLOCK_IP handler.
type BlockedIPSet struct {
	mu  sync.Mutex
	ips map[string]struct{}
}

func NewBlockedIPSet() *BlockedIPSet {
	return &BlockedIPSet{ips: make(map[string]struct{})}
}

// Block inserts addr and reports whether it was already present. Blocking
// an already-blocked address is a no-op success, not an error.
func (b *BlockedIPSet) Block(addr string) (already bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.ips[addr]; ok {
		return true
	}
	b.ips[addr] = struct{}{}
	return false
}

func (b *BlockedIPSet) Contains(addr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.ips[addr]
	return ok
}

func (b *BlockedIPSet) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ips)
}

func (b *BlockedIPSet) List() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.ips))
	for ip := range b.ips {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}
