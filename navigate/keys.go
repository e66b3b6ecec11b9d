package navigate

import (
	"context"
	"sync"
)

// Key is an input key name as reported by the key source.
type Key string

// KeyEscape cancels the change view.
const KeyEscape Key = "Escape"

// KeySource is a shared source of key events. Subscribe returns the function
// that releases the subscription.
type KeySource interface {
	Subscribe(fn func(Key)) (release func())
}

// KeyBus is an in-memory KeySource.
type KeyBus struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Key)
}

// NewKeyBus creates an empty KeyBus.
func NewKeyBus() *KeyBus {
	return &KeyBus{subs: make(map[int]func(Key))}
}

// Subscribe registers fn. The returned release is idempotent.
func (b *KeyBus) Subscribe(fn func(Key)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers k to every subscriber. Subscribers run without the bus
// lock held and may release themselves.
func (b *KeyBus) Publish(k Key) {
	b.mu.Lock()
	fns := make([]func(Key), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(k)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *KeyBus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Mount subscribes the controller to keys for as long as it is active.
// The subscription is released by Unmount, by the cancel key, or when ctx
// is done, whichever comes first. Mounting again replaces the previous
// subscription.
func (c *Controller) Mount(ctx context.Context, keys KeySource) {
	c.Unmount()

	id := c.mountSeq.Inc()
	var once sync.Once
	unsubscribe := keys.Subscribe(func(k Key) { c.onKey(id, k) })
	release := func() {
		once.Do(func() {
			// A late release of an older mount must not clear a newer one.
			c.mounted.CompareAndSwap(id, 0)
			unsubscribe()
		})
	}
	c.mounted.Store(id)
	stop := context.AfterFunc(ctx, release)

	c.mu.Lock()
	c.release = release
	c.stopMount = stop
	c.mu.Unlock()
}

// Unmount releases the key subscription. It is safe to call more than once.
func (c *Controller) Unmount() {
	c.mu.Lock()
	release, stop := c.release, c.stopMount
	c.release, c.stopMount = nil, nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if release != nil {
		release()
	}
}

// Mounted reports whether the controller currently holds a key subscription.
func (c *Controller) Mounted() bool {
	return c.mounted.Load() != 0
}

func (c *Controller) onKey(id uint64, k Key) {
	if k != KeyEscape || c.mounted.Load() != id {
		return
	}
	c.Cancel()
}
