// Package notify is the client-local toast center. Records are never
// persisted or sent anywhere; they exist to be displayed and then expire.
package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"wafra.app/internal/ids"
)

// Type labels a notification for rendering.
type Type string

const (
	Success Type = "success"
	Error   Type = "error"
	Info    Type = "info"
	Warning Type = "warning"
)

// Notification is one toast record.
type Notification struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Center collects notifications from any feature component and fan-outs new
// ones to subscribers. Unread records auto-expire after the configured TTL.
type Center struct {
	store *gocache.Cache
	now   func() time.Time

	mu   sync.RWMutex
	subs map[int]chan Notification
	next int
}

// NewCenter creates a center whose records expire after ttl.
func NewCenter(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Center{
		store: gocache.New(ttl, time.Minute),
		now:   time.Now,
		subs:  make(map[int]chan Notification),
	}
}

// Push records a notification and delivers it to subscribers.
func (c *Center) Push(typ Type, title, message string) Notification {
	n := Notification{
		ID:        ids.New(),
		Type:      typ,
		Title:     title,
		Message:   message,
		Timestamp: c.now().UTC(),
	}
	c.store.SetDefault(n.ID, n)

	c.mu.RLock()
	for _, ch := range c.subs {
		select {
		case ch <- n:
		default:
		}
	}
	c.mu.RUnlock()
	return n
}

// Subscribe returns a channel of new notifications, closed when ctx ends.
func (c *Center) Subscribe(ctx context.Context) <-chan Notification {
	ch := make(chan Notification, 16)

	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = ch
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subs, id)
		close(ch)
		c.mu.Unlock()
	}()

	return ch
}

// List returns live notifications, newest first.
func (c *Center) List() []Notification {
	items := c.store.Items()
	out := make([]Notification, 0, len(items))
	for _, item := range items {
		if n, ok := item.Object.(Notification); ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// MarkRead flags a notification as read. Unknown ids are ignored.
func (c *Center) MarkRead(id string) bool {
	v, ok := c.store.Get(id)
	if !ok {
		return false
	}
	n, ok := v.(Notification)
	if !ok {
		return false
	}
	n.Read = true
	c.store.SetDefault(id, n)
	return true
}

// Unread counts live unread notifications.
func (c *Center) Unread() int {
	count := 0
	for _, item := range c.store.Items() {
		if n, ok := item.Object.(Notification); ok && !n.Read {
			count++
		}
	}
	return count
}
