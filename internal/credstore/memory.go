package credstore

import (
	"context"
	"sync"

	"github.com/lenscart/lenscart/internal/errs"
)

// Memory is an in-process Store. Its Watch is a real subscription fanout
// rather than a poll, so in-process observers see changes immediately.
type Memory struct {
	mu     sync.Mutex
	creds  Credentials
	set    bool
	subs   map[int]chan Credentials
	nextID int
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{subs: map[int]chan Credentials{}}
}

func (m *Memory) Load(ctx context.Context) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return Credentials{}, errs.ErrNoCredentials
	}
	return m.creds, nil
}

func (m *Memory) Save(ctx context.Context, c Credentials) error {
	m.mu.Lock()
	changed := !m.set || m.creds.AccessToken != c.AccessToken
	m.creds, m.set = c, true
	m.mu.Unlock()
	if changed {
		m.publish(c)
	}
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	changed := m.set && m.creds.AccessToken != ""
	m.creds, m.set = Credentials{}, false
	m.mu.Unlock()
	if changed {
		m.publish(Credentials{})
	}
	return nil
}

func (m *Memory) Watch(ctx context.Context) <-chan Credentials {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	ch := make(chan Credentials, 8)
	m.subs[id] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		close(ch)
	}()
	return ch
}

// publish fans a snapshot out to every subscriber. Slow subscribers
// with a full buffer miss intermediate snapshots, never the lock.
func (m *Memory) publish(c Credentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
