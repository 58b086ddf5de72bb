package network

import (
	"context"
	"sync"
)

// MemoryPubSub is a process-local bus used for tests and loopback runs.
// Subscriptions may use wildcard key expressions.
type MemoryPubSub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*memorySub
}

type memorySub struct {
	key KeyExpr
	ch  chan Message
}

func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[int]*memorySub)}
}

func (m *MemoryPubSub) Publish(topic string, payload []byte) error {
	key, err := NewKeyExpr(topic)
	if err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs {
		if !Intersects(sub.key, key) {
			continue
		}
		msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
		select {
		case sub.ch <- msg:
		default:
			// Non-blocking send to avoid one slow subscriber stalling all publishers.
		}
	}
	return nil
}

func (m *MemoryPubSub) Subscribe(topic string) (<-chan Message, func(), error) {
	key, err := NewKeyExpr(topic)
	if err != nil {
		return nil, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	ch := make(chan Message, 64)
	m.subs[id] = &memorySub{key: key, ch: ch}

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel, nil
}

// Subscribers returns the number of live subscriptions whose key
// intersects topic.
func (m *MemoryPubSub) Subscribers(topic string) int {
	key, err := NewKeyExpr(topic)
	if err != nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sub := range m.subs {
		if Intersects(sub.key, key) {
			n++
		}
	}
	return n
}

// Open hands out a Session on the bus. Closing it cancels only the
// subscriptions made through it; the bus stays usable for other sessions.
func (m *MemoryPubSub) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memorySession{bus: m, cancels: make(map[int]func())}, nil
}

type memorySession struct {
	bus *MemoryPubSub

	mu      sync.Mutex
	closed  bool
	nextID  int
	cancels map[int]func()
}

func (s *memorySession) Publish(topic string, payload []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.bus.Publish(topic, payload)
}

func (s *memorySession) Subscribe(topic string) (<-chan Message, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	ch, busCancel, err := s.bus.Subscribe(topic)
	if err != nil {
		return nil, nil, err
	}
	id := s.nextID
	s.nextID++
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			busCancel()
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
		})
	}
	s.cancels[id] = busCancel
	return ch, cancel, nil
}

func (s *memorySession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return nil
}
