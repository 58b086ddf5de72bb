package network

import (
	"context"
	"sync"
)

// Publisher is the send side bound to one key expression.
type Publisher struct {
	ps  PubSub
	key KeyExpr
}

func DeclarePublisher(ps PubSub, key KeyExpr) (*Publisher, error) {
	if ps == nil {
		return nil, ErrClosed
	}
	return &Publisher{ps: ps, key: key}, nil
}

func (p *Publisher) Key() KeyExpr { return p.key }

func (p *Publisher) Put(payload []byte) error {
	return p.ps.Publish(string(p.key), payload)
}

// Subscriber is the receive side bound to one key expression.
type Subscriber struct {
	key    KeyExpr
	ch     <-chan Message
	cancel func()
	once   sync.Once
}

func DeclareSubscriber(ps PubSub, key KeyExpr) (*Subscriber, error) {
	if ps == nil {
		return nil, ErrClosed
	}
	ch, cancel, err := ps.Subscribe(string(key))
	if err != nil {
		return nil, err
	}
	return &Subscriber{key: key, ch: ch, cancel: cancel}, nil
}

func (s *Subscriber) Key() KeyExpr { return s.key }

// Receive blocks until the next message arrives, ctx is done, or the
// underlying subscription ends.
func (s *Subscriber) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			return Message{}, ErrSubscriberClosed
		}
		return msg, nil
	}
}

func (s *Subscriber) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
