package dronelink

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"

	"DroneLink-Apps/internal/core/network"
)

var log = logging.Logger("dronelink")

// PublishInterval is the drone's gyro cadence.
const PublishInterval = time.Second

var (
	ErrSessionActive = errors.New("session already started")
	ErrNoSession     = errors.New("no active session")
	ErrClosed        = errors.New("coordinator closed")
)

type Option func(*Coordinator)

// WithClock replaces the wall clock driving the publish ticker.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithRand replaces the source of synthetic gyro readings.
func WithRand(r *rand.Rand) Option {
	return func(co *Coordinator) { co.rng = r }
}

// Coordinator owns one messaging session and runs the send and receive
// loops for the role chosen at StartSession.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc
	open   network.Opener
	clock  clock.Clock
	rng    *rand.Rand

	mu          sync.Mutex
	session     network.Session
	opening     bool
	closed      bool
	state       State
	watchers    map[int]chan State
	nextWatcher int

	// publishing is held by whichever publish task is in flight: the
	// drone's periodic gyro loop or a single operation put.
	publishing atomic.Bool
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

func New(parent context.Context, open network.Opener, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		ctx:      ctx,
		cancel:   cancel,
		open:     open,
		clock:    clock.New(),
		watchers: make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	c.state = State{Role: RoleNone, Operation: InitialOperation, UpdatedAt: c.clock.Now().UTC()}
	return c
}

// StartSession opens the session and starts the loops for role. A failed
// open is returned and leaves the attempted role in State; the caller may
// try again.
func (c *Coordinator) StartSession(role Role) error {
	if role != RoleDrone && role != RoleJoystick {
		return fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.session != nil || c.opening {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.opening = true
	c.mu.Unlock()

	// The session must outlive c.ctx: Close stops the loops first and
	// only then closes the session, which still needs its transport.
	session, err := c.open(context.WithoutCancel(c.ctx))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.opening = false
	if err != nil {
		log.Errorf("open session as %s: %v", role, err)
		c.updateLocked(func(s *State) { s.Role = role })
		return fmt.Errorf("open session: %w", err)
	}
	if c.closed {
		_ = session.Close()
		return ErrClosed
	}
	c.session = session
	c.updateLocked(func(s *State) {
		s.Role = role
		s.Active = true
	})
	log.Infof("session open as %s", role)

	switch role {
	case RoleDrone:
		c.startGyroPublisherLocked(session)
		c.goLocked(func() { c.receiveOperations(session) })
	case RoleJoystick:
		c.goLocked(func() { c.receiveGyro(session) })
	}
	return nil
}

// PublishOperation sends op once. It reports false without sending when
// another publish task is still in flight.
func (c *Coordinator) PublishOperation(op Operation) (bool, error) {
	if !op.Valid() {
		return false, fmt.Errorf("%w: %d", ErrInvalidOperation, uint8(op))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	if c.session == nil {
		return false, ErrNoSession
	}
	if !c.publishing.CompareAndSwap(false, true) {
		log.Debugf("publish in flight, dropping %s", op)
		return false, nil
	}
	session := c.session
	c.goLocked(func() {
		defer c.publishing.Store(false)
		c.putOperation(session, op)
	})
	return true, nil
}

// Role returns the role last passed to StartSession, or RoleNone.
func (c *Coordinator) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Role
}

// Close cancels every task, waits for them and closes the session. Close
// errors are logged, not returned. Safe to call more than once.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		session := c.session
		c.mu.Unlock()

		c.cancel()
		c.wg.Wait()

		if session != nil {
			if err := session.Close(); err != nil {
				log.Warnf("close session: %v", err)
			}
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		c.session = nil
		c.updateLocked(func(s *State) { s.Active = false })
		for id, w := range c.watchers {
			delete(c.watchers, id)
			close(w)
		}
		c.watchers = nil
		log.Infof("session closed")
	})
}

func (c *Coordinator) goLocked(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Coordinator) startGyroPublisherLocked(session network.Session) {
	if !c.publishing.CompareAndSwap(false, true) {
		return
	}
	c.goLocked(func() {
		defer c.publishing.Store(false)
		c.publishGyro(session)
	})
}

func (c *Coordinator) publishGyro(session network.Session) {
	pub, err := network.DeclarePublisher(session, SensorKey)
	if err != nil {
		log.Errorf("declare gyro publisher: %v", err)
		return
	}
	ticker := c.clock.Ticker(PublishInterval)
	defer ticker.Stop()

	for {
		if c.ctx.Err() != nil {
			return
		}
		sample := RandomGyro(c.rng)
		payload, err := EncodeGyro(sample)
		if err != nil {
			log.Errorf("encode gyro: %v", err)
			return
		}
		if err := pub.Put(payload); err != nil {
			log.Errorf("publish gyro: %v", err)
			return
		}
		log.Debugf("published gyro %s", payload)

		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) putOperation(session network.Session, op Operation) {
	if c.ctx.Err() != nil {
		return
	}
	pub, err := network.DeclarePublisher(session, OperationKey)
	if err != nil {
		log.Errorf("declare operation publisher: %v", err)
		return
	}
	if err := pub.Put([]byte(op.String())); err != nil {
		log.Errorf("publish operation %s: %v", op, err)
		return
	}
	log.Debugf("published operation %s", op)
}

func (c *Coordinator) receiveOperations(session network.Session) {
	sub, err := network.DeclareSubscriber(session, OperationKey)
	if err != nil {
		log.Errorf("declare operation subscriber: %v", err)
		c.update(func(s *State) { s.Operation = err.Error() })
		return
	}
	defer sub.Close()

	for {
		msg, err := sub.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				log.Warnf("operation subscriber stopped: %v", err)
				c.update(func(s *State) { s.Operation = err.Error() })
			}
			return
		}
		text := string(msg.Payload)
		if _, err := ParseOperation(text); err != nil {
			log.Warnf("unrecognised operation payload %q", text)
		}
		c.update(func(s *State) { s.Operation = text })
	}
}

func (c *Coordinator) receiveGyro(session network.Session) {
	sub, err := network.DeclareSubscriber(session, SensorKey)
	if err != nil {
		log.Errorf("declare gyro subscriber: %v", err)
		c.update(func(s *State) { s.Gyro = GyroSample{} })
		return
	}
	defer sub.Close()

	for {
		msg, err := sub.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				log.Warnf("gyro subscriber stopped: %v", err)
				c.update(func(s *State) { s.Gyro = GyroSample{} })
			}
			return
		}
		sample, err := DecodeGyro(msg.Payload)
		if err != nil {
			log.Warnf("malformed gyro payload %q: %v", msg.Payload, err)
			sample = GyroSample{}
		}
		c.update(func(s *State) { s.Gyro = sample })
	}
}

// PeerInfo describes the transport's view of the network.
type PeerInfo struct {
	PeerID      string   `json:"peer_id"`
	ListenAddrs []string `json:"listen_addrs"`
	Peers       []string `json:"peers"`
	PeerAddrs   []string `json:"peer_addrs"`
}

type peerReporter interface {
	PeerID() string
	ListenAddrs() []string
	ConnectedPeers() []string
	ConnectedPeerAddrs() []string
}

// Peers reports peer information when the session's transport exposes it.
func (c *Coordinator) Peers() (PeerInfo, bool) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	r, ok := session.(peerReporter)
	if !ok {
		return PeerInfo{}, false
	}
	return PeerInfo{
		PeerID:      r.PeerID(),
		ListenAddrs: r.ListenAddrs(),
		Peers:       r.ConnectedPeers(),
		PeerAddrs:   r.ConnectedPeerAddrs(),
	}, true
}
