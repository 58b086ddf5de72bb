package network

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
)

var log = logging.Logger("dronelink-net")

// DefaultRendezvous is the mDNS service tag peers scout for.
const DefaultRendezvous = "dronelink"

// Libp2pOptions configures the libp2p transport.
type Libp2pOptions struct {
	ListenAddrs     []string
	Bootstrap       []string
	Rendezvous      string
	EnableMDNS      bool
	IdentityKeyFile string
}

// DefaultLibp2pOptions listens on an ephemeral TCP port and finds peers on
// the local network through multicast DNS.
func DefaultLibp2pOptions() Libp2pOptions {
	return Libp2pOptions{
		ListenAddrs: []string{"/ip4/0.0.0.0/tcp/0"},
		Rendezvous:  DefaultRendezvous,
		EnableMDNS:  true,
	}
}

// OpenLibp2p returns an Opener that starts a fresh host per session.
func OpenLibp2p(opts Libp2pOptions) Opener {
	return func(ctx context.Context) (Session, error) {
		return NewLibp2pPubSub(ctx, opts)
	}
}

// Libp2pPubSub provides gossip-based pubsub over libp2p.
type Libp2pPubSub struct {
	ctx    context.Context
	cancel context.CancelFunc

	host host.Host
	ps   *pubsub.PubSub

	mu     sync.Mutex
	closed bool
	topics map[string]*pubsub.Topic
	subs   map[*pubsub.Subscription]func()
}

func NewLibp2pPubSub(parent context.Context, opts Libp2pOptions) (*Libp2pPubSub, error) {
	ctx, cancel := context.WithCancel(parent)

	listenAddrs := make([]ma.Multiaddr, 0, len(opts.ListenAddrs))
	for _, s := range opts.ListenAddrs {
		if s == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid listen multiaddr %q: %w", s, err)
		}
		listenAddrs = append(listenAddrs, a)
	}
	if len(listenAddrs) == 0 {
		a, _ := ma.NewMultiaddr("/ip4/0.0.0.0/tcp/0")
		listenAddrs = append(listenAddrs, a)
	}

	libp2pOpts := []libp2p.Option{libp2p.ListenAddrs(listenAddrs...)}
	if opts.IdentityKeyFile != "" {
		key, err := loadOrCreateIdentityKey(opts.IdentityKeyFile)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("load identity key: %w", err)
		}
		libp2pOpts = append(libp2pOpts, libp2p.Identity(key))
	}

	h, err := libp2p.New(libp2pOpts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	p := &Libp2pPubSub{
		ctx:    ctx,
		cancel: cancel,
		host:   h,
		ps:     ps,
		topics: make(map[string]*pubsub.Topic),
		subs:   make(map[*pubsub.Subscription]func()),
	}

	if opts.EnableMDNS {
		rendezvous := opts.Rendezvous
		if rendezvous == "" {
			rendezvous = DefaultRendezvous
		}
		service := mdns.NewMdnsService(h, rendezvous, &mdnsNotifee{ctx: ctx, host: h})
		if err := service.Start(); err != nil {
			log.Warnf("mdns start error: %v", err)
		}
	}

	for _, raw := range opts.Bootstrap {
		if raw == "" {
			continue
		}
		addr, err := ma.NewMultiaddr(raw)
		if err != nil {
			log.Warnf("skip bootstrap addr %q: %v", raw, err)
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			log.Warnf("skip bootstrap addr %q: %v", raw, err)
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			log.Warnf("bootstrap connect failed %s: %v", info.ID, err)
		} else {
			log.Infof("connected bootstrap peer %s", info.ID)
		}
	}

	log.Infof("libp2p session open as %s", h.ID())
	return p, nil
}

func (p *Libp2pPubSub) Publish(topic string, payload []byte) error {
	t, err := p.getOrJoinTopic(topic)
	if err != nil {
		return err
	}
	return t.Publish(p.ctx, payload)
}

func (p *Libp2pPubSub) Subscribe(topic string) (<-chan Message, func(), error) {
	t, err := p.getOrJoinTopic(topic)
	if err != nil {
		return nil, nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, nil, err
	}

	var once sync.Once
	out := make(chan Message, 64)
	subCtx, subCancel := context.WithCancel(p.ctx)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(subCtx)
			if err != nil {
				return
			}
			select {
			case out <- Message{Topic: topic, Payload: append([]byte(nil), msg.Data...)}:
			default:
			}
		}
	}()

	release := func() {
		once.Do(func() {
			subCancel()
			sub.Cancel()
		})
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		release()
		return nil, nil, ErrClosed
	}
	p.subs[sub] = release
	p.mu.Unlock()

	cancel := func() {
		release()
		p.mu.Lock()
		delete(p.subs, sub)
		p.mu.Unlock()
	}
	return out, cancel, nil
}

// Close cancels outstanding subscriptions, leaves every joined topic and
// shuts the host down.
func (p *Libp2pPubSub) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	subs := p.subs
	p.subs = nil
	topics := p.topics
	p.topics = nil
	p.mu.Unlock()

	// Topics refuse to close while subscriptions are outstanding, and the
	// pubsub event loop must still be running to process either request.
	for _, release := range subs {
		release()
	}
	var errs error
	for name, t := range topics {
		if err := t.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close topic %s: %w", name, err))
		}
	}
	p.cancel()
	if err := p.host.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close host: %w", err))
	}
	return errs
}

func (p *Libp2pPubSub) PeerID() string {
	return p.host.ID().String()
}

func (p *Libp2pPubSub) ListenAddrs() []string {
	out := make([]string, 0, len(p.host.Addrs()))
	for _, addr := range p.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", addr.String(), p.host.ID().String()))
	}
	return out
}

func (p *Libp2pPubSub) ConnectedPeers() []string {
	peers := p.host.Network().Peers()
	out := make([]string, 0, len(peers))
	for _, pid := range peers {
		out = append(out, pid.String())
	}
	return out
}

func (p *Libp2pPubSub) ConnectedPeerAddrs() []string {
	peers := p.host.Network().Peers()
	seen := make(map[string]struct{}, 16)
	out := make([]string, 0, len(peers))
	for _, pid := range peers {
		for _, addr := range p.host.Peerstore().Addrs(pid) {
			full := fmt.Sprintf("%s/p2p/%s", addr.String(), pid.String())
			if _, ok := seen[full]; ok {
				continue
			}
			seen[full] = struct{}{}
			out = append(out, full)
		}
	}
	return out
}

func (p *Libp2pPubSub) getOrJoinTopic(name string) (*pubsub.Topic, error) {
	key, err := NewKeyExpr(name)
	if err != nil {
		return nil, err
	}
	if key.IsWild() {
		return nil, fmt.Errorf("gossipsub topics are exact, cannot join %q", name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if t, ok := p.topics[name]; ok {
		return t, nil
	}
	t, err := p.ps.Join(name)
	if err != nil {
		return nil, err
	}
	p.topics[name] = t
	return t, nil
}

type mdnsNotifee struct {
	ctx  context.Context
	host host.Host
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(n.ctx, info); err != nil {
		log.Debugf("mdns connect failed %s: %v", info.ID, err)
		return
	}
	log.Infof("discovered peer %s", info.ID)
}

func loadOrCreateIdentityKey(path string) (crypto.PrivKey, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		key, err := crypto.UnmarshalPrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("unmarshal private key: %w", err)
		}
		return key, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir key dir: %w", err)
	}
	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	return key, nil
}
