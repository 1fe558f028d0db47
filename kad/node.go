package kad

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p"
	kaddht "github.com/libp2p/go-libp2p-kad-dht"
	pb "github.com/libp2p/go-libp2p-kad-dht/pb"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/rs/dnscache"
	"golang.org/x/time/rate"

	"github.com/james-lawrence/kadproviders/internal/atomicx"
	"github.com/james-lawrence/kadproviders/internal/errorsx"
	"github.com/james-lawrence/kadproviders/internal/langx"
	"github.com/james-lawrence/kadproviders/internal/logx"
)

type logging interface {
	Println(v ...any)
	Printf(format string, v ...any)
	Print(v ...any)
}

func defaultQueryTimeout() time.Duration {
	return 2 * time.Minute
}

// Node is a client only libp2p host running the kademlia protocol.
type Node struct {
	protocol  protocol.ID
	bootnodes []peer.AddrInfo
	limiter   *rate.Limiter
	timeout   time.Duration
	log       logging
	dnscache  dnscacher

	host    host.Host
	dht     *kaddht.IpfsDHT
	msgs    *pb.ProtocolMessenger
	sub     event.Subscription
	ids     *atomic.Uint64
	events  chan Event
	network chan NetworkEvent
	ctx     context.Context
	done    context.CancelFunc
	wg      sync.WaitGroup
	closed  sync.Once
}

// NewNode starts a host without listen addresses and connects it to the
// configured bootnodes.
func NewNode(ctx context.Context, options ...Option) (_ *Node, err error) {
	n := &Node{
		protocol: DefaultProtocol,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		timeout:  defaultQueryTimeout(),
		log:      logx.Discard(),
		dnscache: &dnscache.Resolver{},
		ids:      atomicx.Uint64(0),
		events:   make(chan Event),
		network:  make(chan NetworkEvent),
	}

	for _, opt := range options {
		opt(n)
	}

	n.protocol = langx.DefaultIfZero(protocol.ID(DefaultProtocol), n.protocol)

	bootnodes := make([]peer.AddrInfo, 0, len(n.bootnodes))
	for _, b := range n.bootnodes {
		resolved, err := Resolve(ctx, n.dnscache, b)
		if err != nil {
			return nil, errorsx.Wrapf(err, "unable to resolve bootnode %s", b.ID)
		}
		bootnodes = append(bootnodes, resolved)
	}

	if n.host, err = libp2p.New(libp2p.NoListenAddrs); err != nil {
		return nil, errorsx.Wrap(err, "libp2p initialization error")
	}

	if n.sub, err = n.host.EventBus().Subscribe(new(event.EvtPeerConnectednessChanged)); err != nil {
		return nil, errorsx.Compact(errorsx.Wrap(err, "unable to subscribe to connection events"), n.host.Close())
	}

	n.dht, err = kaddht.New(
		ctx,
		n.host,
		kaddht.Mode(kaddht.ModeClient),
		kaddht.V1ProtocolOverride(n.protocol),
		kaddht.BootstrapPeers(bootnodes...),
		kaddht.WithCustomMessageSender(newmessenger),
	)
	if err != nil {
		return nil, errorsx.Compact(errorsx.Wrap(err, "kademlia initialization error"), n.sub.Close(), n.host.Close())
	}

	if n.msgs, err = pb.NewProtocolMessenger(newmessenger(n.host, []protocol.ID{n.protocol})); err != nil {
		return nil, errorsx.Compact(errorsx.Wrap(err, "kademlia messenger initialization error"), n.dht.Close(), n.sub.Close(), n.host.Close())
	}

	n.ctx, n.done = context.WithCancel(context.Background())
	go n.transport()

	for _, b := range bootnodes {
		n.host.Peerstore().AddAddrs(b.ID, b.Addrs, peerstore.PermanentAddrTTL)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.host.Connect(n.ctx, b); err != nil {
				n.log.Println("bootnode connection failed", b.ID, err)
			}
		}()
	}

	return n, nil
}

func (t *Node) ID() peer.ID {
	return t.host.ID()
}

func (t *Node) Events() <-chan Event {
	return t.events
}

func (t *Node) NetworkEvents() <-chan NetworkEvent {
	return t.network
}

// FindNode walks the network toward target.
func (t *Node) FindNode(ctx context.Context, target peer.ID) (QueryID, error) {
	id, err := t.submit(ctx)
	if err != nil {
		return 0, err
	}

	t.spawn(id, KindFindNode, func(ctx context.Context) Event {
		peers, err := t.dht.GetClosestPeers(ctx, string(target))
		if err != nil {
			return QueryFailed{QueryID: id, Cause: err}
		}

		return FindNodeSuccess{QueryID: id, Target: target, Peers: peers}
	})

	return id, nil
}

// GetProviders looks up provider records stored under the raw key bytes.
func (t *Node) GetProviders(ctx context.Context, key Key) (QueryID, error) {
	id, err := t.submit(ctx)
	if err != nil {
		return 0, err
	}

	t.spawn(id, KindGetProviders, func(ctx context.Context) Event {
		providers, err := t.providers(ctx, key)
		if err != nil {
			return QueryFailed{QueryID: id, Cause: err}
		}

		return GetProvidersSuccess{QueryID: id, ProvidedKey: Key(key.Multihash()), Providers: providers}
	})

	return id, nil
}

func (t *Node) submit(ctx context.Context) (QueryID, error) {
	if err := t.ctx.Err(); err != nil {
		return 0, errorsx.Wrap(err, "node closed")
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return 0, errorsx.Wrap(err, "command admission")
	}

	return QueryID(t.ids.Add(1)), nil
}

// spawn runs the query in the background. the routing table snapshot is
// emitted before the resolution so it is observed first.
func (t *Node) spawn(id QueryID, kind string, query func(context.Context) Event) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, done := t.queryctx()
		defer done()

		if !t.emit(QueryStarted{QueryID: id, Kind: kind}) {
			return
		}

		resolved := query(ctx)

		if !t.emit(RoutingTableUpdate{Peers: t.dht.RoutingTable().ListPeers()}) {
			return
		}

		t.emit(resolved)
	}()
}

func (t *Node) queryctx() (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(t.ctx)
	}

	return context.WithTimeout(t.ctx, t.timeout)
}

func (t *Node) emit(evt Event) bool {
	select {
	case t.events <- evt:
		return true
	case <-t.ctx.Done():
		return false
	}
}

// transport translates connectedness changes until the node closes.
func (t *Node) transport() {
	defer close(t.network)

	for {
		select {
		case <-t.ctx.Done():
			return
		case v, ok := <-t.sub.Out():
			if !ok {
				return
			}

			evt, ok := v.(event.EvtPeerConnectednessChanged)
			if !ok {
				continue
			}

			var ne NetworkEvent
			switch evt.Connectedness {
			case network.Connected:
				ne = ConnectionEstablished{Peer: evt.Peer}
			case network.NotConnected:
				ne = ConnectionClosed{Peer: evt.Peer}
			default:
				continue
			}

			select {
			case t.network <- ne:
			case <-t.ctx.Done():
				return
			}
		}
	}
}

// Close stops outstanding queries and shuts the host down.
func (t *Node) Close() (err error) {
	t.closed.Do(func() {
		t.done()
		t.wg.Wait()
		close(t.events)
		err = errorsx.Compact(t.sub.Close(), t.dht.Close(), t.host.Close())
	})

	return err
}
