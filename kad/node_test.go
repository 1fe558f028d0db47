package kad

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	kaddht "github.com/libp2p/go-libp2p-kad-dht"
	kb "github.com/libp2p/go-libp2p-kbucket"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

const testprotocol = protocol.ID("/kadproviders/test/kad")

func nextevent(t *testing.T, n *Node) Event {
	t.Helper()

	select {
	case evt, ok := <-n.Events():
		require.True(t, ok, "event stream closed")
		return evt
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for dht event")
		return nil
	}
}

// kadserver starts a server mode kademlia node listening on loopback.
func kadserver(t *testing.T) (*kaddht.IpfsDHT, host.Host) {
	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	d, err := kaddht.New(
		context.Background(),
		h,
		kaddht.Mode(kaddht.ModeServer),
		kaddht.V1ProtocolOverride(testprotocol),
		kaddht.DisableAutoRefresh(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	return d, h
}

// dnsbootnode addresses the server through a dns name so resolution is exercised.
func dnsbootnode(t *testing.T, h host.Host, name string) Bootnode {
	port, err := h.Addrs()[0].ValueForProtocol(ma.P_TCP)
	require.NoError(t, err)

	b, err := ParseBootnode("/dns4/" + name + "/tcp/" + port + "/p2p/" + h.ID().String())
	require.NoError(t, err)
	return b
}

func TestNodeWithoutPeers(t *testing.T) {
	ctx, done := context.WithTimeout(t.Context(), time.Minute)
	defer done()

	n, err := NewNode(ctx, OptionProtocol(testprotocol), OptionQueryTimeout(10*time.Second))
	require.NoError(t, err)
	defer n.Close()

	target, err := RandomPeerID()
	require.NoError(t, err)

	t.Run("find node fails", func(t *testing.T) {
		id, err := n.FindNode(ctx, target)
		require.NoError(t, err)

		require.Equal(t, QueryStarted{QueryID: id, Kind: KindFindNode}, nextevent(t, n))
		require.IsType(t, RoutingTableUpdate{}, nextevent(t, n))

		failed, ok := nextevent(t, n).(QueryFailed)
		require.True(t, ok)
		require.Equal(t, id, failed.QueryID)
		require.ErrorIs(t, failed.Cause, kb.ErrLookupFailure)
	})

	t.Run("get providers fails", func(t *testing.T) {
		id, err := n.GetProviders(ctx, Key{0xab})
		require.NoError(t, err)

		require.Equal(t, QueryStarted{QueryID: id, Kind: KindGetProviders}, nextevent(t, n))
		require.IsType(t, RoutingTableUpdate{}, nextevent(t, n))

		failed, ok := nextevent(t, n).(QueryFailed)
		require.True(t, ok)
		require.Equal(t, id, failed.QueryID)
		require.ErrorIs(t, failed.Cause, kb.ErrLookupFailure)
	})
}

func TestNodeProvidersFromServer(t *testing.T) {
	ctx, done := context.WithTimeout(t.Context(), 2*time.Minute)
	defer done()

	server, sh := kadserver(t)

	key := Key(bytes.Repeat([]byte{0xab}, 32))
	provider, err := RandomPeerID()
	require.NoError(t, err)
	require.NoError(t, server.ProviderStore().AddProvider(ctx, key, peer.AddrInfo{ID: provider}))

	n, err := NewNode(
		ctx,
		OptionProtocol(testprotocol),
		OptionBootnode(dnsbootnode(t, sh, "kadserver.test")),
		OptionResolver(staticResolver{"kadserver.test": {"127.0.0.1"}}),
		OptionQueryTimeout(30*time.Second),
	)
	require.NoError(t, err)
	defer n.Close()

	connected := make(chan struct{})
	go func() {
		var once sync.Once
		for evt := range n.NetworkEvents() {
			if evt == (ConnectionEstablished{Peer: sh.ID()}) {
				once.Do(func() { close(connected) })
			}
		}
	}()

	select {
	case <-connected:
	case <-ctx.Done():
		t.Fatal("bootnode connection was never reported")
	}

	require.Eventually(t, func() bool {
		return n.dht.RoutingTable().Find(sh.ID()) != ""
	}, 30*time.Second, 10*time.Millisecond)

	t.Run("closest peers include the server", func(t *testing.T) {
		target, err := RandomPeerID()
		require.NoError(t, err)

		id, err := n.FindNode(ctx, target)
		require.NoError(t, err)

		require.Equal(t, QueryStarted{QueryID: id, Kind: KindFindNode}, nextevent(t, n))

		update, ok := nextevent(t, n).(RoutingTableUpdate)
		require.True(t, ok)
		require.Contains(t, update.Peers, sh.ID())

		found, ok := nextevent(t, n).(FindNodeSuccess)
		require.True(t, ok, "expected find node success")
		require.Equal(t, id, found.QueryID)
		require.Equal(t, target, found.Target)
		require.Contains(t, found.Peers, sh.ID())
	})

	t.Run("providers stored under the raw key", func(t *testing.T) {
		id, err := n.GetProviders(ctx, key)
		require.NoError(t, err)

		require.Equal(t, QueryStarted{QueryID: id, Kind: KindGetProviders}, nextevent(t, n))
		require.IsType(t, RoutingTableUpdate{}, nextevent(t, n))

		found, ok := nextevent(t, n).(GetProvidersSuccess)
		require.True(t, ok, "expected get providers success")
		require.Equal(t, id, found.QueryID)
		require.True(t, key.Equal(found.ProvidedKey))
		require.Len(t, found.Providers, 1)
		require.Equal(t, provider, found.Providers[0].ID)
	})

	t.Run("unknown key has no providers", func(t *testing.T) {
		id, err := n.GetProviders(ctx, Key{0xcd, 0xef})
		require.NoError(t, err)

		require.Equal(t, QueryStarted{QueryID: id, Kind: KindGetProviders}, nextevent(t, n))
		require.IsType(t, RoutingTableUpdate{}, nextevent(t, n))

		found, ok := nextevent(t, n).(GetProvidersSuccess)
		require.True(t, ok, "expected get providers success")
		require.Empty(t, found.Providers)
	})

	t.Run("unreachable closest peers fail the query", func(t *testing.T) {
		require.NoError(t, server.Close())
		require.NoError(t, sh.Close())

		id, err := n.GetProviders(ctx, key)
		require.NoError(t, err)

		require.Equal(t, QueryStarted{QueryID: id, Kind: KindGetProviders}, nextevent(t, n))
		require.IsType(t, RoutingTableUpdate{}, nextevent(t, n))

		failed, ok := nextevent(t, n).(QueryFailed)
		require.True(t, ok, "expected query failure")
		require.Equal(t, id, failed.QueryID)
		require.Error(t, failed.Cause)
	})
}

func TestProviderSetMerges(t *testing.T) {
	a := ma.StringCast("/ip4/10.0.0.1/tcp/4001")
	b := ma.StringCast("/ip4/10.0.0.2/tcp/4001")
	p1, p2 := peer.ID("p1"), peer.ID("p2")

	var s providerset
	s.add(peer.AddrInfo{ID: p1, Addrs: []ma.Multiaddr{a}})
	s.add(peer.AddrInfo{ID: p2})
	s.add(peer.AddrInfo{ID: p1, Addrs: []ma.Multiaddr{a, b}})

	require.Len(t, s.providers, 2)
	require.Equal(t, p1, s.providers[0].ID)
	require.Equal(t, []string{a.String(), b.String()}, addrstrings(s.providers[0].Addrs))
	require.Equal(t, p2, s.providers[1].ID)
}
