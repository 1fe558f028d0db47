package kad

import (
	"context"
	"errors"
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

type staticResolver map[string][]string

func (t staticResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if addrs, ok := t[host]; ok {
		return addrs, nil
	}

	return nil, errors.New("no such host")
}

func TestParseBootnode(t *testing.T) {
	t.Run("default bootnode", func(t *testing.T) {
		b, err := ParseBootnode(DefaultBootnode)
		require.NoError(t, err)
		require.Equal(t, "12D3KooWSz8r2WyCdsfWHgPyvD8GKQdJ1UAiRmrcrs8sQB3fe2KU", b.ID.String())
		require.Len(t, b.Addrs, 1)
		require.Equal(t, "/dns/polkadot-bootnode-0.polkadot.io/tcp/30333", b.Addrs[0].String())
		require.Equal(t, DefaultBootnode, b.String())
	})

	t.Run("missing peer id", func(t *testing.T) {
		_, err := ParseBootnode("/ip4/127.0.0.1/tcp/30333")
		require.Error(t, err)
	})

	t.Run("invalid multiaddress", func(t *testing.T) {
		_, err := ParseBootnode("not a multiaddr")
		require.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	b, err := ParseBootnode(DefaultBootnode)
	require.NoError(t, err)

	t.Run("dns components become ip components", func(t *testing.T) {
		dns := staticResolver{"polkadot-bootnode-0.polkadot.io": {"10.0.0.1", "2001:db8::1"}}
		resolved, err := Resolve(context.Background(), dns, b.AddrInfo)
		require.NoError(t, err)
		require.Equal(t, b.ID, resolved.ID)
		require.Equal(t, []string{"/ip4/10.0.0.1/tcp/30333", "/ip6/2001:db8::1/tcp/30333"}, addrstrings(resolved.Addrs))
	})

	t.Run("unresolvable bootnode", func(t *testing.T) {
		_, err := Resolve(context.Background(), staticResolver{}, b.AddrInfo)
		require.Error(t, err)
	})

	t.Run("ip addresses are untouched", func(t *testing.T) {
		ipb, err := ParseBootnode("/ip4/127.0.0.1/tcp/30333/p2p/12D3KooWSz8r2WyCdsfWHgPyvD8GKQdJ1UAiRmrcrs8sQB3fe2KU")
		require.NoError(t, err)
		resolved, err := Resolve(context.Background(), staticResolver{}, ipb.AddrInfo)
		require.NoError(t, err)
		require.Equal(t, []string{"/ip4/127.0.0.1/tcp/30333"}, addrstrings(resolved.Addrs))
	})

	t.Run("dns4 ignores ipv6 results", func(t *testing.T) {
		addr, err := ma.NewMultiaddr("/dns4/example.com/tcp/1")
		require.NoError(t, err)
		res, err := resolveaddr(context.Background(), staticResolver{"example.com": {"2001:db8::1", "10.0.0.2"}}, addr)
		require.NoError(t, err)
		require.Equal(t, []string{"/ip4/10.0.0.2/tcp/1"}, addrstrings(res))
	})
}

func addrstrings(addrs []ma.Multiaddr) (res []string) {
	for _, a := range addrs {
		res = append(res, a.String())
	}
	return res
}
