package kad

import (
	"context"
	"net"
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/james-lawrence/kadproviders/internal/errorsx"
)

// DefaultBootnode is polkadot bootnode 0.
const DefaultBootnode = "/dns/polkadot-bootnode-0.polkadot.io/tcp/30333/p2p/12D3KooWSz8r2WyCdsfWHgPyvD8GKQdJ1UAiRmrcrs8sQB3fe2KU"

// DefaultProtocol is the polkadot mainnet kademlia protocol.
const DefaultProtocol = "/91b171bb158e2d3848fa23a9f1c25182fb8e20313b2c1eb49219da7a70ce90c3/kad"

type dnscacher interface {
	LookupHost(ctx context.Context, host string) (addrs []string, err error)
}

// Bootnode is a multiaddress ending with the peer id of the node.
type Bootnode struct {
	peer.AddrInfo
	raw string
}

// ParseBootnode parses a multiaddress of the form /.../p2p/<peer id>.
func ParseBootnode(s string) (b Bootnode, err error) {
	if err = b.UnmarshalText([]byte(s)); err != nil {
		return b, err
	}

	return b, nil
}

func (t *Bootnode) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return errorsx.Wrap(err, "invalid multiaddress")
	}

	if _, err = addr.ValueForProtocol(ma.P_P2P); err != nil {
		return errorsx.Errorf("multiaddress doesn't contain peer ID: %s", s)
	}

	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return errorsx.Wrap(err, "multihash is not a peer ID in a multiaddress")
	}

	t.AddrInfo = *info
	t.raw = s
	return nil
}

func (t Bootnode) MarshalText() ([]byte, error) {
	return []byte(t.raw), nil
}

func (t Bootnode) String() string {
	return t.raw
}

var dnsprotocols = []int{ma.P_DNS, ma.P_DNS4, ma.P_DNS6}

// Resolve dns components of the bootnode addresses into ip addresses.
// addresses without a dns component are kept unchanged, addresses that fail
// to resolve are dropped.
func Resolve(ctx context.Context, dns dnscacher, b peer.AddrInfo) (resolved peer.AddrInfo, err error) {
	resolved = peer.AddrInfo{ID: b.ID}

	for _, addr := range b.Addrs {
		expanded, err := resolveaddr(ctx, dns, addr)
		if err != nil {
			errorsx.Log(errorsx.Wrapf(err, "failed to resolve %s", addr))
			continue
		}
		resolved.Addrs = append(resolved.Addrs, expanded...)
	}

	if len(resolved.Addrs) == 0 {
		return resolved, errorsx.Errorf("no resolvable bootnode address for %s", b.ID)
	}

	return resolved, nil
}

func resolveaddr(ctx context.Context, dns dnscacher, addr ma.Multiaddr) (res []ma.Multiaddr, err error) {
	for _, code := range dnsprotocols {
		host, err := addr.ValueForProtocol(code)
		if err != nil {
			continue
		}

		name := ma.ProtocolWithCode(code).Name
		ips, err := dns.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}

		for _, s := range ips {
			ip := net.ParseIP(s)
			if ip == nil {
				continue
			}

			family := "ip4"
			if ip.To4() == nil {
				family = "ip6"
			}

			if (code == ma.P_DNS4 && family != "ip4") || (code == ma.P_DNS6 && family != "ip6") {
				continue
			}

			replaced, err := ma.NewMultiaddr(strings.Replace(addr.String(), "/"+name+"/"+host, "/"+family+"/"+s, 1))
			if err != nil {
				return nil, err
			}
			res = append(res, replaced)
		}

		if len(res) == 0 {
			return nil, errorsx.Errorf("%s resolved to no usable addresses", host)
		}

		return res, nil
	}

	return []ma.Multiaddr{addr}, nil
}
