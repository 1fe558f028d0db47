package kad

import (
	"time"

	"github.com/libp2p/go-libp2p/core/protocol"
	"golang.org/x/time/rate"
)

type Option func(*Node)

// OptionProtocol overrides the kademlia protocol id spoken by the node.
func OptionProtocol(p protocol.ID) Option {
	return func(n *Node) {
		n.protocol = p
	}
}

// OptionBootnode adds a node to bootstrap the routing table from.
func OptionBootnode(b Bootnode) Option {
	return func(n *Node) {
		n.bootnodes = append(n.bootnodes, b.AddrInfo)
	}
}

// OptionRate limits how quickly commands are accepted.
func OptionRate(l rate.Limit, burst int) Option {
	if l <= 0 {
		l = rate.Inf
	}

	return func(n *Node) {
		n.limiter = rate.NewLimiter(l, max(burst, 1))
	}
}

// OptionQueryTimeout bounds a single query walk, zero disables the bound.
func OptionQueryTimeout(d time.Duration) Option {
	return func(n *Node) {
		n.timeout = d
	}
}

func OptionLogger(l logging) Option {
	return func(n *Node) {
		n.log = l
	}
}

// OptionResolver sets the resolver used for dns bootnode addresses.
func OptionResolver(r dnscacher) Option {
	return func(n *Node) {
		n.dnscache = r
	}
}
