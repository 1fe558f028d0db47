// Package kad is the contract between the lookup orchestrator and the
// Kademlia DHT and transport it drives.
//
// Commands are submitted through a Handle and resolve asynchronously as
// events on a single ordered stream. Transport level events arrive on a
// second, independent stream.
package kad

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

// QueryID correlates a submitted command with the event resolving it.
// ids are never reused within a process, zero is never issued.
type QueryID uint64

func (t QueryID) String() string {
	return fmt.Sprintf("q%d", uint64(t))
}

// Provider is a single peer claiming to serve a key.
type Provider = peer.AddrInfo

// Handle submits DHT commands. both commands block until the
// command has been accepted.
type Handle interface {
	FindNode(ctx context.Context, target peer.ID) (QueryID, error)
	GetProviders(ctx context.Context, key Key) (QueryID, error)
	Events() <-chan Event
}

// Transport exposes connection level events.
type Transport interface {
	NetworkEvents() <-chan NetworkEvent
}

// Event emitted by the DHT.
type Event interface {
	dhtevent()
}

type FindNodeSuccess struct {
	QueryID QueryID
	Target  peer.ID
	Peers   []peer.ID
}

type GetProvidersSuccess struct {
	QueryID     QueryID
	ProvidedKey Key
	Providers   []Provider
}

type QueryFailed struct {
	QueryID QueryID
	Cause   error
}

// RoutingTableUpdate lists peers present in the routing table.
type RoutingTableUpdate struct {
	Peers []peer.ID
}

// QueryStarted is informational, the query began walking the network.
type QueryStarted struct {
	QueryID QueryID
	Kind    string
}

func (FindNodeSuccess) dhtevent()     {}
func (GetProvidersSuccess) dhtevent() {}
func (QueryFailed) dhtevent()         {}
func (RoutingTableUpdate) dhtevent()  {}
func (QueryStarted) dhtevent()        {}

// NetworkEvent emitted by the transport.
type NetworkEvent interface {
	networkevent()
}

type ConnectionEstablished struct {
	Peer peer.ID
}

type ConnectionClosed struct {
	Peer peer.ID
}

func (ConnectionEstablished) networkevent() {}
func (ConnectionClosed) networkevent()      {}

const (
	KindFindNode     = "find_node"
	KindGetProviders = "get_providers"
)
