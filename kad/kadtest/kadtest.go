// Package kadtest provides a scripted DHT and transport for driving code
// that consumes kad.Handle and kad.Transport.
//
// Event channels are unbuffered, a successful Emit means the consumer
// received the event. Emitting the next event proves the previous one was
// fully processed by a single threaded consumer.
package kadtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/james-lawrence/kadproviders/kad"
)

const defaultWait = 5 * time.Second

// Command recorded by the DHT.
type Command struct {
	Kind    string
	QueryID kad.QueryID
	Target  peer.ID
	Key     kad.Key
}

type DHT struct {
	t        testing.TB
	mu       sync.Mutex
	last     kad.QueryID
	commands []Command
	issued   chan Command
	events   chan kad.Event
	network  chan kad.NetworkEvent
	reject   error
}

func New(t testing.TB) *DHT {
	return &DHT{
		t:       t,
		issued:  make(chan Command, 128),
		events:  make(chan kad.Event),
		network: make(chan kad.NetworkEvent),
	}
}

// Reject makes every subsequent command submission fail with err.
func (t *DHT) Reject(err error) *DHT {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reject = err
	return t
}

func (t *DHT) FindNode(ctx context.Context, target peer.ID) (kad.QueryID, error) {
	return t.record(ctx, Command{Kind: kad.KindFindNode, Target: target})
}

func (t *DHT) GetProviders(ctx context.Context, key kad.Key) (kad.QueryID, error) {
	return t.record(ctx, Command{Kind: kad.KindGetProviders, Key: key})
}

func (t *DHT) record(ctx context.Context, c Command) (kad.QueryID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.reject != nil {
		return 0, t.reject
	}

	t.last++
	c.QueryID = t.last
	t.commands = append(t.commands, c)
	t.issued <- c
	return c.QueryID, nil
}

func (t *DHT) Events() <-chan kad.Event {
	return t.events
}

func (t *DHT) NetworkEvents() <-chan kad.NetworkEvent {
	return t.network
}

// Commands issued so far.
func (t *DHT) Commands() []Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Command(nil), t.commands...)
}

// Next blocks until the next command is issued.
func (t *DHT) Next() Command {
	t.t.Helper()
	select {
	case c := <-t.issued:
		return c
	case <-time.After(defaultWait):
		t.t.Fatal("timed out waiting for a command")
		return Command{}
	}
}

// Pending reports the number of issued commands not yet consumed by Next.
func (t *DHT) Pending() int {
	return len(t.issued)
}

// Emit a dht event, blocks until received.
func (t *DHT) Emit(evt kad.Event) {
	t.t.Helper()
	select {
	case t.events <- evt:
	case <-time.After(defaultWait):
		t.t.Fatalf("timed out emitting %T", evt)
	}
}

// Connect emits a connection established event, blocks until received.
func (t *DHT) Connect(p peer.ID) {
	t.t.Helper()
	t.EmitNetwork(kad.ConnectionEstablished{Peer: p})
}

func (t *DHT) EmitNetwork(evt kad.NetworkEvent) {
	t.t.Helper()
	select {
	case t.network <- evt:
	case <-time.After(defaultWait):
		t.t.Fatalf("timed out emitting %T", evt)
	}
}

// Sync returns once every previously emitted event has been processed.
func (t *DHT) Sync() {
	t.t.Helper()
	t.Emit(kad.RoutingTableUpdate{})
}

func (t *DHT) CloseEvents() {
	close(t.events)
}

func (t *DHT) CloseNetwork() {
	close(t.network)
}

// Peer returns a deterministic peer id derived from the seed.
func Peer(seed string) peer.ID {
	return peer.ID("kadtest-" + seed)
}
