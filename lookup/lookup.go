// Package lookup drives a provider lookup against a kademlia DHT.
//
// A run optionally prepopulates the routing table with FIND_NODE walks toward
// random targets and then issues a single GET_PROVIDERS query. Exactly one
// query is awaited at any time, resolutions for any other query id are stale
// and ignored.
package lookup

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/james-lawrence/kadproviders/cstate"
	"github.com/james-lawrence/kadproviders/internal/errorsx"
	"github.com/james-lawrence/kadproviders/internal/logx"
	"github.com/james-lawrence/kadproviders/kad"
)

const (
	// ErrQueryFailed the active query was reported failed by the DHT.
	ErrQueryFailed = errorsx.String("kademlia query failed")
	// ErrNetworkClosed the network event stream ended.
	ErrNetworkClosed = errorsx.String("network event stream ended")
	// ErrSubmit a command was not accepted by the DHT.
	ErrSubmit = errorsx.String("kademlia command submission failed")
)

type logging interface {
	Println(v ...any)
	Printf(format string, v ...any)
	Print(v ...any)
}

type Option func(*Orchestrator)

// OptionPrepopulate sets the number of FIND_NODE walks issued before the provider lookup.
func OptionPrepopulate(n uint) Option {
	return func(o *Orchestrator) {
		o.prepopulate = n
	}
}

func OptionLogger(l logging) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// OptionOutput sets where the report is written.
func OptionOutput(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.out = w
	}
}

// OptionTargets sets the generator for prepopulation targets.
func OptionTargets(fn func() (peer.ID, error)) Option {
	return func(o *Orchestrator) {
		o.target = fn
	}
}

func OptionClock(fn func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = fn
	}
}

// Orchestrator owns a single lookup run.
type Orchestrator struct {
	key         kad.Key
	dht         kad.Handle
	dhtevents   <-chan kad.Event
	netevents   <-chan kad.NetworkEvent
	prepopulate uint
	stats       *Stats
	out         io.Writer
	log         logging
	target      func() (peer.ID, error)
	now         func() time.Time
}

func New(dht kad.Handle, transport kad.Transport, key kad.Key, options ...Option) *Orchestrator {
	o := &Orchestrator{
		key:       key,
		dht:       dht,
		dhtevents: dht.Events(),
		netevents: transport.NetworkEvents(),
		out:       io.Discard,
		log:       logx.Discard(),
		target:    kad.RandomPeerID,
		now:       time.Now,
	}

	for _, opt := range options {
		opt(o)
	}

	return o
}

// Run the lookup to completion. the error is nil once providers were
// reported, wraps ErrQueryFailed when the active query failed and
// ErrNetworkClosed or ErrSubmit on infrastructure failures.
func (t *Orchestrator) Run(ctx context.Context) error {
	t.stats = NewStats(t.now)
	return cstate.Run(ctx, cstate.Fn(func(ctx context.Context, _ *cstate.Shared) cstate.T {
		return t.advance(ctx, t.prepopulate)
	}), t.log)
}

// Stats observed by the current run.
func (t *Orchestrator) Stats() Snapshot {
	if t.stats == nil {
		return Snapshot{}
	}

	return t.stats.Snapshot()
}

// advance issues the next command given the number of prepopulation
// walks left to run.
func (t *Orchestrator) advance(ctx context.Context, remaining uint) cstate.T {
	if remaining == 0 {
		id, err := t.dht.GetProviders(ctx, t.key)
		if err != nil {
			return cstate.Failure(fmt.Errorf("%w: %s %s: %w", ErrSubmit, kad.KindGetProviders, t.key, err))
		}

		return awaiting{Orchestrator: t, active: id}
	}

	target, err := t.target()
	if err != nil {
		return cstate.Failure(errorsx.Wrap(err, "unable to generate prepopulation target"))
	}

	id, err := t.dht.FindNode(ctx, target)
	if err != nil {
		return cstate.Failure(fmt.Errorf("%w: %s %s: %w", ErrSubmit, kad.KindFindNode, target, err))
	}

	return prepopulating{Orchestrator: t, remaining: remaining - 1, active: id}
}

// await processes exactly one event from either stream.
func (t *Orchestrator) await(ctx context.Context, current phase) cstate.T {
	select {
	case <-ctx.Done():
		return cstate.Failure(context.Cause(ctx))
	case evt, ok := <-t.netevents:
		if !ok {
			return cstate.Failure(errorsx.WithStack(ErrNetworkClosed))
		}

		if evt, ok := evt.(kad.ConnectionEstablished); ok {
			t.stats.Contacted(evt.Peer)
		}

		return current
	case evt, ok := <-t.dhtevents:
		if !ok {
			t.log.Println("dht event stream ended, waiting on network events only")
			t.dhtevents = nil
			return current
		}

		return t.dispatch(ctx, current, evt)
	}
}

func (t *Orchestrator) dispatch(ctx context.Context, current phase, evt kad.Event) cstate.T {
	switch evt := evt.(type) {
	case kad.RoutingTableUpdate:
		t.stats.Discovered(evt.Peers...)
		return current
	case kad.FindNodeSuccess:
		p, ok := current.(prepopulating)
		if !ok || p.active != evt.QueryID {
			return t.stale(current, evt, evt.QueryID)
		}

		return t.advance(ctx, p.remaining)
	case kad.GetProvidersSuccess:
		a, ok := current.(awaiting)
		if !ok || a.active != evt.QueryID {
			return t.stale(current, evt, evt.QueryID)
		}

		if !evt.ProvidedKey.Equal(t.key) {
			t.log.Printf("ignoring providers for %s, requested %s\n", evt.ProvidedKey, t.key)
			return current
		}

		return t.succeeded(evt.Providers)
	case kad.QueryFailed:
		if current.query() != evt.QueryID {
			return t.stale(current, evt, evt.QueryID)
		}

		if evt.Cause != nil {
			t.log.Println(evt.QueryID, "failed", evt.Cause)
		}

		return t.failed(errorsx.Wrapf(ErrQueryFailed, "%s %s", current.kind(), evt.QueryID))
	default:
		t.log.Println("ignoring dht event", spew.Sprintf("%+v", evt))
		return current
	}
}

func (t *Orchestrator) stale(current phase, evt kad.Event, id kad.QueryID) cstate.T {
	t.log.Printf("ignoring stale %T for %s while %s\n", evt, id, current)
	return current
}

func (t *Orchestrator) succeeded(providers []kad.Provider) cstate.T {
	if err := writestats(t.out, t.stats.Snapshot()); err != nil {
		return cstate.Failure(err)
	}

	if err := writeproviders(t.out, providers); err != nil {
		return cstate.Failure(err)
	}

	return cstate.Halt()
}

// failed reports statistics then fails with cause. a report that cannot be
// written is logged, the query failure remains the result.
func (t *Orchestrator) failed(cause error) cstate.T {
	if err := writestats(t.out, t.stats.Snapshot()); err != nil {
		return cstate.Warning(cstate.Failure(cause), err)
	}

	return cstate.Failure(cause)
}
