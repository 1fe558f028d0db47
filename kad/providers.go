package kad

import (
	"context"
	"slices"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/sync/errgroup"

	"github.com/james-lawrence/kadproviders/internal/errorsx"
)

const (
	// ErrNoCloserPeers the walk toward the key ended without any candidate peers.
	ErrNoCloserPeers = errorsx.String("no peers found close to the key")
	// ErrProvidersUnreachable none of the closest peers answered GET_PROVIDERS.
	ErrProvidersUnreachable = errorsx.String("no closest peer answered the provider request")
)

// providerconcurrency bounds the GET_PROVIDERS requests in flight per query.
const providerconcurrency = 10

// providers walks toward the key and asks every closest peer for the
// records stored under the raw key bytes. providers are merged by peer id in
// the order they are first seen.
func (t *Node) providers(ctx context.Context, key Key) (_ []Provider, err error) {
	closest, err := t.dht.GetClosestPeers(ctx, string(key))
	if err != nil {
		return nil, errorsx.Wrapf(err, "closest peer walk for %s", key)
	}

	if len(closest) == 0 {
		return nil, ErrNoCloserPeers
	}

	var (
		mu       sync.Mutex
		merged   providerset
		failures int
		last     error
		g        errgroup.Group
	)

	g.SetLimit(providerconcurrency)
	for _, p := range closest {
		g.Go(func() error {
			found, _, err := t.msgs.GetProviders(ctx, p, key.Multihash())

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if errorsx.Ignore(err, context.Canceled, context.DeadlineExceeded) != nil {
					t.log.Println("GET_PROVIDERS", p, "failed", err)
				}
				failures++
				last = err
				return nil
			}

			for _, info := range found {
				merged.add(*info)
			}

			return nil
		})
	}

	// requests never fail the group, errors are tallied above.
	errorsx.Log(g.Wait())

	if err = ctx.Err(); err != nil {
		return nil, errorsx.Wrapf(err, "provider lookup for %s", key)
	}

	if failures == len(closest) {
		return nil, errorsx.Wrapf(ErrProvidersUnreachable, "%d peers, last error %v", failures, last)
	}

	return merged.providers, nil
}

type providerset struct {
	index     map[peer.ID]int
	providers []Provider
}

func (t *providerset) add(info peer.AddrInfo) {
	if t.index == nil {
		t.index = make(map[peer.ID]int)
	}

	i, ok := t.index[info.ID]
	if !ok {
		t.index[info.ID] = len(t.providers)
		t.providers = append(t.providers, peer.AddrInfo{ID: info.ID, Addrs: slices.Clone(info.Addrs)})
		return
	}

	existing := &t.providers[i]
	for _, a := range info.Addrs {
		if !slices.ContainsFunc(existing.Addrs, a.Equal) {
			existing.Addrs = append(existing.Addrs, a)
		}
	}
}
