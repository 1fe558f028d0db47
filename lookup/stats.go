package lookup

import (
	"time"

	"github.com/benbjohnson/immutable"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/james-lawrence/kadproviders/internal/fnvx"
)

type peerhasher struct{}

func (peerhasher) Hash(p peer.ID) uint32 {
	return fnvx.Uint32(p)
}

func (peerhasher) Equal(a, b peer.ID) bool {
	return a == b
}

// PeerSet is an insertion only set of peers.
type PeerSet struct {
	s immutable.Set[peer.ID]
}

func NewPeerSet() PeerSet {
	return PeerSet{s: immutable.NewSet[peer.ID](peerhasher{})}
}

// Insert p, reports if the peer was not already present.
func (t *PeerSet) Insert(p peer.ID) bool {
	if t.s.Has(p) {
		return false
	}

	t.s = t.s.Add(p)
	return true
}

func (t PeerSet) Has(p peer.ID) bool {
	return t.s.Has(p)
}

func (t PeerSet) Len() int {
	return t.s.Len()
}

func (t PeerSet) Items() []peer.ID {
	return t.s.Items()
}

// Stats accumulates what a run observed.
type Stats struct {
	started    time.Time
	now        func() time.Time
	discovered PeerSet
	contacted  PeerSet
}

// NewStats captures the run clock.
func NewStats(now func() time.Time) *Stats {
	return &Stats{
		started:    now(),
		now:        now,
		discovered: NewPeerSet(),
		contacted:  NewPeerSet(),
	}
}

// Discovered records peers seen in a routing table update.
func (t *Stats) Discovered(peers ...peer.ID) {
	for _, p := range peers {
		t.discovered.Insert(p)
	}
}

// Contacted records a peer a connection was established with.
func (t *Stats) Contacted(p peer.ID) {
	t.contacted.Insert(p)
}

func (t *Stats) Snapshot() Snapshot {
	return Snapshot{
		Discovered: t.discovered.Len(),
		Contacted:  t.contacted.Len(),
		Elapsed:    t.now().Sub(t.started),
	}
}

type Snapshot struct {
	Discovered int
	Contacted  int
	Elapsed    time.Duration
}

// Seconds elapsed, truncated.
func (t Snapshot) Seconds() int64 {
	return int64(t.Elapsed / time.Second)
}
