package kad

import (
	"crypto/rand"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multihash"

	"github.com/james-lawrence/kadproviders/internal/errorsx"
)

// RandomPeerID generates a target for routing table prepopulation.
func RandomPeerID() (peer.ID, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", errorsx.Wrap(err, "error generating peer id")
	}

	digest, err := multihash.Sum(buf[:], multihash.SHA2_256, -1)
	if err != nil {
		return "", errorsx.Wrap(err, "error hashing peer id")
	}

	return peer.IDFromBytes(digest)
}
