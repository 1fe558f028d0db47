package kad

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/james-lawrence/kadproviders/internal/errorsx"
)

// Key of a provider record.
type Key []byte

// ParseKey decodes a hex encoded key or a CID.
func ParseKey(s string) (k Key, err error) {
	if err = k.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}

	return k, nil
}

func (t Key) Equal(o Key) bool {
	return bytes.Equal(t, o)
}

func (t Key) String() string {
	return hex.EncodeToString(t)
}

func (t Key) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts hex, with an optional 0x prefix, or a CID whose
// multihash is used as the key.
func (t *Key) UnmarshalText(b []byte) error {
	raw := strings.TrimSpace(string(b))
	s := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if s == "" {
		return errorsx.New("empty key")
	}

	decoded, err := hex.DecodeString(s)
	if err == nil {
		*t = decoded
		return nil
	}

	c, cerr := cid.Decode(raw)
	if cerr != nil {
		return errorsx.Wrap(err, "invalid hex key")
	}

	*t = Key(c.Hash())
	return nil
}

// Multihash view of the raw key bytes. the bytes are not validated, provider
// records are stored under whatever bytes the provider announced.
func (t Key) Multihash() multihash.Multihash {
	return multihash.Multihash(t)
}
