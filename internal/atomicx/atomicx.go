package atomicx

import (
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

func Uint64[T constraints.Integer](n T) (r *atomic.Uint64) {
	r = &atomic.Uint64{}
	r.Store(uint64(n))
	return r
}
