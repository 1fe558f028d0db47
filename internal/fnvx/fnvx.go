// Package fnvx hashes identifiers for hash array mapped containers.
package fnvx

import (
	"hash/fnv"
)

func Uint32[T ~[]byte | ~string](s T) uint32 {
	g := fnv.New32a()
	g.Write([]byte(s))
	return g.Sum32()
}
