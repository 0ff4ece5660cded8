package exam

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"time"
)

// Shuffle returns a Fisher-Yates permutation p of [0..n-1] with
// p[displayPosition] = canonicalIndex. n==0 yields an empty permutation,
// n==1 yields [0].
func Shuffle(rng *rand.Rand, n int) []int {
	if n <= 0 {
		return []int{}
	}
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}

// newRand seeds a private RNG from crypto/rand so concurrent compositions
// never share generator state.
func newRand() *rand.Rand {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(b[:]))))
}
