package buildfs

import (
	"encoding/binary"

	"lukechampine.com/uint128"
)

// rapidhash, a fast general-purpose 64-bit hash. Used for path keys,
// where collisions are tolerable and speed on short strings matters.

const rapidSeed uint64 = 0xbdd89aa982704029

var rapidSecret = [3]uint64{0x2d358dccaa6c78a5, 0x8bb84b93962eacc9, 0x4b33a62ed433d4a3}

// rapidMum is the 64x64 -> 128 bit multiply at the core of the mixer.
func rapidMum(a, b uint64) (lo, hi uint64) {
	r := uint128.From64(a).Mul(uint128.From64(b))
	return r.Lo, r.Hi
}

func rapidMix(a, b uint64) uint64 {
	lo, hi := rapidMum(a, b)
	return lo ^ hi
}

func rapidRead64(p []byte) uint64 {
	return binary.LittleEndian.Uint64(p)
}

func rapidRead32(p []byte) uint64 {
	return uint64(binary.LittleEndian.Uint32(p))
}

// rapidReadSmall combines 1 to 3 trailing bytes.
func rapidReadSmall(p []byte, k int) uint64 {
	return uint64(p[0])<<56 | uint64(p[k>>1])<<32 | uint64(p[k-1])
}

// RapidHash hashes key with the given seed.
func RapidHash(key []byte, seed uint64) uint64 {
	n := len(key)
	p := key
	seed ^= rapidMix(seed^rapidSecret[0], rapidSecret[1]) ^ uint64(n)
	var a, b uint64
	if n <= 16 {
		switch {
		case n >= 4:
			plast := p[n-4:]
			a = rapidRead32(p)<<32 | rapidRead32(plast)
			delta := (n & 24) >> (n >> 3)
			b = rapidRead32(p[delta:])<<32 | rapidRead32(p[n-4-delta:])
		case n > 0:
			a = rapidReadSmall(p, n)
		}
	} else {
		i := n
		if i > 48 {
			see1, see2 := seed, seed
			for i >= 96 {
				seed = rapidMix(rapidRead64(p)^rapidSecret[0], rapidRead64(p[8:])^seed)
				see1 = rapidMix(rapidRead64(p[16:])^rapidSecret[1], rapidRead64(p[24:])^see1)
				see2 = rapidMix(rapidRead64(p[32:])^rapidSecret[2], rapidRead64(p[40:])^see2)
				seed = rapidMix(rapidRead64(p[48:])^rapidSecret[0], rapidRead64(p[56:])^seed)
				see1 = rapidMix(rapidRead64(p[64:])^rapidSecret[1], rapidRead64(p[72:])^see1)
				see2 = rapidMix(rapidRead64(p[80:])^rapidSecret[2], rapidRead64(p[88:])^see2)
				p = p[96:]
				i -= 96
			}
			if i >= 48 {
				seed = rapidMix(rapidRead64(p)^rapidSecret[0], rapidRead64(p[8:])^seed)
				see1 = rapidMix(rapidRead64(p[16:])^rapidSecret[1], rapidRead64(p[24:])^see1)
				see2 = rapidMix(rapidRead64(p[32:])^rapidSecret[2], rapidRead64(p[40:])^see2)
				p = p[48:]
				i -= 48
			}
			seed ^= see1 ^ see2
		}
		if i > 16 {
			seed = rapidMix(rapidRead64(p)^rapidSecret[2], rapidRead64(p[8:])^seed^rapidSecret[1])
			if i > 32 {
				seed = rapidMix(rapidRead64(p[16:])^rapidSecret[2], rapidRead64(p[24:])^seed)
			}
		}
		a = rapidRead64(key[n-16:])
		b = rapidRead64(key[n-8:])
	}
	a ^= rapidSecret[1]
	b ^= seed
	a, b = rapidMum(a, b)
	return rapidMix(a^rapidSecret[0]^uint64(n), b^rapidSecret[1])
}
