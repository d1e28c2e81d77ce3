package coordinator

// goldenGamma is the 64-bit golden ratio increment used by splitmix-style
// sequence splitting.
const goldenGamma = 0x9e3779b97f4a7c15

// DeriveSeed maps (master seed, stratum id) to the stratum's generator seed
// with a splitmix64 finalizer. The derivation depends only on its inputs, so
// partitions reproduce bit-identically no matter which worker runs them or
// how many workers exist.
func DeriveSeed(master uint64, stratumID int) uint64 {
	x := master + goldenGamma*(uint64(stratumID)+1)
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
