package feature

import (
	"crypto/md5" //nolint:gosec // bucketing only, not a security boundary
	"encoding/binary"
	"math"
)

const bucketCount = 100

// Bucket maps a targeting key and flag key to a stable integer in [0, 100).
func Bucket(targetingKey, flagKey string) int {
	sum := md5.Sum([]byte(targetingKey + flagKey)) //nolint:gosec
	low := binary.BigEndian.Uint64(sum[8:]) & math.MaxInt64
	return int(low % bucketCount)
}

// rolloutBucket is salted so the rollout split is independent of allocations.
func rolloutBucket(targetingKey, flagKey string) int {
	return Bucket(targetingKey, flagKey+":rollout")
}

// pickAllocation walks allocations in declared order and returns the first
// whose cumulative boundary exceeds bucket. The bool is false when the bucket
// falls beyond the last boundary.
func pickAllocation(allocs []Allocation, bucket int) (Allocation, bool) {
	cumulative := 0
	for _, a := range allocs {
		cumulative += a.Percentage
		if bucket < cumulative {
			return a, true
		}
	}
	return Allocation{}, false
}
