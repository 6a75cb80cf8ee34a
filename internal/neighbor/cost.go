package neighbor

import "math"

// InfiniteCost is the sentinel cost for a DOWN or admin-inactive link
// (spec.md §4.3's OSPF cost rule).
const InfiniteCost uint32 = math.MaxUint32

// Cost implements spec.md §4.3's shared OSPF cost rule:
// cost = max(1, 100_000_000 / (capacity_mbps * 1_000_000)).
func Cost(capacityMbps uint32) uint32 {
	if capacityMbps == 0 {
		return InfiniteCost
	}
	c := uint64(100_000_000) / (uint64(capacityMbps) * 1_000_000)
	if c < 1 {
		c = 1
	}
	if c > uint64(InfiniteCost) {
		return InfiniteCost
	}
	return uint32(c)
}
