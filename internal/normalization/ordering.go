package normalization

import (
	"sort"

	"exit-strategy-lab/internal/domain"
)

// SortBars orders bars by timestamp ASC.
// The sort is stable so equal timestamps keep input order.
func SortBars(bars []domain.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return compareBars(bars[i], bars[j]) < 0
	})
}

// compareBars returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareBars(a, b domain.Bar) int {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	return 0
}
