package replay

import (
	"fmt"

	"exit-strategy-lab/internal/domain"
)

// CheckOrdering verifies bars are strictly increasing by timestamp.
// A replayed trade is only reproducible over such a series.
func CheckOrdering(bars []domain.Bar) error {
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp <= bars[i-1].Timestamp {
			return fmt.Errorf("%w: ts %d at %d follows ts %d",
				ErrInvalidOrdering, bars[i].Timestamp, i, bars[i-1].Timestamp)
		}
	}
	return nil
}
