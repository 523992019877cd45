package replay

import "exit-strategy-lab/internal/domain"

// BarEngine consumes bars of a Window in order.
type BarEngine interface {
	// OnBar is called for each bar in ascending timestamp order.
	// offset is the bar's position inside the window, 0 for the first bar.
	// Returning true stops the replay after this bar.
	OnBar(offset int, bar domain.Bar) (stop bool)
}

// BarEngineFunc adapts a function to BarEngine.
type BarEngineFunc func(offset int, bar domain.Bar) bool

// OnBar calls f.
func (f BarEngineFunc) OnBar(offset int, bar domain.Bar) bool {
	return f(offset, bar)
}
