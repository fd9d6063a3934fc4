package derivation

import "time"

// SetClock replaces the engine's clock.
func SetClock(e *Engine, now func() time.Time) {
	e.now = now
}
