package transpile

import (
	"crypto/sha1"
	"fmt"
)

// Namer hands out names for anonymous functions. A name combines a per-run
// counter with a hash of the function's source, so the same input always
// translates to the same output and two functions never collide.
type Namer struct {
	n int
}

// Name returns the next synthetic name for the function whose source is span.
func (nm *Namer) Name(span string) string {
	nm.n++
	sum := sha1.Sum([]byte(span))
	return fmt.Sprintf("fn_%x_%d", sum[:3], nm.n)
}
