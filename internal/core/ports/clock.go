package ports

import "time"

// Clock abstracts time reads so tests can exercise expiry boundaries
// deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
