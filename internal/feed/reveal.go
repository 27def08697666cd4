package feed

import (
	"iter"
	"time"
)

// DefaultRevealRate is the reveal speed in runes per second.
const DefaultRevealRate = 50.0

// Frame is one reveal step: the visible prefix and when it should appear,
// relative to the start of the reveal.
type Frame struct {
	Text   string
	Offset time.Duration
}

// Reveal returns the frames that type text out at rate runes per second,
// one frame per rune. The sequence is lazy and can be ranged over any
// number of times. A rate <= 0 yields the full text at offset zero. Empty
// text yields nothing.
func Reveal(text string, rate float64) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		if text == "" {
			return
		}
		if rate <= 0 {
			yield(Frame{Text: text})
			return
		}
		n := 0
		for i := range text {
			if i == 0 {
				continue
			}
			n++
			if !yield(Frame{Text: text[:i], Offset: offset(n-1, rate)}) {
				return
			}
		}
		yield(Frame{Text: text, Offset: offset(n, rate)})
	}
}

func offset(i int, rate float64) time.Duration {
	return time.Duration(float64(i) * float64(time.Second) / rate)
}

// Duration returns how long revealing text takes at rate.
func Duration(text string, rate float64) time.Duration {
	var last time.Duration
	for f := range Reveal(text, rate) {
		last = f.Offset
	}
	return last
}
