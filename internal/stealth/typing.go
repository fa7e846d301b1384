package stealth

import (
	"fmt"
	"time"
)

// Typer is the part of an element TypeText needs.
type Typer interface {
	Input(text string, timeout time.Duration) error
	Type(text string) error
}

// TypeText fills el with text. With a zero speed the text is filled in one
// step; otherwise it is typed a character at a time with human-like gaps.
func TypeText(p *Pacer, el Typer, text string, speed, timeout time.Duration) error {
	if speed <= 0 {
		return el.Input(text, timeout)
	}

	// clear whatever is there, then type
	if err := el.Input("", timeout); err != nil {
		return fmt.Errorf("failed to clear field: %w", err)
	}

	for i, char := range text {
		if err := el.Type(string(char)); err != nil {
			return fmt.Errorf("failed to type character %d: %w", i, err)
		}
		p.Pause(calculateKeystrokeDelay(i, speed))
	}
	return nil
}

// calculateKeystrokeDelay calculates realistic delay between keystrokes
func calculateKeystrokeDelay(position int, base time.Duration) time.Duration {
	// Slower at the beginning
	if position < 5 {
		base = base * 4 / 3
	}

	// Occasional longer pauses (thinking mid-sentence)
	if float64n() < 0.1 {
		return RandomDelay(2*base, 5*base)
	}

	// ±40%
	return Jitter(base, 40)
}
