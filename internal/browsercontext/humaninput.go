package browsercontext

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// MotionProfile bounds the randomization used by human-like mouse and
// keyboard input (spec section 4.3).
type MotionProfile struct {
	JitterPx     float64 // 1-3px
	MinSteps     int
	MaxSteps     int
	MinStepDelay time.Duration
	MaxStepDelay time.Duration
	KeyPressMean time.Duration
	InterKeyMean time.Duration
	ThinkPauseP  float64 // probability of a longer pause between keystrokes
}

// DefaultMotionProfile matches the ranges named in spec section 4.3.
func DefaultMotionProfile() MotionProfile {
	return MotionProfile{
		JitterPx:     2,
		MinSteps:     15,
		MaxSteps:     40,
		MinStepDelay: 5 * time.Millisecond,
		MaxStepDelay: 25 * time.Millisecond,
		KeyPressMean: 80 * time.Millisecond,
		InterKeyMean: 120 * time.Millisecond,
		ThinkPauseP:  0.05,
	}
}

// MoveMouseHumanLike moves the mouse from its last known position to (x, y)
// along a quadratic Bezier curve with jitter, a randomized step count, and a
// randomized inter-step delay (spec section 4.3).
func MoveMouseHumanLike(ctx context.Context, fromX, fromY, x, y float64, profile MotionProfile) error {
	steps := profile.MinSteps + rand.Intn(profile.MaxSteps-profile.MinSteps+1)

	ctrlX := (fromX+x)/2 + (rand.Float64()-0.5)*40
	ctrlY := (fromY+y)/2 + (rand.Float64()-0.5)*40

	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		px, py := quadraticBezier(fromX, fromY, ctrlX, ctrlY, x, y, t)
		px += (rand.Float64()*2 - 1) * profile.JitterPx
		py += (rand.Float64()*2 - 1) * profile.JitterPx

		if err := chromedp.Run(ctx, chromedp.MouseEvent(input.MouseMoved, px, py)); err != nil {
			return err
		}

		delayRange := profile.MaxStepDelay - profile.MinStepDelay
		delay := profile.MinStepDelay
		if delayRange > 0 {
			delay += time.Duration(rand.Int63n(int64(delayRange)))
		}
		time.Sleep(delay)
	}
	return nil
}

func quadraticBezier(x0, y0, cx, cy, x1, y1, t float64) (float64, float64) {
	u := 1 - t
	px := u*u*x0 + 2*u*t*cx + t*t*x1
	py := u*u*y0 + 2*u*t*cy + t*t*y1
	return px, py
}

// ClickHumanLike moves to (x, y) with MoveMouseHumanLike then issues a
// pressed/released mouse click pair.
func ClickHumanLike(ctx context.Context, fromX, fromY, x, y float64, profile MotionProfile) error {
	if err := MoveMouseHumanLike(ctx, fromX, fromY, x, y, profile); err != nil {
		return err
	}
	return chromedp.Run(ctx,
		chromedp.MouseEvent(input.MousePressed, x, y, chromedp.Button("left")),
		chromedp.MouseEvent(input.MouseReleased, x, y, chromedp.Button("left")),
	)
}

// TypeHumanLike sends text one key at a time with a normal-distribution
// delay around keyPressMean/interKeyMean and an occasional longer
// thinking pause (spec section 4.3).
func TypeHumanLike(ctx context.Context, text string, profile MotionProfile) error {
	for _, r := range text {
		if err := chromedp.Run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return err
		}

		delay := normalDuration(profile.InterKeyMean, profile.InterKeyMean/4)
		if rand.Float64() < profile.ThinkPauseP {
			delay += normalDuration(profile.KeyPressMean*4, profile.KeyPressMean)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return nil
}

// normalDuration samples a normally-distributed duration clamped to >= 0.
func normalDuration(mean, stddev time.Duration) time.Duration {
	sample := rand.NormFloat64()*float64(stddev) + float64(mean)
	if sample < 0 {
		sample = 0
	}
	return time.Duration(math.Round(sample))
}
