package browsercontext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestBuildStealthScriptIncludesAllOverrides(t *testing.T) {
	script := buildStealthScript(Options{
		Locale:      "fr-FR",
		TimezoneID:  "Europe/Paris",
		HardwareMin: 4,
		HardwareMax: 4,
	})

	for _, want := range []string{
		"navigator.webdriver",
		"getImageData",
		"WebGLRenderingContext.prototype.getParameter",
		"createOscillator",
		"getBattery",
		"hardwareConcurrency",
		"navigator.plugins",
		"navigator.languages",
		"fr-FR",
		"Europe/Paris",
	} {
		require.Contains(t, script, want)
	}
}

func TestBuildStealthScriptHardwareConcurrencyWithinRange(t *testing.T) {
	script := buildStealthScript(Options{HardwareMin: 2, HardwareMax: 2})
	require.True(t, strings.Contains(script, "get: () => 2,"))
}

func TestCheckPlatformConsistencyWarnsOnMismatch(t *testing.T) {
	logger := arbor.NewLogger()
	// Exercise both branches; neither should panic regardless of outcome.
	checkPlatformConsistency(Options{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", Platform: "MacIntel"}, logger)
	checkPlatformConsistency(Options{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", Platform: "Win32"}, logger)
	checkPlatformConsistency(Options{}, logger)
}

func TestQuadraticBezierEndpointsMatchControlPoints(t *testing.T) {
	x0, y0 := quadraticBezier(0, 0, 50, 50, 100, 100, 0)
	require.Equal(t, 0.0, x0)
	require.Equal(t, 0.0, y0)

	x1, y1 := quadraticBezier(0, 0, 50, 50, 100, 100, 1)
	require.Equal(t, 100.0, x1)
	require.Equal(t, 100.0, y1)
}

func TestNormalDurationNeverNegative(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := normalDuration(0, 1000000)
		require.GreaterOrEqual(t, int64(d), int64(0))
	}
}
