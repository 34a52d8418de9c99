package browsercontext

import (
	"fmt"
	"math/rand"
	"strings"
)

// buildStealthScript assembles the combined init script injected into every
// page of the context (spec section 4.3). Each override is independently
// guarded so a future per-flag toggle can disable pieces; all default on.
// Grounded on the teacher's InjectStealthScript
// (internal/services/crawler/hybrid_scraper.go), extended with the canvas,
// WebGL, AudioContext, battery, and hardwareConcurrency overrides the spec
// adds beyond the teacher's webdriver/plugins/languages set.
func buildStealthScript(opts Options) string {
	hwMin, hwMax := opts.HardwareMin, opts.HardwareMax
	if hwMin <= 0 {
		hwMin = 2
	}
	if hwMax < hwMin {
		hwMax = 8
	}
	hardwareConcurrency := hwMin + rand.Intn(hwMax-hwMin+1)

	locale := opts.Locale
	if locale == "" {
		locale = "en-US"
	}
	lang := strings.SplitN(locale, "-", 2)[0]

	var b strings.Builder

	b.WriteString(`
(function() {
	// navigator.webdriver -> false
	Object.defineProperty(navigator, 'webdriver', { get: () => false, configurable: true });

	// canvas fingerprint noise: +-1 on each pixel's red channel
	const origGetImageData = CanvasRenderingContext2D.prototype.getImageData;
	CanvasRenderingContext2D.prototype.getImageData = function(...args) {
		const imageData = origGetImageData.apply(this, args);
		for (let i = 0; i < imageData.data.length; i += 4) {
			const noise = Math.floor(Math.random() * 3) - 1;
			imageData.data[i] = Math.min(255, Math.max(0, imageData.data[i] + noise));
		}
		return imageData;
	};

	// WebGL vendor/renderer pinned to a fixed pair
	const origGetParameter = WebGLRenderingContext.prototype.getParameter;
	WebGLRenderingContext.prototype.getParameter = function(parameter) {
		if (parameter === 37445) return 'Intel Inc.';
		if (parameter === 37446) return 'Intel Iris OpenGL Engine';
		return origGetParameter.call(this, parameter);
	};

	// AudioContext oscillator jitter <= 0.0001s
	const origStart = AudioContext.prototype.createOscillator;
	AudioContext.prototype.createOscillator = function(...args) {
		const osc = origStart.apply(this, args);
		const origOscStart = osc.start.bind(osc);
		osc.start = function(when) {
			const jitter = (Math.random() - 0.5) * 0.0001;
			return origOscStart((when || 0) + jitter);
		};
		return osc;
	};

	// navigator.getBattery stable mock
	if (navigator.getBattery) {
		navigator.getBattery = () => Promise.resolve({
			charging: true, chargingTime: 0, dischargingTime: Infinity, level: 1,
			addEventListener: () => {}, removeEventListener: () => {},
		});
	}
`)

	fmt.Fprintf(&b, `
	// hardwareConcurrency randomized once per context
	Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d, configurable: true });
`, hardwareConcurrency)

	b.WriteString(`
	// navigator.plugins: realistic static plugin list
	Object.defineProperty(navigator, 'plugins', {
		get: () => {
			const plugins = [
				{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
				{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
				{ name: 'Native Client', filename: 'internal-nacl-plugin' },
			];
			plugins.length = 3;
			return plugins;
		},
		configurable: true,
	});
`)

	fmt.Fprintf(&b, `
	// navigator.languages/language aligned with locale
	Object.defineProperty(navigator, 'languages', { get: () => ['%s', '%s'], configurable: true });
	Object.defineProperty(navigator, 'language', { get: () => '%s', configurable: true });
`, locale, lang, locale)

	if opts.TimezoneID != "" {
		fmt.Fprintf(&b, `
	// Intl.DateTimeFormat timezone pinned to timezoneId
	const origResolvedOptions = Intl.DateTimeFormat.prototype.resolvedOptions;
	Intl.DateTimeFormat.prototype.resolvedOptions = function(...args) {
		const options = origResolvedOptions.apply(this, args);
		options.timeZone = '%s';
		return options;
	};
`, opts.TimezoneID)
	}

	b.WriteString("})();\n")
	return b.String()
}
