package native

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/corvidworks/hive/internal/browsercontext"
)

// Fingerprint is the per-session synthetic browser fingerprint Akamai's
// sensor script collects (spec section 4.8). It is generated once per
// challenge correlation ID and reused across that session's sensor posts.
type Fingerprint struct {
	ScreenWidth   int
	ScreenHeight  int
	Timezone      string
	Plugins       []string
	WebGLRenderer string
	CanvasHash    string
	HardwareConcurrency int
}

var commonScreens = [][2]int{{1920, 1080}, {1366, 768}, {1440, 900}, {1536, 864}}
var commonTimezones = []string{"America/New_York", "America/Chicago", "America/Los_Angeles", "Europe/London"}
var commonRenderers = []string{
	"ANGLE (Intel, Intel(R) UHD Graphics 620 Direct3D11 vs_5_0 ps_5_0)",
	"ANGLE (NVIDIA, NVIDIA GeForce GTX 1050 Direct3D11 vs_5_0 ps_5_0)",
	"ANGLE (AMD, AMD Radeon RX 580 Direct3D11 vs_5_0 ps_5_0)",
}

// NewFingerprint draws a plausible, internally-consistent fingerprint from
// the same pools real devices draw from, so repeated generation doesn't
// cluster on one obviously-synthetic profile.
func NewFingerprint() Fingerprint {
	screen := commonScreens[randIndex(len(commonScreens))]
	fp := Fingerprint{
		ScreenWidth:         screen[0],
		ScreenHeight:        screen[1],
		Timezone:            commonTimezones[randIndex(len(commonTimezones))],
		Plugins:             []string{"PDF Viewer", "Chrome PDF Viewer", "Native Client"},
		WebGLRenderer:       commonRenderers[randIndex(len(commonRenderers))],
		HardwareConcurrency: 4 + 2*randIndex(4),
	}
	fp.CanvasHash = canvasHash(fp)
	return fp
}

func randIndex(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func canvasHash(fp Fingerprint) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%dx%d|%s|%s", fp.ScreenWidth, fp.ScreenHeight, fp.Timezone, fp.WebGLRenderer)))
	return hex.EncodeToString(sum[:])[:16]
}

// SensorData is the payload Akamai's sensor endpoint expects: the
// fingerprint plus a behavioral summary derived from synthetic mouse/scroll/
// keystroke trajectories.
type SensorData struct {
	Fingerprint   Fingerprint `json:"fingerprint"`
	SensorVersion string      `json:"sensorVersion"`
	Timestamp     int64       `json:"timestamp"`
	MouseEvents   int         `json:"mouseEvents"`
	ScrollEvents  int         `json:"scrollEvents"`
	KeyEvents     int         `json:"keyEvents"`
}

const sensorVersion = "4.2.0"

// BuildSensorData assembles the sensor payload for one session's fingerprint,
// sizing the synthetic event counts from the motion profile's step bounds so
// the payload resembles a real interaction trace.
func BuildSensorData(fp Fingerprint, motion browsercontext.MotionProfile) SensorData {
	return SensorData{
		Fingerprint:   fp,
		SensorVersion: sensorVersion,
		Timestamp:     nowUnixMilli(),
		MouseEvents:   motion.MinSteps + randIndex(motion.MaxSteps-motion.MinSteps+1),
		ScrollEvents:  2 + randIndex(4),
		KeyEvents:     0,
	}
}

func nowUnixMilli() int64 { return time.Now().UnixMilli() }

// SignSensorPayload HMAC-SHA256-signs {payload, sensorVersion, timestamp}
// exactly as spec section 4.8 names, returning the hex-encoded signature.
func SignSensorPayload(sensor SensorData, key []byte) string {
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s|%d", sensor.SensorVersion, sensor.Timestamp)
	payload, _ := json.Marshal(sensor)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SensorResult is the outcome of posting signed sensor data.
type SensorResult struct {
	AbckCookie string
}

// PostSensorData posts the signed sensor payload to pageURL itself and
// extracts the resulting _abck cookie from the response.
func PostSensorData(ctx context.Context, pageURL string, sensor SensorData, signature string) (SensorResult, error) {
	payload, err := json.Marshal(struct {
		Sensor    SensorData `json:"sensor"`
		Signature string     `json:"signature"`
	}{sensor, signature})
	if err != nil {
		return SensorResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pageURL, bytes.NewReader(payload))
	if err != nil {
		return SensorResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return SensorResult{}, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	for _, c := range resp.Cookies() {
		if c.Name == "_abck" {
			return SensorResult{AbckCookie: c.Value}, nil
		}
	}
	return SensorResult{}, fmt.Errorf("sensor response had no _abck cookie")
}

// AbckCookieLooksSolved applies spec 4.8's success heuristic: a valid _abck
// cookie issued after sensor acceptance is longer than 50 bytes.
func AbckCookieLooksSolved(cookie string) bool {
	return len(cookie) > 50
}
