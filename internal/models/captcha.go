package models

import "time"

// AntiBotSystem is the vendor product a detection strategy identifies.
type AntiBotSystem string

const (
	SystemRecaptcha  AntiBotSystem = "recaptcha"
	SystemHCaptcha   AntiBotSystem = "hcaptcha"
	SystemTurnstile  AntiBotSystem = "turnstile"
	SystemDataDome   AntiBotSystem = "datadome"
	SystemAkamai     AntiBotSystem = "akamai"
	SystemFunCaptcha AntiBotSystem = "funcaptcha"
)

// ChallengeType is a discriminated union over the specific challenge a solver
// must produce a token for, replacing the source's loosely-typed driver options
// (spec section 9 design note).
type ChallengeType struct {
	Tag     AntiBotSystem `json:"tag"`
	Variant string        `json:"variant,omitempty"` // e.g. "v2"|"v3" for recaptcha, "checkbox"|"image"|"audio"|"invisible"
}

// Well-known challenge types used by the per-challenge-type timeout table (spec 4.8).
var (
	ChallengeRecaptchaV2Checkbox = ChallengeType{Tag: SystemRecaptcha, Variant: "v2-checkbox"}
	ChallengeRecaptchaV2Image    = ChallengeType{Tag: SystemRecaptcha, Variant: "v2-image"}
	ChallengeRecaptchaV2Audio    = ChallengeType{Tag: SystemRecaptcha, Variant: "v2-audio"}
	ChallengeRecaptchaV2Invisible = ChallengeType{Tag: SystemRecaptcha, Variant: "v2-invisible"}
	ChallengeRecaptchaV3         = ChallengeType{Tag: SystemRecaptcha, Variant: "v3"}
	ChallengeHCaptchaCheckbox    = ChallengeType{Tag: SystemHCaptcha, Variant: "checkbox"}
	ChallengeHCaptchaInvisible   = ChallengeType{Tag: SystemHCaptcha, Variant: "invisible"}
	ChallengeHCaptchaAudio       = ChallengeType{Tag: SystemHCaptcha, Variant: "audio"}
	ChallengeHCaptchaAccessibility = ChallengeType{Tag: SystemHCaptcha, Variant: "accessibility"}
	ChallengeTurnstile           = ChallengeType{Tag: SystemTurnstile}
	ChallengeDataDomeSensor      = ChallengeType{Tag: SystemDataDome, Variant: "sensor"}
	ChallengeDataDomeCaptcha     = ChallengeType{Tag: SystemDataDome, Variant: "captcha"}
	ChallengeDataDomeSlider      = ChallengeType{Tag: SystemDataDome, Variant: "slider"}
	ChallengeAkamaiLevel1        = ChallengeType{Tag: SystemAkamai, Variant: "level1"}
	ChallengeAkamaiLevel2        = ChallengeType{Tag: SystemAkamai, Variant: "level2"}
	ChallengeAkamaiLevel3        = ChallengeType{Tag: SystemAkamai, Variant: "level3"}
)

// DetectionSignal is one piece of corroborating evidence found by a detection strategy.
type DetectionSignal struct {
	Kind   string  `json:"kind"` // "iframe" | "selector" | "cookie" | "global"
	Value  string  `json:"value"`
	Weight float64 `json:"weight"`
}

// DetectionResult is a single strategy's verdict (spec section 4.5).
type DetectionResult struct {
	SystemType AntiBotSystem     `json:"systemType"`
	Confidence float64           `json:"confidence"`
	Signals    []DetectionSignal `json:"signals,omitempty"`
}

// Challenge is a detected anti-bot challenge ready for solver dispatch.
type Challenge struct {
	Type          ChallengeType `json:"type"`
	PageURL       string        `json:"pageUrl"`
	Confidence    float64       `json:"confidence"`
	SiteKey       string        `json:"siteKey,omitempty"`
	CorrelationID string        `json:"correlationId"`
}

// SolveResult is what a solver returns on success (spec section 4.8).
type SolveResult struct {
	Token    string    `json:"token"`
	SolvedAt time.Time `json:"solvedAt"`
	SolverID string    `json:"solverId"`
}

// CircuitState is the breaker's state machine value (spec section 3).
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CapabilityMetrics are the rolling performance counters tracked per solver.
type CapabilityMetrics struct {
	AverageResponseTime time.Duration `json:"averageResponseTime"`
	RollingSuccessRate  float64       `json:"rollingSuccessRate"`
	MaxConcurrency      int           `json:"maxConcurrency"`
	InFlight            int           `json:"inFlight"`
}

// SolverDescriptor is a registry entry (spec section 3).
type SolverDescriptor struct {
	Name                   string          `json:"name"`
	SupportedChallengeTypes []AntiBotSystem `json:"supportedChallengeTypes"`
	Priority               int             `json:"priority"`
	Enabled                bool            `json:"enabled"`
	Capability             CapabilityMetrics `json:"capability"`
}

// TranscriptionCacheEntry is keyed externally by sha256(audioBytes) (spec section 3).
type TranscriptionCacheEntry struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Provider   string    `json:"provider"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// DetectionCacheEntry memoizes a page's detection verdicts by URL fingerprint (spec 4.5).
type DetectionCacheEntry struct {
	Results   []DetectionResult `json:"results"`
	ExpiresAt time.Time         `json:"expiresAt"`
}
