package solver

import (
	"time"

	"github.com/corvidworks/hive/internal/models"
)

// perChallengeTimeout is the per-attempt timeout table spec section 4.8
// names verbatim.
var perChallengeTimeout = map[models.ChallengeType]time.Duration{
	models.ChallengeRecaptchaV2Checkbox:  30 * time.Second,
	models.ChallengeRecaptchaV2Image:     60 * time.Second,
	models.ChallengeRecaptchaV2Audio:     60 * time.Second,
	models.ChallengeRecaptchaV2Invisible: 30 * time.Second,
	models.ChallengeRecaptchaV3:          10 * time.Second,
	models.ChallengeHCaptchaCheckbox:     30 * time.Second,
	models.ChallengeHCaptchaInvisible:    30 * time.Second,
	models.ChallengeHCaptchaAudio:        30 * time.Second,
	models.ChallengeHCaptchaAccessibility: 30 * time.Second,
	models.ChallengeTurnstile:            30 * time.Second,
	models.ChallengeDataDomeSensor:       30 * time.Second,
	models.ChallengeDataDomeCaptcha:      60 * time.Second,
	models.ChallengeDataDomeSlider:       30 * time.Second,
	models.ChallengeAkamaiLevel1:         2 * time.Second,
	models.ChallengeAkamaiLevel2:         5 * time.Second,
	models.ChallengeAkamaiLevel3:         10 * time.Second,
}

// TimeoutFor returns the configured per-attempt timeout for challengeType,
// defaulting to 30s for anything not in the table.
func TimeoutFor(challengeType models.ChallengeType) time.Duration {
	if d, ok := perChallengeTimeout[challengeType]; ok {
		return d
	}
	return 30 * time.Second
}
