package solver

import (
	"context"
	"fmt"

	"github.com/corvidworks/hive/internal/captcha/detection"
	"github.com/corvidworks/hive/internal/jobprocessor/actions"
	"github.com/corvidworks/hive/internal/models"
)

// ActionHandler adapts an Orchestrator plus a detection Registry into an
// actions.Handler for models.ActionSolveCaptcha, so the job processor's
// action loop can dispatch captcha solving without
// internal/jobprocessor/actions importing anything under internal/captcha.
func ActionHandler(detector *detection.Registry, orchestrator *Orchestrator, page detection.Page) actions.Handler {
	return func(ctx context.Context, action models.Action) (map[string]interface{}, error) {
		pageURL, _ := action.Parameters["pageUrl"].(string)

		detections, err := detector.Detect(ctx, pageURL, page)
		if err != nil {
			return nil, fmt.Errorf("captcha detection failed: %w", err)
		}

		var strongest models.DetectionResult
		found := false
		for _, d := range detections {
			if !detector.IsActionable(d) {
				continue
			}
			if !found || d.Confidence > strongest.Confidence {
				strongest = d
				found = true
			}
		}
		if !found {
			return map[string]interface{}{"detected": false}, nil
		}

		challengeType, ok := challengeTypeFor(strongest.SystemType, action.Parameters)
		if !ok {
			return nil, fmt.Errorf("no known challenge variant for detected system %q", strongest.SystemType)
		}

		result, err := orchestrator.Solve(ctx, models.Challenge{
			Type:          challengeType,
			PageURL:       pageURL,
			CorrelationID: fmt.Sprintf("%v", action.Parameters["correlationId"]),
		})
		if err != nil {
			return nil, err
		}

		return map[string]interface{}{
			"detected": true,
			"system":   string(strongest.SystemType),
			"token":    result.Token,
			"solverId": result.SolverID,
		}, nil
	}
}

// challengeTypeFor picks the default challenge variant for a bare detection,
// letting the caller override via action.Parameters["variant"] when a page
// is known to present a specific sub-flow (e.g. reCAPTCHA v3 vs v2).
func challengeTypeFor(system models.AntiBotSystem, params map[string]interface{}) (models.ChallengeType, bool) {
	if variant, ok := params["variant"].(string); ok {
		for _, ct := range allChallengeTypes {
			if ct.Tag == system && ct.Variant == variant {
				return ct, true
			}
		}
	}
	for _, ct := range allChallengeTypes {
		if ct.Tag == system {
			return ct, true
		}
	}
	return models.ChallengeType{}, false
}

var allChallengeTypes = []models.ChallengeType{
	models.ChallengeRecaptchaV2Checkbox,
	models.ChallengeRecaptchaV2Image,
	models.ChallengeRecaptchaV2Audio,
	models.ChallengeRecaptchaV2Invisible,
	models.ChallengeRecaptchaV3,
	models.ChallengeHCaptchaCheckbox,
	models.ChallengeHCaptchaInvisible,
	models.ChallengeHCaptchaAudio,
	models.ChallengeHCaptchaAccessibility,
	models.ChallengeTurnstile,
	models.ChallengeDataDomeSensor,
	models.ChallengeDataDomeCaptcha,
	models.ChallengeDataDomeSlider,
	models.ChallengeAkamaiLevel1,
	models.ChallengeAkamaiLevel2,
	models.ChallengeAkamaiLevel3,
}
