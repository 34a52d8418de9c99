// Package actions implements the per-action handlers the job processor
// dispatches to for each step of an AutomationJob (spec section 4.4 step 6).
package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/corvidworks/hive/internal/models"
)

// Handler executes one action against the job's shared page and returns its
// outcome. Implementations MUST NOT panic; the job processor's finally block
// is unconditional but a handler-level error is cheaper to classify.
type Handler func(ctx context.Context, action models.Action) (map[string]interface{}, error)

// Registry maps an ActionType to its Handler.
type Registry struct {
	handlers map[models.ActionType]Handler
}

// NewRegistry builds a Registry with every built-in action wired in.
func NewRegistry(page PageDriver) *Registry {
	r := &Registry{handlers: make(map[models.ActionType]Handler)}
	r.handlers[models.ActionNavigate] = navigateHandler(page)
	r.handlers[models.ActionClick] = clickHandler(page)
	r.handlers[models.ActionFill] = fillHandler(page)
	r.handlers[models.ActionScreenshot] = screenshotHandler(page)
	r.handlers[models.ActionEvaluate] = evaluateHandler(page)
	r.handlers[models.ActionWait] = waitHandler(page)
	r.handlers[models.ActionExtract] = extractHandler(page)
	r.handlers[models.ActionSummarizePdf] = summarizePdfHandler()
	return r
}

// Register adds or overrides a handler, used to wire solveCaptcha in from
// internal/captcha/solver without actions depending on that package.
func (r *Registry) Register(actionType models.ActionType, h Handler) {
	r.handlers[actionType] = h
}

// Execute runs action and wraps its outcome into an ActionResult (spec
// section 4.4 step 6).
func (r *Registry) Execute(ctx context.Context, action models.Action) models.ActionResult {
	start := time.Now()
	h, ok := r.handlers[action.Type]
	if !ok {
		return models.ActionResult{
			Type:      action.Type,
			Success:   false,
			Error:     fmt.Sprintf("no handler registered for action %q", action.Type),
			StartedAt: start,
			Duration:  time.Since(start),
		}
	}

	data, err := h(ctx, action)
	result := models.ActionResult{
		Type:      action.Type,
		Data:      data,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}
