// Package external adapts third-party HTTP captcha-solving services
// (2Captcha, Anti-Captcha style task-submit/poll APIs) behind the
// solver.Solver interface, so the orchestrator can fall back to a paid
// service when every native solver's candidates are exhausted.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/corvidworks/hive/internal/models"
)

// keyRotator round-robins a pool of API keys so a single rate-limited key
// doesn't become a hard dependency.
type keyRotator struct {
	keys []string
	next uint32
}

func newKeyRotator(keys []string) *keyRotator { return &keyRotator{keys: keys} }

func (r *keyRotator) take() (string, error) {
	if len(r.keys) == 0 {
		return "", fmt.Errorf("no api keys configured")
	}
	idx := atomic.AddUint32(&r.next, 1) - 1
	return r.keys[idx%uint32(len(r.keys))], nil
}

// TaskSubmitPollSolver implements the submit-task/poll-for-result pattern
// 2Captcha and Anti-Captcha both use: POST a task, then POST to a result
// endpoint until the vendor reports it solved.
type TaskSubmitPollSolver struct {
	name          string
	systems       []models.AntiBotSystem
	submitURL     string
	resultURL     string
	buildTask     func(challenge models.Challenge) map[string]interface{}
	pollInterval  time.Duration
	pollTimeout   time.Duration
	httpClient    *http.Client
	keys          *keyRotator
}

// Option configures a TaskSubmitPollSolver.
type Option func(*TaskSubmitPollSolver)

// WithPolling overrides the default poll interval/timeout.
func WithPolling(interval, timeout time.Duration) Option {
	return func(s *TaskSubmitPollSolver) {
		s.pollInterval = interval
		s.pollTimeout = timeout
	}
}

// New2Captcha builds a TaskSubmitPollSolver against 2Captcha's task API,
// rotating across apiKeys.
func New2Captcha(apiKeys []string, systems []models.AntiBotSystem, opts ...Option) *TaskSubmitPollSolver {
	s := &TaskSubmitPollSolver{
		name:         "external_2captcha",
		systems:      systems,
		submitURL:    "https://api.2captcha.com/createTask",
		resultURL:    "https://api.2captcha.com/getTaskResult",
		pollInterval: 5 * time.Second,
		pollTimeout:  2 * time.Minute,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		keys:         newKeyRotator(apiKeys),
		buildTask:    twoCaptchaTask,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewAntiCaptcha builds a TaskSubmitPollSolver against Anti-Captcha's task
// API, rotating across apiKeys.
func NewAntiCaptcha(apiKeys []string, systems []models.AntiBotSystem, opts ...Option) *TaskSubmitPollSolver {
	s := &TaskSubmitPollSolver{
		name:         "external_anticaptcha",
		systems:      systems,
		submitURL:    "https://api.anti-captcha.com/createTask",
		resultURL:    "https://api.anti-captcha.com/getTaskResult",
		pollInterval: 5 * time.Second,
		pollTimeout:  2 * time.Minute,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		keys:         newKeyRotator(apiKeys),
		buildTask:    antiCaptchaTask,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func twoCaptchaTask(challenge models.Challenge) map[string]interface{} {
	taskType := "RecaptchaV2TaskProxyless"
	switch challenge.Type.Tag {
	case models.SystemHCaptcha:
		taskType = "HCaptchaTaskProxyless"
	case models.SystemTurnstile:
		taskType = "TurnstileTaskProxyless"
	case models.SystemRecaptcha:
		if challenge.Type.Variant == "v3" {
			taskType = "RecaptchaV3TaskProxyless"
		}
	}
	return map[string]interface{}{"type": taskType, "websiteURL": challenge.PageURL}
}

func antiCaptchaTask(challenge models.Challenge) map[string]interface{} {
	return twoCaptchaTask(challenge)
}

func (s *TaskSubmitPollSolver) Name() string                                   { return s.name }
func (s *TaskSubmitPollSolver) SupportedChallengeTypes() []models.AntiBotSystem { return s.systems }

// Solve submits the task, then polls resultURL until the vendor marks the
// task ready or ctx/pollTimeout expires.
func (s *TaskSubmitPollSolver) Solve(ctx context.Context, challenge models.Challenge) (models.SolveResult, error) {
	key, err := s.keys.take()
	if err != nil {
		return models.SolveResult{}, err
	}

	taskID, err := s.submit(ctx, key, challenge)
	if err != nil {
		return models.SolveResult{}, fmt.Errorf("%s submit failed: %w", s.name, err)
	}

	deadline := time.Now().Add(s.pollTimeout)
	for time.Now().Before(deadline) {
		token, ready, err := s.poll(ctx, key, taskID)
		if err != nil {
			return models.SolveResult{}, fmt.Errorf("%s poll failed: %w", s.name, err)
		}
		if ready {
			return models.SolveResult{Token: token, SolvedAt: time.Now(), SolverID: s.name}, nil
		}

		timer := time.NewTimer(s.pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return models.SolveResult{}, ctx.Err()
		}
	}
	return models.SolveResult{}, fmt.Errorf("%s: poll timed out after %s", s.name, s.pollTimeout)
}

func (s *TaskSubmitPollSolver) submit(ctx context.Context, key string, challenge models.Challenge) (string, error) {
	body := map[string]interface{}{"clientKey": key, "task": s.buildTask(challenge)}
	var resp struct {
		TaskID   int    `json:"taskId"`
		ErrorID  int    `json:"errorId"`
		ErrorMsg string `json:"errorDescription"`
	}
	if err := s.postJSON(ctx, s.submitURL, body, &resp); err != nil {
		return "", err
	}
	if resp.ErrorID != 0 {
		return "", fmt.Errorf("%s", resp.ErrorMsg)
	}
	return fmt.Sprintf("%d", resp.TaskID), nil
}

func (s *TaskSubmitPollSolver) poll(ctx context.Context, key, taskID string) (token string, ready bool, err error) {
	body := map[string]interface{}{"clientKey": key, "taskId": taskID}
	var resp struct {
		Status   string `json:"status"`
		ErrorID  int    `json:"errorId"`
		ErrorMsg string `json:"errorDescription"`
		Solution struct {
			GRecaptchaResponse string `json:"gRecaptchaResponse"`
			Token              string `json:"token"`
		} `json:"solution"`
	}
	if err := s.postJSON(ctx, s.resultURL, body, &resp); err != nil {
		return "", false, err
	}
	if resp.ErrorID != 0 {
		return "", false, fmt.Errorf("%s", resp.ErrorMsg)
	}
	if resp.Status != "ready" {
		return "", false, nil
	}
	if resp.Solution.Token != "" {
		return resp.Solution.Token, true, nil
	}
	return resp.Solution.GRecaptchaResponse, true, nil
}

func (s *TaskSubmitPollSolver) postJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
