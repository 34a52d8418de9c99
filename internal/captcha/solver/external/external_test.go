package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidworks/hive/internal/models"
)

func TestKeyRotatorRoundRobinsAcrossKeys(t *testing.T) {
	r := newKeyRotator([]string{"a", "b", "c"})

	seen := make([]string, 4)
	for i := range seen {
		k, err := r.take()
		require.NoError(t, err)
		seen[i] = k
	}

	assert.Equal(t, []string{"a", "b", "c", "a"}, seen)
}

func TestKeyRotatorErrorsWithNoKeys(t *testing.T) {
	r := newKeyRotator(nil)

	_, err := r.take()

	assert.Error(t, err)
}

func TestTaskSubmitPollSolverResolvesOnFirstReadyPoll(t *testing.T) {
	var submitted, polled int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/createTask":
			submitted++
			json.NewEncoder(w).Encode(map[string]interface{}{"taskId": 42})
		case "/getTaskResult":
			polled++
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":   "ready",
				"solution": map[string]interface{}{"gRecaptchaResponse": "solved-token"},
			})
		}
	}))
	defer server.Close()

	solver := New2Captcha([]string{"key1"}, []models.AntiBotSystem{models.SystemRecaptcha}, WithPolling(time.Millisecond, time.Second))
	solver.submitURL = server.URL + "/createTask"
	solver.resultURL = server.URL + "/getTaskResult"

	result, err := solver.Solve(context.Background(), models.Challenge{Type: models.ChallengeRecaptchaV2Checkbox, PageURL: "https://example.com"})

	require.NoError(t, err)
	assert.Equal(t, "solved-token", result.Token)
	assert.Equal(t, 1, submitted)
	assert.Equal(t, 1, polled)
}

func TestTaskSubmitPollSolverPollsUntilReady(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/createTask":
			json.NewEncoder(w).Encode(map[string]interface{}{"taskId": 7})
		case "/getTaskResult":
			attempts++
			if attempts < 3 {
				json.NewEncoder(w).Encode(map[string]interface{}{"status": "processing"})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":   "ready",
				"solution": map[string]interface{}{"token": "late-token"},
			})
		}
	}))
	defer server.Close()

	solver := NewAntiCaptcha([]string{"key1"}, []models.AntiBotSystem{models.SystemHCaptcha}, WithPolling(time.Millisecond, time.Second))
	solver.submitURL = server.URL + "/createTask"
	solver.resultURL = server.URL + "/getTaskResult"

	result, err := solver.Solve(context.Background(), models.Challenge{Type: models.ChallengeHCaptchaCheckbox, PageURL: "https://example.com"})

	require.NoError(t, err)
	assert.Equal(t, "late-token", result.Token)
	assert.GreaterOrEqual(t, attempts, 3)
}

func TestTaskSubmitPollSolverSurfacesVendorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/createTask" {
			json.NewEncoder(w).Encode(map[string]interface{}{"errorId": 1, "errorDescription": "invalid key"})
		}
	}))
	defer server.Close()

	solver := New2Captcha([]string{"bad-key"}, []models.AntiBotSystem{models.SystemRecaptcha})
	solver.submitURL = server.URL + "/createTask"
	solver.resultURL = server.URL + "/getTaskResult"

	_, err := solver.Solve(context.Background(), models.Challenge{Type: models.ChallengeRecaptchaV2Checkbox})

	assert.ErrorContains(t, err, "invalid key")
}

func TestTaskSubmitPollSolverTimesOutWhenNeverReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/createTask":
			json.NewEncoder(w).Encode(map[string]interface{}{"taskId": 1})
		case "/getTaskResult":
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "processing"})
		}
	}))
	defer server.Close()

	solver := New2Captcha([]string{"key"}, []models.AntiBotSystem{models.SystemRecaptcha}, WithPolling(time.Millisecond, 10*time.Millisecond))
	solver.submitURL = server.URL + "/createTask"
	solver.resultURL = server.URL + "/getTaskResult"

	_, err := solver.Solve(context.Background(), models.Challenge{Type: models.ChallengeRecaptchaV2Checkbox})

	assert.ErrorContains(t, err, "timed out")
}
