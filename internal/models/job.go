package models

import "time"

// JobStatus is the AutomationJob lifecycle state (spec section 3, 4.1).
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// IsTerminal reports whether a job in this status will never transition again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// BrowserFamily identifies which browser engine a job or worker targets.
type BrowserFamily string

const (
	BrowserFamilyChromium BrowserFamily = "chromium"
	BrowserFamilyFirefox  BrowserFamily = "firefox"
	BrowserFamilyWebkit   BrowserFamily = "webkit"
)

// WaitUntil mirrors the navigation-readiness modes of the driven browser.
type WaitUntil string

const (
	WaitUntilLoad            WaitUntil = "load"
	WaitUntilDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitUntilNetworkIdle     WaitUntil = "networkidle"
)

// ActionType is the closed enumeration of action tags an AutomationJob may carry.
type ActionType string

const (
	ActionNavigate     ActionType = "navigate"
	ActionClick        ActionType = "click"
	ActionFill         ActionType = "fill"
	ActionScreenshot   ActionType = "screenshot"
	ActionEvaluate     ActionType = "evaluate"
	ActionWait         ActionType = "wait"
	ActionExtract      ActionType = "extract"
	ActionSolveCaptcha ActionType = "solveCaptcha"
	ActionSummarizePdf ActionType = "summarizePdf"
)

// Action is a single pipeline step: a tag plus opaque parameters. The
// parameter shape is interpreted by the handler registered for Type in
// internal/jobprocessor/actions, never by the scheduler or processor core.
type Action struct {
	Type       ActionType             `json:"action"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// ActionResult is one action's recorded outcome, appended to AutomationJob.Result in order.
type ActionResult struct {
	Type      ActionType             `json:"action"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	StartedAt time.Time              `json:"startedAt"`
	Duration  time.Duration          `json:"duration"`
}

// Artifact is an opaque output blob produced during job execution (screenshot,
// extracted markdown, PDF summary, ...).
type Artifact struct {
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Data        []byte `json:"data,omitempty"`
	Path        string `json:"path,omitempty"`
}

// BrowserStorage is the seeded/observed cookie and web-storage state for a job's context.
type BrowserStorage struct {
	Cookies      []Cookie          `json:"cookies,omitempty"`
	LocalStorage map[string]string `json:"localStorage,omitempty"`
	SessionStorage map[string]string `json:"sessionStorage,omitempty"`
}

// Cookie mirrors the minimal fields the driven browser's cookie API needs.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	SameSite string `json:"sameSite,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
}

// ErrorSummary is the user-visible failure surface per spec section 7.
type ErrorSummary struct {
	Category      string   `json:"category"`
	Message       string   `json:"message"`
	CorrelationID string   `json:"correlationId"`
	Attempts      int      `json:"attempts"`
	AttemptedSolvers []string `json:"attemptedSolvers,omitempty"`
}

// AutomationJob is the unit of work the scheduler owns exclusively (spec section 3).
type AutomationJob struct {
	ID            string         `json:"id" validate:"required,uuid_rfc4122|startswith=job_"`
	TargetURL     string         `json:"targetUrl" validate:"required,url"`
	Actions       []Action       `json:"actions" validate:"required,min=1,dive"`
	BrowserFamily BrowserFamily  `json:"browserFamily" validate:"required,oneof=chromium firefox webkit"`
	Status        JobStatus      `json:"status"`
	Priority      int            `json:"priority" validate:"gte=0,lte=100"`
	RetryCount    int            `json:"retryCount" validate:"gte=0"`
	MaxRetries    int            `json:"maxRetries" validate:"gte=0"`
	TimeoutMs     int            `json:"timeoutMs" validate:"gte=0"`
	WaitUntil     WaitUntil      `json:"waitUntil" validate:"omitempty,oneof=load domcontentloaded networkidle"`
	BrowserStorage *BrowserStorage `json:"browserStorage,omitempty"`
	Result        []ActionResult `json:"result,omitempty"`
	Artifacts     []Artifact     `json:"artifacts,omitempty"`
	Error         *ErrorSummary  `json:"error,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	CurrentWorker string         `json:"currentWorker,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	// AvailableAt gates ClaimNext: a retried job is PENDING immediately but
	// not claimable until its backoff elapses (spec section 4.1 retry policy).
	AvailableAt *time.Time `json:"availableAt,omitempty"`
}

// JobSpec is the externally-submitted payload for enqueue (spec section 6).
// It is distinct from AutomationJob because callers never set id/status/timestamps.
type JobSpec struct {
	TargetURL      string         `json:"targetUrl" validate:"required,url"`
	Actions        []Action       `json:"actions" validate:"required,min=1,dive"`
	BrowserFamily  BrowserFamily  `json:"browserFamily" validate:"required,oneof=chromium firefox webkit"`
	Priority       int            `json:"priority,omitempty" validate:"gte=0,lte=100"`
	MaxRetries     int            `json:"maxRetries,omitempty" validate:"gte=0"`
	TimeoutMs      int            `json:"timeoutMs,omitempty" validate:"gte=0"`
	WaitUntil      WaitUntil      `json:"waitUntil,omitempty" validate:"omitempty,oneof=load domcontentloaded networkidle"`
	BrowserStorage *BrowserStorage `json:"browserStorage,omitempty"`
}

// IsTerminal reports whether the job has reached a terminal status.
func (j *AutomationJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}
