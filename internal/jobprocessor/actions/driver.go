package actions

import (
	"time"

	"github.com/corvidworks/hive/internal/models"
)

// PageDriver is the minimal page surface the built-in action handlers need.
// A concrete chromedp-backed implementation lives in internal/jobprocessor
// so this package stays free of chromedp's context-as-handle model and is
// easy to fake in tests.
type PageDriver interface {
	Navigate(url string, waitUntil models.WaitUntil, timeout time.Duration) error
	Click(selector string) error
	Fill(selector, value string) error
	Screenshot() ([]byte, error)
	Evaluate(script string) (interface{}, error)
	WaitFor(selector string, timeout time.Duration) error
	OuterHTML() (string, error)
}
