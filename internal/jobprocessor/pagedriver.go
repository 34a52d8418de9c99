package jobprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/corvidworks/hive/internal/models"
)

// chromedpPageDriver implements actions.PageDriver over a single shared
// chromedp tab context (spec section 4.4: the processor shares one page
// across all of a job's actions).
type chromedpPageDriver struct {
	ctx context.Context
}

func (d *chromedpPageDriver) Navigate(url string, waitUntil models.WaitUntil, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()

	switch waitUntil {
	case models.WaitUntilNetworkIdle:
		return chromedp.Run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body"), network.Enable())
	case models.WaitUntilDOMContentLoaded:
		return chromedp.Run(ctx, chromedp.Navigate(url), chromedp.WaitVisible("body"))
	default:
		return chromedp.Run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body"))
	}
}

func (d *chromedpPageDriver) Click(selector string) error {
	return chromedp.Run(d.ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (d *chromedpPageDriver) Fill(selector, value string) error {
	return chromedp.Run(d.ctx, chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (d *chromedpPageDriver) Screenshot() ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(d.ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *chromedpPageDriver) Evaluate(script string) (interface{}, error) {
	var result interface{}
	if err := chromedp.Run(d.ctx, chromedp.Evaluate(script, &result)); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *chromedpPageDriver) WaitFor(selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *chromedpPageDriver) OuterHTML() (string, error) {
	var html string
	if err := chromedp.Run(d.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func seedCookies(ctx context.Context, cookies []models.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	var actions []chromedp.Action
	for _, c := range cookies {
		expr := network.SetCookie(c.Name, c.Value).
			WithDomain(c.Domain).
			WithPath(c.Path).
			WithSecure(c.Secure).
			WithHTTPOnly(c.HTTPOnly)
		actions = append(actions, expr)
	}
	return chromedp.Run(ctx, actions...)
}

func clearCookies(ctx context.Context) error {
	return chromedp.Run(ctx, network.ClearBrowserCookies())
}

func seedWebStorage(ctx context.Context, local, session map[string]string) error {
	script := buildStorageSeedScript(local, session)
	if script == "" {
		return nil
	}
	return chromedp.Run(ctx, chromedp.Evaluate(script, nil))
}

func clearWebStorage(ctx context.Context) error {
	return chromedp.Run(ctx, chromedp.Evaluate(`try { localStorage.clear(); sessionStorage.clear(); } catch (e) {}`, nil))
}

func buildStorageSeedScript(local, session map[string]string) string {
	if len(local) == 0 && len(session) == 0 {
		return ""
	}
	script := "(function() { try {"
	for k, v := range local {
		script += fmt.Sprintf("localStorage.setItem(%q, %q);", k, v)
	}
	for k, v := range session {
		script += fmt.Sprintf("sessionStorage.setItem(%q, %q);", k, v)
	}
	script += "} catch (e) {} })();"
	return script
}
