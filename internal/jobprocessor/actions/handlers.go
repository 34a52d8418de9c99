package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/corvidworks/hive/internal/models"
)

const defaultActionTimeout = 30 * time.Second

func stringParam(action models.Action, key string) (string, error) {
	v, ok := action.Parameters[key]
	if !ok {
		return "", fmt.Errorf("action %q missing required parameter %q", action.Type, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("action %q parameter %q must be a string", action.Type, key)
	}
	return s, nil
}

func timeoutParam(action models.Action) time.Duration {
	v, ok := action.Parameters["timeoutMs"]
	if !ok {
		return defaultActionTimeout
	}
	ms, ok := v.(float64)
	if !ok || ms <= 0 {
		return defaultActionTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

func navigateHandler(page PageDriver) Handler {
	return func(ctx context.Context, action models.Action) (map[string]interface{}, error) {
		url, err := stringParam(action, "url")
		if err != nil {
			return nil, err
		}
		waitUntil := models.WaitUntil("load")
		if v, ok := action.Parameters["waitUntil"].(string); ok {
			waitUntil = models.WaitUntil(v)
		}
		if err := page.Navigate(url, waitUntil, timeoutParam(action)); err != nil {
			return nil, fmt.Errorf("navigate to %s: %w", url, err)
		}
		return map[string]interface{}{"url": url}, nil
	}
}

func clickHandler(page PageDriver) Handler {
	return func(ctx context.Context, action models.Action) (map[string]interface{}, error) {
		selector, err := stringParam(action, "selector")
		if err != nil {
			return nil, err
		}
		if err := page.Click(selector); err != nil {
			return nil, fmt.Errorf("click %s: %w", selector, err)
		}
		return map[string]interface{}{"selector": selector}, nil
	}
}

func fillHandler(page PageDriver) Handler {
	return func(ctx context.Context, action models.Action) (map[string]interface{}, error) {
		selector, err := stringParam(action, "selector")
		if err != nil {
			return nil, err
		}
		value, err := stringParam(action, "value")
		if err != nil {
			return nil, err
		}
		if err := page.Fill(selector, value); err != nil {
			return nil, fmt.Errorf("fill %s: %w", selector, err)
		}
		return map[string]interface{}{"selector": selector}, nil
	}
}

func screenshotHandler(page PageDriver) Handler {
	return func(ctx context.Context, action models.Action) (map[string]interface{}, error) {
		data, err := page.Screenshot()
		if err != nil {
			return nil, fmt.Errorf("screenshot: %w", err)
		}
		return map[string]interface{}{"contentType": "image/png", "size": len(data), "_artifactData": data}, nil
	}
}

func evaluateHandler(page PageDriver) Handler {
	return func(ctx context.Context, action models.Action) (map[string]interface{}, error) {
		script, err := stringParam(action, "script")
		if err != nil {
			return nil, err
		}
		result, err := page.Evaluate(script)
		if err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}
		return map[string]interface{}{"result": result}, nil
	}
}

func waitHandler(page PageDriver) Handler {
	return func(ctx context.Context, action models.Action) (map[string]interface{}, error) {
		if selector, ok := action.Parameters["selector"].(string); ok && selector != "" {
			if err := page.WaitFor(selector, timeoutParam(action)); err != nil {
				return nil, fmt.Errorf("wait for %s: %w", selector, err)
			}
			return map[string]interface{}{"selector": selector}, nil
		}
		durationMs, _ := action.Parameters["durationMs"].(float64)
		if durationMs <= 0 {
			durationMs = 1000
		}
		select {
		case <-time.After(time.Duration(durationMs) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return map[string]interface{}{"durationMs": durationMs}, nil
	}
}

// extractHandler runs the action's CSS selector against the page's
// serialized HTML via goquery; when Parameters["format"] == "markdown" it
// additionally converts the selected fragment via html-to-markdown
// (SPEC_FULL section 11's widened artifact taxonomy).
func extractHandler(page PageDriver) Handler {
	converter := md.NewConverter("", true, nil)

	return func(ctx context.Context, action models.Action) (map[string]interface{}, error) {
		selector, err := stringParam(action, "selector")
		if err != nil {
			return nil, err
		}

		html, err := page.OuterHTML()
		if err != nil {
			return nil, fmt.Errorf("extract: failed to read page html: %w", err)
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("extract: failed to parse html: %w", err)
		}

		selection := doc.Find(selector)
		texts := make([]string, 0, selection.Length())
		selection.Each(func(i int, s *goquery.Selection) {
			texts = append(texts, s.Text())
		})

		out := map[string]interface{}{"selector": selector, "matches": len(texts), "text": texts}

		if format, _ := action.Parameters["format"].(string); format == "markdown" && selection.Length() > 0 {
			fragmentHTML, err := selection.First().Html()
			if err == nil {
				if markdown, err := converter.ConvertString(fragmentHTML); err == nil {
					out["markdown"] = markdown
					out["_artifactData"] = []byte(markdown)
					out["contentType"] = "text/markdown"
				}
			}
		}

		return out, nil
	}
}
