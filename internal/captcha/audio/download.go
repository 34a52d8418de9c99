package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PageFetcher is the minimal page surface needed to pull blob: URL bytes out
// of the page's JS context, since those bytes never touch the network layer
// the Go process can see (spec section 4.7 step 2).
type PageFetcher interface {
	Evaluate(script string) (interface{}, error)
}

// Download resolves sourceURL to raw bytes: blob: URLs are read out of the
// page context via Evaluate, everything else is fetched directly over HTTP.
func Download(ctx context.Context, page PageFetcher, httpClient *http.Client, sourceURL string) ([]byte, error) {
	if strings.HasPrefix(sourceURL, "blob:") {
		return downloadBlob(page, sourceURL)
	}
	return downloadHTTP(ctx, httpClient, sourceURL)
}

// downloadBlob runs a JS fetch-and-base64-encode of a blob: URL inside the
// page context. The concrete PageFetcher implementation is expected to await
// the underlying promise (e.g. via chromedp.EvaluateAsPromise) before
// returning the encoded string.
func downloadBlob(page PageFetcher, blobURL string) ([]byte, error) {
	script := fmt.Sprintf(`(async () => {
		const response = await fetch(%q);
		const buffer = await response.arrayBuffer();
		const bytes = new Uint8Array(buffer);
		let binary = '';
		for (let i = 0; i < bytes.byteLength; i++) { binary += String.fromCharCode(bytes[i]); }
		return btoa(binary);
	})()`, blobURL)

	raw, err := page.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("evaluate blob fetch: %w", err)
	}
	encoded, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("blob fetch returned non-string result")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode blob base64: %w", err)
	}
	return data, nil
}

func downloadHTTP(ctx context.Context, client *http.Client, sourceURL string) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; hive-audio-fetch/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("audio fetch %s: status %d", sourceURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
