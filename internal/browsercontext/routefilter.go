package browsercontext

import (
	"context"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// blockedResourceTypes are aborted by the default route filter unless the
// job opts into a full load (spec section 4.3).
var blockedResourceTypes = map[network.ResourceType]bool{
	network.ResourceTypeImage:  true,
	network.ResourceTypeFont:   true,
	network.ResourceTypeMedia:  true,
}

// installRouteFilter enables fetch interception and aborts requests whose
// resource type is in blockedResourceTypes, reducing memory footprint.
func installRouteFilter(ctx context.Context, logger arbor.ILogger) error {
	if err := fetch.Enable().Do(ctx); err != nil {
		return err
	}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go func() {
				var err error
				if blockedResourceTypes[e.ResourceType] {
					err = chromedp.Run(ctx, fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient))
				} else {
					err = chromedp.Run(ctx, fetch.ContinueRequest(e.RequestID))
				}
				if err != nil {
					logger.Debug().Err(err).Str("url", e.Request.URL).Msg("route filter failed to resolve paused request")
				}
			}()
		}
	})

	return nil
}
