package b2

import (
	"context"
	"time"
)

// DefaultReauthInterval stays well under the roughly 24h token lifetime.
const DefaultReauthInterval = 22 * time.Hour

// KeepAlive re-authorizes every interval until ctx is done. Failures are
// reported to onError and the previous session is kept; the next tick
// tries again.
func (c *Client) KeepAlive(ctx context.Context, keyID, applicationKey string, interval time.Duration, onError func(error)) {
	if interval <= 0 {
		interval = DefaultReauthInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Reauthorize(ctx, keyID, applicationKey); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
