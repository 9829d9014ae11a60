package bytesource

import (
	"context"
	"net/url"
	"time"
)

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// hostOf extracts the host component used to key the shared client pool,
// falling back to the raw URL if it doesn't parse (keeps every caller on
// its own client rather than failing construction).
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
