package provider

import (
	"time"

	"golang.org/x/time/rate"
)

// Options carries the per-call extractor options. The zero value is a plain
// unauthenticated call with no proxy and no rate limit.
type Options struct {
	Proxy          string
	RateLimit      *rate.Limiter
	Format         string // Format selector after quality substitution
	CacheDir       string
	OutputTemplate string // Where the downloaded file must land
	WriteInfoJSON  bool
	CheckFormats   string // "selected" on retry attempts
	CookieFile     string
	ProgressHook   func(downloaded, total int64)
}

// Snapshot returns a serialisable view of the options suitable for
// persisting on the video as the download kwargs breadcrumb. Hooks and
// cookie material are dropped.
func (o Options) Snapshot() map[string]any {
	snap := map[string]any{
		"proxy":         o.Proxy,
		"format":        o.Format,
		"cachedir":      o.CacheDir,
		"outtmpl":       o.OutputTemplate,
		"writeinfojson": o.WriteInfoJSON,
		"recorded_at":   time.Now().UTC().Format(time.RFC3339),
	}
	if o.CheckFormats != "" {
		snap["check_formats"] = o.CheckFormats
	}
	if o.RateLimit != nil {
		snap["ratelimit"] = int(o.RateLimit.Limit())
	}
	return snap
}
