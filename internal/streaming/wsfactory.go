package streaming

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/source"
	"github.com/quotefeed/quotefeed/internal/stream"
)

// WSAdapterFactory is the production AdapterFactory: it resolves the
// source's dialect and backs the adapter with a reconnecting WebSocket
// client configured from the source's stream options.
func WSAdapterFactory(name source.Name, cfg config.SourceConfig) (Adapter, bool) {
	dialect, ok := stream.DialectFor(name, cfg)
	if !ok {
		return nil, false
	}

	opts := wsOptions(dialect.URL(), cfg.Stream)
	batchSize := 0
	if cfg.Stream != nil {
		batchSize = cfg.Stream.BatchSize
	}

	return stream.NewAdapter(dialect, func(h stream.Handlers) stream.Transport {
		opts.Handlers = h
		return stream.NewWSClient(opts)
	}, batchSize), true
}

// wsOptions maps the file-config stream block onto client options. The
// pong deadline follows the heartbeat: a link that misses two pings is
// declared dead rather than waiting out the client's generic default.
func wsOptions(url string, st *config.StreamOptions) stream.WSOptions {
	opts := stream.WSOptions{URL: url}
	if st == nil {
		return opts
	}

	opts.PingInterval = st.HeartbeatInterval.Std()
	if opts.PingInterval > 0 {
		opts.PongTimeout = 2 * opts.PingInterval
	}
	opts.ReconnectInterval = st.ReconnectInterval.Std()
	opts.MaxReconnectAttempts = st.MaxReconnectAttempts
	opts.DisableReconnect = !st.Reconnect()
	if st.RateLimitPerInterval > 0 && st.RateLimitInterval.Std() > 0 {
		per := rate.Every(st.RateLimitInterval.Std() / time.Duration(st.RateLimitPerInterval))
		opts.SendLimit = rate.NewLimiter(per, st.RateLimitPerInterval)
	}
	return opts
}
