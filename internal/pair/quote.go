package pair

import "time"

// Quote is a single price reading with provenance. Price is kept as the
// upstream's decimal literal (never a float) so provider precision survives
// the trip through cache and API.
type Quote struct {
	Pair   Pair
	Source string
	// Price is a lossless decimal string, e.g. "67890.12".
	Price string
	// ReceivedAt is the instant the upstream observed or emitted the value.
	ReceivedAt time.Time
	// CachedAt is stamped by the cache when it accepts the quote; zero for
	// quotes that never passed through the cache.
	CachedAt time.Time
}
