// Package pair provides the core currency pair and quote types shared by
// every layer of the aggregator.
package pair

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// Pair is an ordered currency pair. Symbols are case-preserved as given by
// the caller; identity (Key) folds case so "btc/usd" and "BTC/USD" name the
// same tracked pair.
type Pair struct {
	Base  string
	Quote string
}

// New creates a Pair from base and quote symbols.
func New(base, quote string) Pair {
	return Pair{Base: base, Quote: quote}
}

// String returns the canonical "BASE/QUOTE" form used in logs and metrics.
func (p Pair) String() string {
	return strings.ToUpper(p.Base) + "/" + strings.ToUpper(p.Quote)
}

// IsZero reports whether either symbol is empty.
func (p Pair) IsZero() bool {
	return p.Base == "" || p.Quote == ""
}

// Validate rejects pairs with empty symbols.
func (p Pair) Validate() error {
	if p.Base == "" {
		return fmt.Errorf("pair: empty base symbol")
	}
	if p.Quote == "" {
		return fmt.Errorf("pair: empty quote symbol")
	}
	return nil
}

// Key is a 128-bit identity for a (source, pair) tuple, derived from the
// case-folded canonical form. It is the map key used by the quote cache,
// the single-flight table, and the pair registry.
type Key [16]byte

// ZeroKey is the zero-value Key.
var ZeroKey Key

// KeyFor computes the Key for a source name and pair.
func KeyFor(source string, p Pair) Key {
	s := strings.ToLower(source) + "|" + p.String()
	h128 := xxh3.Hash128([]byte(s))
	var k Key
	binary.LittleEndian.PutUint64(k[:8], h128.Lo)
	binary.LittleEndian.PutUint64(k[8:], h128.Hi)
	return k
}
