// Package exchange holds the adapter contract shared by every exchange
// client plus the channel pattern tables used to resolve an opaque channel
// identifier into (pair, kind) once per message.
package exchange

import (
	"context"
	"fmt"
	"regexp"

	"mdtunnel/internal/market"
)

// Adapter is one exchange connection: it registers its channels, dispatches
// inbound messages into canonical records, and runs until ctx is cancelled.
type Adapter interface {
	Name() string
	Run(ctx context.Context) error
}

// PatternTable resolves channel identifiers against compiled patterns. Each
// pattern must expose named groups "pair" and "type"; the extracted type
// word is translated through the alias map into a canonical kind.
type PatternTable struct {
	patterns []tablePattern
}

type tablePattern struct {
	re      *regexp.Regexp
	aliases map[string]market.Kind
}

// MustAdd compiles and appends one pattern. Panics on a bad expression:
// tables are built from literals at adapter construction.
func (t *PatternTable) MustAdd(expr string, aliases map[string]market.Kind) *PatternTable {
	re := regexp.MustCompile(expr)
	if re.SubexpIndex("pair") < 0 || re.SubexpIndex("type") < 0 {
		panic(fmt.Sprintf("pattern %q must declare pair and type groups", expr))
	}
	t.patterns = append(t.patterns, tablePattern{re: re, aliases: aliases})
	return t
}

// Match resolves channel into (pair, kind). Unmatched channels report
// ok=false; callers log and skip the message, the session continues.
func (t *PatternTable) Match(channel string) (pair string, kind market.Kind, ok bool) {
	for _, p := range t.patterns {
		m := p.re.FindStringSubmatch(channel)
		if m == nil {
			continue
		}
		pair = m[p.re.SubexpIndex("pair")]
		word := m[p.re.SubexpIndex("type")]
		if k, found := p.aliases[word]; found {
			return pair, k, true
		}
		switch market.Kind(word) {
		case market.KindTicker, market.KindTrades, market.KindKline, market.KindDepth:
			return pair, market.Kind(word), true
		}
	}
	return "", "", false
}
