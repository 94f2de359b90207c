package market

import "time"

// Kind identifies one canonical data stream type.
type Kind string

const (
	KindTicker Kind = "ticker"
	KindTrades Kind = "trades"
	KindKline  Kind = "kline"
	KindDepth  Kind = "depth"
)

// CollectionSeparator sits between exchange and kind in collection names.
// Historical format, do not change: existing collections are named with it.
const CollectionSeparator = "0"

// Payload is one normalized market data record.
//
// NaturalKey returns the ordered field names that uniquely identify the
// record, or nil for append-only kinds. Document renders the record as a
// flat map ready for the document store. StampCreated fixes the ingestion
// timestamp once; later renders of the same record must agree on it.
type Payload interface {
	PairName() string
	NaturalKey() []string
	Document() map[string]any
	StampCreated(time.Time)
}

// Envelope wraps a payload with its origin for routing and storage.
type Envelope struct {
	Exchange string
	Kind     Kind
	Payload  Payload
}

// RoutingKey identifies the logical stream: "binance|depth".
func (e Envelope) RoutingKey() string {
	return e.Exchange + "|" + string(e.Kind)
}

// Collection is the storage collection name: "binance0depth".
func (e Envelope) Collection() string {
	return e.Exchange + CollectionSeparator + string(e.Kind)
}

// SplitRoutingKey recovers (exchange, kind) from a routing key.
func SplitRoutingKey(key string) (string, Kind) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], Kind(key[i+1:])
		}
	}
	return key, ""
}

// CollectionName maps a routing key to its collection name.
func CollectionName(key string) string {
	exchange, kind := SplitRoutingKey(key)
	return exchange + CollectionSeparator + string(kind)
}

func now() time.Time { return time.Now().UTC() }

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return now()
	}
	return t
}
