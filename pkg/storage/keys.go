package storage

import "fmt"

// Key schema:
//
//	fill:<instrument>:<seq 20 digits> → engine.Fill (JSON)
//	ord:<instrument>:<orderID>        → orderbook.Order (JSON)
//	seq:<instrument>                  → last fill seq (8 bytes, big endian)
//
// Instrument ids never contain ':' so prefixes do not overlap.
const (
	prefixFill  = "fill:"
	prefixOrder = "ord:"
	prefixSeq   = "seq:"
)

// fillKey is zero-padded so keys sort by seq.
func fillKey(instrument string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixFill, instrument, seq))
}

func fillPrefix(instrument string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixFill, instrument))
}

func orderKey(instrument, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOrder, instrument, orderID))
}

func orderPrefix(instrument string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, instrument))
}

func seqKey(instrument string) []byte {
	return []byte(prefixSeq + instrument)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
