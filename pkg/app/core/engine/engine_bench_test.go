package engine

import (
	"fmt"
	"testing"

	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
)

// seedBook rests n levels per side, 100 lots each, around a 1050 tick mid.
func seedBook(b *testing.B, h *harness, n int) {
	b.Helper()
	for i := 0; i < n; i++ {
		if _, err := h.eng.Submit(limitOrder(fmt.Sprintf("bid-%d", i), orderbook.Buy, orderbook.GTC, int64(1000-i), 100)); err != nil {
			b.Fatal(err)
		}
		if _, err := h.eng.Submit(limitOrder(fmt.Sprintf("ask-%d", i), orderbook.Sell, orderbook.GTC, int64(1100+i), 100)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSubmitResting measures placing non-crossing orders into a deep book.
func BenchmarkSubmitResting(b *testing.B) {
	h := newHarness(b)
	seedBook(b, h, 100)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		side, price := orderbook.Buy, int64(900+i%100)
		if i%2 == 0 {
			side, price = orderbook.Sell, int64(1200+i%100)
		}
		if _, err := h.eng.Submit(limitOrder(fmt.Sprintf("rest-%d", i), side, orderbook.GTC, price, 10)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSubmitCrossing measures IOC takers that sweep part of the top level.
func BenchmarkSubmitCrossing(b *testing.B) {
	h := newHarness(b)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		maker := fmt.Sprintf("maker-%d", i)
		if _, err := h.eng.Submit(limitOrder(maker, orderbook.Sell, orderbook.GTC, 1050, 10)); err != nil {
			b.Fatal(err)
		}
		b.StartTimer()

		res, err := h.eng.Submit(limitOrder(fmt.Sprintf("taker-%d", i), orderbook.Buy, orderbook.IOC, 1050, 10))
		if err != nil || len(res.Fills) != 1 {
			b.Fatalf("fills=%d err=%v", len(res.Fills), err)
		}
	}
}

// BenchmarkCancel measures cancelling resting orders spread over many levels.
func BenchmarkCancel(b *testing.B) {
	h := newHarness(b)
	ids := make([]string, b.N)
	for i := range ids {
		ids[i] = fmt.Sprintf("order-%d", i)
		if _, err := h.eng.Submit(limitOrder(ids[i], orderbook.Buy, orderbook.GTC, int64(1000+i%1000), 10)); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := h.eng.Cancel(ids[i]); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDepth measures the aggregated top-10 view of a deep book.
func BenchmarkDepth(b *testing.B) {
	h := newHarness(b)
	seedBook(b, h, 500)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if d := h.eng.Depth(10); len(d.Bids) != 10 {
			b.Fatalf("bids=%d", len(d.Bids))
		}
	}
}
