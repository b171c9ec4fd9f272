package benchmark

import (
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore/index"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore/tokenizer"
)

func buildIndex(rows []record.Record) *index.Index {
	ix := index.New()
	for i, rec := range rows {
		for _, f := range rec {
			for _, tok := range tokenizer.TokenizeValue(f.Value, time.UTC) {
				ix.Add(tok, uint32(i))
			}
		}
	}
	return ix
}

func BenchmarkIndexAdd(b *testing.B) {
	rows := ledger(1000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buildIndex(rows)
	}
}

func BenchmarkIndexSearch(b *testing.B) {
	for _, n := range []int{1000, 10000, 50000} {
		ix := buildIndex(ledger(n))
		b.Run(fmt.Sprintf("rows_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				ix.Search([]string{"kaveri", "trichy"})
			}
		})
	}
}

func BenchmarkIndexMatchSubstring(b *testing.B) {
	ix := buildIndex(ledger(10000))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.Match("ch-0")
	}
}
