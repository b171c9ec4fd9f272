package benchmark

import (
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore/tokenizer"
)

var sampleTexts = map[string]string{
	"short":  "Acme Logistics",
	"medium": "Dispatch of 24 MT cement from JSW Bellary to Zen Traders, Chennai via TN01 AB 1234",
	"long":   strings.Repeat("Challan CH-00042 Balaji Roadways Salem 31-05-24 freight paid ", 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokenizer.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeValue(b *testing.B) {
	values := map[string]any{
		"string": "Kaveri Transport",
		"number": 1250.5,
		"date":   time.Date(2024, 5, 31, 10, 0, 0, 0, time.UTC),
		"bool":   true,
	}
	for name, v := range values {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				tokenizer.TokenizeValue(v, time.UTC)
			}
		})
	}
}

func BenchmarkNormalize(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		tokenizer.Normalize("  Zen   TRADERS   chennai ")
	}
}
