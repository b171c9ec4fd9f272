// Package benchmark contains Go benchmarks for the record store, its inverted
// index and tokenizer, and the worker round trip, measuring throughput and
// allocation behaviour over synthetic dispatch ledgers.
package benchmark

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
)

var (
	parties   = []string{"Acme Logistics", "Zen Traders", "Balaji Roadways", "Kaveri Transport", "Sai Carriers"}
	factories = []string{"JSW", "ULTRATECH", "DALMIA", "RAMCO"}
	places    = []string{"Chennai", "Salem", "Bellary", "Trichy", "Madurai"}
)

func ledger(n int) []record.Record {
	r := rand.New(rand.NewPCG(1, 2))
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]record.Record, n)
	for i := range rows {
		rows[i] = record.New(
			"ChallanNo", fmt.Sprintf("CH-%05d", i+1),
			"Date", start.AddDate(0, 0, r.IntN(365)),
			"FactoryName", factories[r.IntN(len(factories))],
			"PartyName", parties[r.IntN(len(parties))],
			"Destination", places[r.IntN(len(places))],
			"Quantity", float64(r.IntN(40)+1),
			"Paid", r.IntN(2) == 0,
		)
	}
	return rows
}
