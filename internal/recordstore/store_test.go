package recordstore

import (
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newStore(mode DateDetection) *Store {
	return New(Options{DateDetection: mode, Location: time.UTC})
}

func dispatchRecords() []record.Record {
	return []record.Record{
		record.New("ChallanNo", "CH-100", "FactoryName", "JSW", "DispatchDate", day(2026, time.January, 9)),
		record.New("ChallanNo", "CH-200", "FactoryName", "ULTRATECH", "DispatchDate", day(2026, time.January, 10)),
	}
}

// sameValue compares values treating times by instant.
func sameValue(a, b any) bool {
	ta, okA := a.(time.Time)
	tb, okB := b.(time.Time)
	if okA || okB {
		return okA && okB && ta.Equal(tb)
	}
	return a == b
}

func assertRecords(t *testing.T, got, want []record.Record) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("record %d has %d fields, want %d", i, len(got[i]), len(want[i]))
		}
		for j := range want[i] {
			if got[i][j].Name != want[i][j].Name {
				t.Errorf("record %d field %d name = %q, want %q", i, j, got[i][j].Name, want[i][j].Name)
			}
			if !sameValue(got[i][j].Value, want[i][j].Value) {
				t.Errorf("record %d field %q = %v, want %v", i, want[i][j].Name, got[i][j].Value, want[i][j].Value)
			}
		}
	}
}

func TestDispatchScenario(t *testing.T) {
	for _, mode := range []DateDetection{DetectByType, DetectByName} {
		t.Run(string(mode), func(t *testing.T) {
			s := newStore(mode)
			records := dispatchRecords()
			s.Load(records)

			assertRecords(t, s.Search("jsw"), records[:1])
			assertRecords(t, s.Search("09-01-26"), records[:1])
			assertRecords(t, s.Search("ch-"), records)
		})
	}
}

func TestBlankQueryReturnsAllRows(t *testing.T) {
	s := newStore(DetectByType)
	records := dispatchRecords()
	s.Load(records)
	for _, q := range []string{"", "   ", "\t\n"} {
		assertRecords(t, s.Search(q), records)
	}
	if s.Stats().CacheEntries != 0 {
		t.Error("blank queries must not be cached")
	}
}

func TestSearchIsSubsetOfAll(t *testing.T) {
	s := newStore(DetectByType)
	s.Load(dispatchRecords())
	all := s.Search("")
	for _, q := range []string{"jsw", "ch", "2", "26", "ultratech ch-200", "nothing"} {
		for _, rec := range s.Search(q) {
			found := false
			for _, a := range all {
				v1, _ := rec.Get("ChallanNo")
				v2, _ := a.Get("ChallanNo")
				if v1 == v2 {
					found = true
				}
			}
			if !found {
				t.Errorf("Search(%q) returned row not in dataset: %v", q, rec)
			}
		}
	}
}

func TestSearchIdempotentAndCached(t *testing.T) {
	s := newStore(DetectByType)
	s.Load(dispatchRecords())
	first, hit := s.SearchCached("ch-")
	if hit {
		t.Error("first search should miss the cache")
	}
	second, hit := s.SearchCached("ch-")
	if !hit {
		t.Error("second search should hit the cache")
	}
	assertRecords(t, second, first)
}

func TestCaseInsensitive(t *testing.T) {
	s := newStore(DetectByType)
	s.Load(dispatchRecords())
	assertRecords(t, s.Search("JSW"), s.Search("jsw"))
	_, hit := s.SearchCached("  Jsw ")
	if !hit {
		t.Error("equivalent query should share the cache entry")
	}
}

func TestMultiTermAnd(t *testing.T) {
	s := newStore(DetectByType)
	s.Load([]record.Record{
		record.New("FactoryName", "JSW", "Destination", "Manigarh"),
		record.New("FactoryName", "JSW", "Destination", "Raipur"),
		record.New("FactoryName", "ACC", "Destination", "Manigarh"),
	})
	got := s.Search("jsw manigarh")
	if len(got) != 1 {
		t.Fatalf("Search(jsw manigarh) = %v, want one row", got)
	}
	if v, _ := got[0].Get("Destination"); v != "Manigarh" {
		t.Errorf("wrong row: %v", got[0])
	}
	if got := s.Search("jsw nonexistentterm"); len(got) != 0 {
		t.Errorf("Search(jsw nonexistentterm) = %v, want empty", got)
	}
}

func TestPartialMatch(t *testing.T) {
	s := newStore(DetectByType)
	s.Load([]record.Record{
		record.New("Status", "dispatch pending", "Note", ""),
		record.New("Status", "billed", "Note", "Dispatch corrected"),
		record.New("Status", "paid", "Note", nil),
	})
	got := s.Search("disp")
	if len(got) != 2 {
		t.Fatalf("Search(disp) returned %d rows, want 2", len(got))
	}
	if v, _ := got[0].Get("Status"); v != "dispatch pending" {
		t.Errorf("rows not in row order: %v", got)
	}
}

func TestReloadClearsStaleResults(t *testing.T) {
	s := newStore(DetectByType)
	s.Load([]record.Record{
		record.New("ChallanNo", "x-1"),
		record.New("ChallanNo", "x-2"),
	})
	if got := s.Search("x"); len(got) != 2 {
		t.Fatalf("before reload: %v", got)
	}
	s.Load([]record.Record{
		record.New("ChallanNo", "y-9"),
	})
	if got := s.Search("x"); len(got) != 0 {
		t.Errorf("after reload: stale rows returned %v", got)
	}
	if got := s.Search("y"); len(got) != 1 {
		t.Errorf("after reload: Search(y) = %v", got)
	}
}

func TestEmptyDataset(t *testing.T) {
	s := newStore(DetectByType)
	if s.State() != StateEmpty {
		t.Fatalf("new store state = %v", s.State())
	}
	if got := s.Search("anything"); len(got) != 0 {
		t.Errorf("search on new store = %v", got)
	}

	s.Load(dispatchRecords())
	if s.State() != StateLoaded {
		t.Fatalf("state after load = %v", s.State())
	}
	s.Search("jsw")
	s.Load(nil)
	if s.State() != StateEmpty {
		t.Errorf("state after empty load = %v", s.State())
	}
	if got := s.Search("anything"); len(got) != 0 {
		t.Errorf("Search(anything) = %v", got)
	}
	if got := s.Search("jsw"); len(got) != 0 {
		t.Errorf("cached jsw survived empty load: %v", got)
	}
	if got := s.Search(""); got == nil || len(got) != 0 {
		t.Errorf("Search(\"\") = %#v, want empty non-nil", got)
	}
	if len(s.Fields()) != 0 {
		t.Errorf("Fields() = %v, want none", s.Fields())
	}
}

func TestFieldsFromFirstRecord(t *testing.T) {
	s := newStore(DetectByType)
	s.Load([]record.Record{
		record.New("A", "one", "B", "two"),
		record.New("B", "three", "C", "ignored"),
		record.New("A", "four"),
	})
	if got := s.Fields(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("Fields() = %v", got)
	}
	all := s.Search("")
	if v, _ := all[1].Get("A"); v != nil {
		t.Errorf("missing field should be nil, got %v", v)
	}
	if v, _ := all[1].Get("B"); v != "three" {
		t.Errorf("out of order field not read: %v", v)
	}
	if _, ok := all[1].Get("C"); ok {
		t.Error("field absent from first record leaked into results")
	}
	if got := s.Search("ignored"); len(got) != 0 {
		t.Errorf("field absent from first record was indexed: %v", got)
	}
}

func TestFalsyValuesProduceNoTokens(t *testing.T) {
	s := newStore(DetectByType)
	s.Load([]record.Record{
		record.New("Amount", 0.0, "Paid", false, "Note", ""),
		record.New("Amount", 1500.0, "Paid", true, "Note", nil),
	})
	if got := s.Search("0"); len(got) != 1 {
		t.Errorf("Search(0) = %v, want only the 1500 row", got)
	}
	if got := s.Search("false"); len(got) != 0 {
		t.Errorf("false should not be indexed: %v", got)
	}
	if got := s.Search("true"); len(got) != 1 {
		t.Errorf("Search(true) = %v", got)
	}
}

func TestDateRoundTripMillis(t *testing.T) {
	stamp := time.Date(2026, time.March, 4, 13, 45, 12, 987654321, time.UTC)
	s := newStore(DetectByType)
	s.Load([]record.Record{record.New("BillDate", stamp, "Ref", "B-1")})
	got := s.Search("")
	v, _ := got[0].Get("BillDate")
	tv, ok := v.(time.Time)
	if !ok {
		t.Fatalf("BillDate = %T, want time.Time", v)
	}
	if !tv.Equal(stamp.Truncate(time.Millisecond)) {
		t.Errorf("round trip = %v, want %v", tv, stamp.Truncate(time.Millisecond))
	}
}

func TestDateDetectionModes(t *testing.T) {
	records := []record.Record{
		record.New("UpdateCount", 3.0, "Arrival", day(2026, time.February, 1), "DateCode", 17.0),
	}

	byType := newStore(DetectByType)
	byType.Load(records)
	row := byType.Search("")[0]
	if v, _ := row.Get("Arrival"); !sameValue(v, day(2026, time.February, 1)) {
		t.Errorf("type mode: Arrival = %v", v)
	}
	if v, _ := row.Get("DateCode"); v != 17.0 {
		t.Errorf("type mode: DateCode = %v, want 17", v)
	}

	byName := newStore(DetectByName)
	byName.Load(records)
	row = byName.Search("")[0]
	if v, _ := row.Get("Arrival"); v != day(2026, time.February, 1).UnixMilli() {
		t.Errorf("name mode: Arrival = %v, want raw millis", v)
	}
	if v, _ := row.Get("DateCode"); !sameValue(v, time.UnixMilli(17)) {
		t.Errorf("name mode: DateCode = %v, want reconstructed date", v)
	}
}

func TestTypeModeKeepsIntegersBesideDates(t *testing.T) {
	records := []record.Record{
		record.New("Amount", day(2026, time.January, 9)),
		record.New("Amount", int64(5)),
		record.New("Amount", int16(0)),
		record.New("Amount", int64(1767916800000)),
	}
	s := newStore(DetectByType)
	s.Load(records)
	assertRecords(t, s.Search(""), records)

	got := s.Search("")
	if v, _ := got[1].Get("Amount"); v != int64(5) {
		t.Errorf("Amount = %#v, want int64(5)", v)
	}
	// "0" matches the date token and the large integer, never the zero int16.
	assertRecords(t, s.Search("0"), []record.Record{records[0], records[3]})
}

func TestParseDateDetection(t *testing.T) {
	if ParseDateDetection("NAME") != DetectByName {
		t.Error("NAME should parse to name mode")
	}
	if ParseDateDetection("") != DetectByType || ParseDateDetection("bogus") != DetectByType {
		t.Error("unknown values should default to type mode")
	}
}

func TestCacheBound(t *testing.T) {
	s := New(Options{Location: time.UTC, CacheMaxEntries: 2})
	s.Load(dispatchRecords())
	s.Search("jsw")
	s.Search("ch")
	s.Search("ultra")
	if got := s.Stats().CacheEntries; got != 1 {
		t.Errorf("CacheEntries = %d, want 1", got)
	}
}

func TestStats(t *testing.T) {
	s := newStore(DetectByType)
	s.Load(dispatchRecords())
	s.Search("jsw")
	s.Search("jsw")
	st := s.Stats()
	if st.Rows != 2 || st.Fields != 3 || st.State != "loaded" || st.Generation != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.CacheHits != 1 || st.CacheMisses != 1 {
		t.Errorf("cache counters = %d/%d", st.CacheHits, st.CacheMisses)
	}
	if st.Tokens != 6 {
		t.Errorf("Tokens = %d, want 6", st.Tokens)
	}
}

func BenchmarkLoad(b *testing.B) {
	records := make([]record.Record, 2000)
	for i := range records {
		records[i] = record.New(
			"ChallanNo", fmt.Sprintf("CH-%d", i),
			"FactoryName", []string{"JSW", "ULTRATECH", "ACC"}[i%3],
			"VehicleNo", fmt.Sprintf("MH-12 AB %04d", i),
			"DispatchDate", day(2026, time.January, 1+i%28),
			"Quantity", float64(i%40)+0.5,
		)
	}
	s := newStore(DetectByType)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Load(records)
	}
}
