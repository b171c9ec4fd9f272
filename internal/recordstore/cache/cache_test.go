package cache

import "testing"

func TestKeyNormalizes(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"JSW", "jsw"},
		{"  jsw  manigarh ", "jsw manigarh"},
		{"jsw\tManigarh", "JSW MANIGARH"},
	}
	for _, tt := range tests {
		if Key(tt.a) != Key(tt.b) {
			t.Errorf("Key(%q)=%q differs from Key(%q)=%q", tt.a, Key(tt.a), tt.b, Key(tt.b))
		}
	}
}

func TestGetOrCompute(t *testing.T) {
	c := New[[]int](0)
	calls := 0
	compute := func() []int {
		calls++
		return []int{1, 2}
	}
	v, hit := c.GetOrCompute("jsw", compute)
	if hit || len(v) != 2 {
		t.Fatalf("first call: hit=%v v=%v", hit, v)
	}
	v, hit = c.GetOrCompute("jsw", compute)
	if !hit || len(v) != 2 {
		t.Fatalf("second call: hit=%v v=%v", hit, v)
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d/%d, want 1/1", hits, misses)
	}
}

func TestClear(t *testing.T) {
	c := New[string](0)
	c.Set("a", "x")
	c.Set("b", "y")
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("entry survived Clear")
	}
}

func TestBoundClearsWholeCache(t *testing.T) {
	c := New[int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)
	if c.Len() != 2 {
		t.Fatalf("overwrite should not trigger clear, Len = %d", c.Len())
	}
	c.Set("c", 3)
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after bound reached", c.Len())
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("Get(c) = %v, %v", v, ok)
	}
}
