package patterns

import (
	"math"
	"testing"
)

// TestProjectLevel tests both projection directions
func TestProjectLevel(t *testing.T) {
	// D above C: project down from D
	if got := ProjectLevel(180, 130, 0.618); math.Abs(got-(180-50*0.618)) > 1e-9 {
		t.Errorf("Expected %f, got %f", 180-50*0.618, got)
	}
	// D below C: project up from D
	if got := ProjectLevel(120, 170, 0.382); math.Abs(got-(120+50*0.382)) > 1e-9 {
		t.Errorf("Expected %f, got %f", 120+50*0.382, got)
	}
	// negative rate extends beyond D
	if got := ProjectLevel(120, 170, -0.236); got >= 120 {
		t.Errorf("Negative rate should land below D for a bullish leg, got %f", got)
	}
	if got := ProjectLevel(100, 100, 0.5); got != 100 {
		t.Errorf("Flat leg should project onto D, got %f", got)
	}
}

// TestFibLevelsSingleLabel tests that only enabled labels are projected
func TestFibLevelsSingleLabel(t *testing.T) {
	levels := FibLevels(180, 130, map[string]bool{"0.618": true})

	if len(levels) != 1 {
		t.Fatalf("Expected exactly one level, got %v", levels)
	}
	got, ok := levels["0.618"]
	if !ok {
		t.Fatalf("Expected key 0.618, got %v", levels)
	}
	if want := 180 - math.Abs(180-130)*0.618; got != want {
		t.Errorf("Expected %f, got %f", want, got)
	}
}

// TestFibLevelsFiltering tests disabled and unknown labels
func TestFibLevelsFiltering(t *testing.T) {
	levels := FibLevels(120, 170, map[string]bool{"0": true, "0.5": false, "0.65": true, "1": true})

	if len(levels) != 2 {
		t.Fatalf("Expected 2 levels, got %v", levels)
	}
	if levels["0"] != 120 {
		t.Errorf("Level 0 should equal D, got %f", levels["0"])
	}
	if levels["1"] != 170 {
		t.Errorf("Level 1 should equal C, got %f", levels["1"])
	}

	if all := FibLevels(120, 170, AllFibLabels()); len(all) != len(CanonicalFibRatios) {
		t.Errorf("Expected %d levels, got %d", len(CanonicalFibRatios), len(all))
	}
	if len(FibLevels(120, 170, nil)) != 0 {
		t.Error("Nil set should project nothing")
	}
}

// TestIsFibLabel tests canonical label lookup
func TestIsFibLabel(t *testing.T) {
	if !IsFibLabel("0.764") {
		t.Error("0.764 is canonical")
	}
	if IsFibLabel("0.786") {
		t.Error("0.786 is not canonical")
	}
}

// TestCanonicalFibLabel tests alias spellings of canonical rates
func TestCanonicalFibLabel(t *testing.T) {
	tests := []struct {
		label string
		want  string
		ok    bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"0.0", "0", true},
		{"0.50", "0.5", true},
		{" 0.618 ", "0.618", true},
		{"0.786", "", false},
		{"one", "", false},
	}

	for _, tt := range tests {
		got, ok := CanonicalFibLabel(tt.label)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CanonicalFibLabel(%q) = %q, %v; want %q, %v", tt.label, got, ok, tt.want, tt.ok)
		}
	}

	levels := FibLevels(120, 170, map[string]bool{"1.0": true})
	if len(levels) != 1 || levels["1"] != 170 {
		t.Errorf("Expected alias 1.0 to project level 1, got %v", levels)
	}
}
