package models

import (
	"math"
	"testing"
)

func TestRawBarRatios(t *testing.T) {
	tests := []struct {
		name       string
		bar        RawBar
		wantReturn float64
		wantRange  float64
	}{
		{"range over open", RawBar{Open: 200, High: 204, Low: 198, Close: 202}, 0.01, 0.03},
		{"flat bar", RawBar{Open: 50, High: 50, Low: 50, Close: 50}, 0, 0},
		{"non-positive open", RawBar{Open: 0, High: 3, Low: 1, Close: 2}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bar.Return(); math.Abs(got-tt.wantReturn) > 1e-12 {
				t.Fatalf("Return() = %v, want %v", got, tt.wantReturn)
			}
			if got := tt.bar.RangeRatio(); math.Abs(got-tt.wantRange) > 1e-12 {
				t.Fatalf("RangeRatio() = %v, want %v", got, tt.wantRange)
			}
		})
	}
}
