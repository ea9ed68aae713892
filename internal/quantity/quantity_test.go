package quantity

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
)

func TestUniformBetweenBounds(t *testing.T) {
	g := New(1)
	for i := 0; i < 5000; i++ {
		lo := g.Float64()*200 - 100
		hi := lo + g.Float64()*50
		v, err := g.UniformBetween(lo, hi)
		if err != nil {
			t.Fatalf("uniform(%v, %v): %v", lo, hi, err)
		}
		if v < lo || v > hi {
			t.Fatalf("uniform(%v, %v) = %v out of bounds", lo, hi, v)
		}
	}
}

func TestWideSpansStayFiniteAndSpread(t *testing.T) {
	g := New(7)
	lo, hi := -1e308, 1e308
	var below, above int
	for i := 0; i < 2000; i++ {
		u, err := g.UniformBetween(lo, hi)
		if err != nil {
			t.Fatalf("uniform: %v", err)
		}
		p, err := g.PertValue(lo, 0, hi)
		if err != nil {
			t.Fatalf("pert: %v", err)
		}
		for _, v := range []float64{u, p} {
			if math.IsNaN(v) || v < lo || v > hi {
				t.Fatalf("sample %v outside [%v, %v]", v, lo, hi)
			}
		}
		if u < 0 {
			below++
		} else {
			above++
		}
	}
	if below < 800 || above < 800 {
		t.Fatalf("uniform split %d/%d, want roughly even", below, above)
	}
	if got := lerp(lo, hi, 0); got != lo {
		t.Fatalf("lerp at 0 = %v", got)
	}
	if _, err := g.UniformBetween(math.Inf(-1), 0); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("infinite bound err = %v", err)
	}
}

func TestUniformBetweenEqualBounds(t *testing.T) {
	g := New(2)
	v, err := g.UniformBetween(42.5, 42.5)
	if err != nil || v != 42.5 {
		t.Fatalf("got %v, %v want 42.5", v, err)
	}
	d, err := g.Uniform(decimal.RequireFromString("3.1415"), decimal.RequireFromString("3.1415"), 2)
	if err != nil || !d.Equal(decimal.RequireFromString("3.1415")) {
		t.Fatalf("got %s, %v want 3.1415", d, err)
	}
}

func TestPertValueBounds(t *testing.T) {
	g := New(3)
	for i := 0; i < 5000; i++ {
		lo := g.Float64()*1000 - 500
		hi := lo + g.Float64()*300
		mode := lo + g.Float64()*(hi-lo)
		v, err := g.PertValue(lo, mode, hi)
		if err != nil {
			t.Fatalf("pert(%v, %v, %v): %v", lo, mode, hi, err)
		}
		if v < lo || v > hi {
			t.Fatalf("pert(%v, %v, %v) = %v out of bounds", lo, mode, hi, v)
		}
	}
}

func TestPertValueEdgeModes(t *testing.T) {
	g := New(4)
	cases := []struct{ lo, mode, hi float64 }{
		{0, 0, 10},
		{0, 10, 10},
		{5, 5, 5},
		{-3, -1, 0},
	}
	for _, tc := range cases {
		for i := 0; i < 500; i++ {
			v, err := g.PertValue(tc.lo, tc.mode, tc.hi)
			if err != nil {
				t.Fatalf("pert%v: %v", tc, err)
			}
			if v < tc.lo || v > tc.hi {
				t.Fatalf("pert%v = %v out of bounds", tc, v)
			}
		}
	}
}

func TestPertValueCentersOnMode(t *testing.T) {
	g := New(5)
	var sum float64
	const n = 20000
	for i := 0; i < n; i++ {
		v, _ := g.PertValue(0, 20, 100)
		sum += v
	}
	// Beta-PERT mean is (min + 4*mode + max) / 6 = 30.
	mean := sum / n
	if mean < 28 || mean > 32 {
		t.Fatalf("mean %v far from 30", mean)
	}
}

func TestInvalidBounds(t *testing.T) {
	g := New(6)
	if _, err := g.UniformBetween(2, 1); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := g.PertValue(0, 11, 10); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := g.IntBetween(3, 1); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecimalVariantsStayInBounds(t *testing.T) {
	g := New(7)
	lo := decimal.RequireFromString("50")
	avg := decimal.RequireFromString("80")
	hi := decimal.RequireFromString("150")
	for i := 0; i < 2000; i++ {
		p, err := g.Pert(lo, avg, hi, game.MoneyPlaces)
		if err != nil {
			t.Fatalf("pert: %v", err)
		}
		if p.LessThan(lo) || p.GreaterThan(hi) {
			t.Fatalf("pert %s out of bounds", p)
		}
		if !p.Equal(p.Round(game.MoneyPlaces)) {
			t.Fatalf("pert %s not rounded", p)
		}
		u, err := g.Uniform(lo, hi, 0)
		if err != nil {
			t.Fatalf("uniform: %v", err)
		}
		if u.LessThan(lo) || u.GreaterThan(hi) {
			t.Fatalf("uniform %s out of bounds", u)
		}
	}
}

func TestIntBetweenInclusive(t *testing.T) {
	g := New(8)
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		v, err := g.IntBetween(1, 3)
		if err != nil {
			t.Fatalf("int: %v", err)
		}
		if v < 1 || v > 3 {
			t.Fatalf("int %d out of bounds", v)
		}
		seen[v] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected all of 1..3, saw %v", seen)
	}
}
