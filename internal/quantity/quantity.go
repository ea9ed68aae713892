// Package quantity samples bounded random values for realised prices, costs,
// durations and demand.
package quantity

import (
	"math"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
)

// pertLambda weights the mode of the Beta-PERT distribution.
const pertLambda = 4.0

type Generator struct {
	mu   sync.Mutex
	rand *mathrand.Rand
}

func New(seed int64) *Generator {
	return &Generator{rand: mathrand.New(mathrand.NewSource(seed))}
}

func NewRandom() *Generator {
	return New(time.Now().UnixNano())
}

func (g *Generator) nextFloat() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rand.Float64()
}

func (g *Generator) nextNorm() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rand.NormFloat64()
}

// Float64 returns a value in [0, 1).
func (g *Generator) Float64() float64 { return g.nextFloat() }

// Chance reports true with probability p.
func (g *Generator) Chance(p float64) bool {
	return g.nextFloat() < p
}

// UniformBetween returns a value uniformly distributed in [min, max].
func (g *Generator) UniformBetween(min, max float64) (float64, error) {
	if !finite(min) || !finite(max) || min > max {
		return 0, game.Invalid("bounds", "need finite min <= max, got %v, %v", min, max)
	}
	if min == max {
		return min, nil
	}
	return lerp(min, max, g.nextFloat()), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// lerp maps f in [0, 1] onto [min, max] without forming max-min, which
// overflows for spans wider than MaxFloat64.
func lerp(min, max, f float64) float64 {
	return game.ClampFloat(min*(1-f)+max*f, min, max)
}

// PertValue samples a Beta-PERT distribution with mode avg bounded by [min, max].
func (g *Generator) PertValue(min, avg, max float64) (float64, error) {
	if !finite(min) || !finite(avg) || !finite(max) || min > avg || avg > max {
		return 0, game.Invalid("bounds", "need finite min <= avg <= max, got %v, %v, %v", min, avg, max)
	}
	if min == max {
		return min, nil
	}
	// Halved so the differences stay finite across the whole float64 range.
	span := max/2 - min/2
	alpha := 1 + pertLambda*(avg/2-min/2)/span
	beta := 1 + pertLambda*(max/2-avg/2)/span
	x := g.gamma(alpha)
	y := g.gamma(beta)
	frac := 0.5
	if x+y > 0 {
		frac = x / (x + y)
	}
	return lerp(min, max, frac), nil
}

// gamma draws from Gamma(shape, 1) with Marsaglia-Tsang. shape >= 1 here.
func (g *Generator) gamma(shape float64) float64 {
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = g.nextNorm()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := g.nextFloat()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if u > 0 && math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// IntBetween returns an integer uniformly distributed in [min, max].
func (g *Generator) IntBetween(min, max int) (int, error) {
	if min > max {
		return 0, game.Invalid("bounds", "min %d greater than max %d", min, max)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return min + g.rand.Intn(max-min+1), nil
}

// Uniform is UniformBetween over decimals, rounded to places and kept in bounds.
func (g *Generator) Uniform(min, max decimal.Decimal, places int32) (decimal.Decimal, error) {
	if min.GreaterThan(max) {
		return decimal.Zero, game.Invalid("bounds", "min %s greater than max %s", min, max)
	}
	if min.Equal(max) {
		return min, nil
	}
	v, err := g.UniformBetween(min.InexactFloat64(), max.InexactFloat64())
	if err != nil {
		return decimal.Zero, err
	}
	return toBounded(v, min, max, places), nil
}

// Pert is PertValue over decimals, rounded to places and kept in bounds.
func (g *Generator) Pert(min, avg, max decimal.Decimal, places int32) (decimal.Decimal, error) {
	if min.GreaterThan(avg) || avg.GreaterThan(max) {
		return decimal.Zero, game.Invalid("bounds", "need min <= avg <= max, got %s, %s, %s", min, avg, max)
	}
	if min.Equal(max) {
		return min, nil
	}
	v, err := g.PertValue(min.InexactFloat64(), avg.InexactFloat64(), max.InexactFloat64())
	if err != nil {
		return decimal.Zero, err
	}
	return toBounded(v, min, max, places), nil
}

func toBounded(v float64, min, max decimal.Decimal, places int32) decimal.Decimal {
	return game.ClampDecimal(decimal.NewFromFloat(v).Round(places), min, max)
}
