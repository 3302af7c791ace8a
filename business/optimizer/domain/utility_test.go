package domain

import (
	"math"
	"testing"
)

func TestQuadratic_ConjugateMatchesDefinition(t *testing.T) {
	q, err := NewQuadratic([]float64{0.5, 0, 2}, []float64{1, 4, 0.25}, []float64{-3, 1, 2})
	if err != nil {
		t.Fatal(err)
	}

	for _, prices := range [][]float64{{0, 0, 0}, {1, 1, 1}, {0.2, 3, 1.5}} {
		conj, err := q.Optimal(prices)
		if err != nil {
			t.Fatal(err)
		}

		psi := make([]float64, len(prices))
		for j, g := range conj.Gradient {
			psi[j] = -g
		}
		primal := q.Value(psi) - dotf(prices, psi)
		if math.Abs(primal-conj.Value) > 1e-9 {
			t.Errorf("prices %v: U(psi*) - v·psi* = %v, conjugate %v", prices, primal, conj.Value)
		}

		// psi* is the maximizer: any perturbation scores lower.
		for j := range psi {
			bumped := append([]float64(nil), psi...)
			bumped[j] += 0.1
			if q.Value(bumped)-dotf(prices, bumped) > conj.Value {
				t.Errorf("prices %v: perturbing %d improved the objective", prices, j)
			}
		}
	}
}

func TestQuadratic_Optimal(t *testing.T) {
	q, err := NewQuadraticTarget([]float64{-10, 11}, 1)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		prices   []float64
		wantErr  bool
		wantInf  bool
		wantGrad []float64
	}{
		{"at_zero", []float64{0, 0}, false, false, []float64{10, -11}},
		{"unit", []float64{1, 1}, false, false, []float64{11, -10}},
		{"negative_price", []float64{-1, 1}, false, true, []float64{0, 0}},
		{"nan_price", []float64{math.NaN(), 1}, true, false, nil},
		{"wrong_length", []float64{1}, true, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conj, err := q.Optimal(tt.prices)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if math.IsInf(conj.Value, 1) != tt.wantInf {
				t.Errorf("Value = %v", conj.Value)
			}
			for j, g := range tt.wantGrad {
				if conj.Gradient[j] != g {
					t.Errorf("Gradient = %v, want %v", conj.Gradient, tt.wantGrad)
					break
				}
			}
		})
	}

	if v := q.Value([]float64{1}); !math.IsInf(v, -1) {
		t.Errorf("Value of mismatched trade = %v, want -Inf", v)
	}
}

func TestUtilityConstructors(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (*Quadratic, error)
		wantErr bool
	}{
		{"target", func() (*Quadratic, error) { return NewQuadraticTarget([]float64{1, 2}, 1) }, false},
		{"zero_weight", func() (*Quadratic, error) { return NewQuadraticTarget([]float64{1, 2}, 0) }, true},
		{"empty", func() (*Quadratic, error) { return NewQuadratic(nil, nil, nil) }, true},
		{"mismatched", func() (*Quadratic, error) { return NewQuadratic([]float64{0}, []float64{1, 1}, []float64{0, 0}) }, true},
		{"inf_target", func() (*Quadratic, error) { return NewQuadraticTarget([]float64{math.Inf(1)}, 1) }, true},
		{"exact_out", func() (*Quadratic, error) { return NewExactOut(3, 2, 5, 1) }, false},
		{"exact_out_bad_index", func() (*Quadratic, error) { return NewExactOut(3, 3, 5, 1) }, true},
		{"regularized", func() (*Quadratic, error) {
			return NewRegularizedArbitrage([]float64{2000, 1}, []float64{1e21, 1e12}, 1)
		}, false},
		{"regularized_zero_depth", func() (*Quadratic, error) {
			return NewRegularizedArbitrage([]float64{2000, 1}, []float64{0, 1e12}, 1)
		}, true},
		{"regularized_zero_kappa", func() (*Quadratic, error) {
			return NewRegularizedArbitrage([]float64{1}, []float64{1}, 0)
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := tt.build()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && q.Len() == 0 {
				t.Error("empty utility")
			}
		})
	}
}

func TestExactOut_TargetsOneToken(t *testing.T) {
	q, err := NewExactOut(3, 1, 5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := q.Value([]float64{0, 5, 0}); got != 0 {
		t.Errorf("Value at target = %v, want 0", got)
	}
	if got := q.Value([]float64{0, 4, 0}); got >= 0 {
		t.Errorf("Value off target = %v, want negative", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero_iterations", func(c *Config) { c.MaxIterations = 0 }, true},
		{"zero_tolerance", func(c *Config) { c.Tolerance = 0 }, true},
		{"nan_tolerance", func(c *Config) { c.Tolerance = math.NaN() }, true},
		{"zero_memory", func(c *Config) { c.Memory = 0 }, true},
		{"zero_workers", func(c *Config) { c.Workers = 0 }, true},
		{"negative_duration", func(c *Config) { c.MaxDuration = -1 }, true},
		{"no_duration", func(c *Config) { c.MaxDuration = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func dotf(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
