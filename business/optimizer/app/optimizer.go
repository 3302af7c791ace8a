// Package app implements the hybrid optimizer: dual decomposition over a
// pool network, with the dual minimized by projected L-BFGS.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	market "github.com/fd1az/cfmm-arbitrage/business/market/domain"
	"github.com/fd1az/cfmm-arbitrage/business/optimizer/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

const (
	tracerName = "optimizer"
	meterName  = "optimizer"
)

type optimizerMetrics struct {
	runs        metric.Int64Counter
	evaluations metric.Int64Counter
	iterations  metric.Int64Histogram
	duration    metric.Float64Histogram
}

// HybridOptimizer finds market clearing prices for a network of pools.
//
// It minimizes the dual g(v) = U*(v) + sum_i arb_i(A_i^T v) over v >= 0,
// where U* is the utility conjugate and arb_i the optimal arbitrage value of
// pool i. The gradient is the excess demand -psi* + sum_i A_i delta_i; it
// vanishes at the optimum. Prices are scaled by per-token depth so tokens
// with very different decimals are equally conditioned.
type HybridOptimizer struct {
	config domain.Config
	logger logger.LoggerInterface

	tracer  trace.Tracer
	metrics *optimizerMetrics
}

// NewHybridOptimizer validates cfg and creates an optimizer.
func NewHybridOptimizer(cfg domain.Config, log logger.LoggerInterface) (*HybridOptimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &HybridOptimizer{
		config: cfg,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
	if err := o.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return o, nil
}

func (o *HybridOptimizer) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	o.metrics = &optimizerMetrics{}

	o.metrics.runs, err = meter.Int64Counter(
		"optimizer_runs_total",
		metric.WithDescription("Optimizer runs by stop reason"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return err
	}

	o.metrics.evaluations, err = meter.Int64Counter(
		"optimizer_evaluations_total",
		metric.WithDescription("Dual objective evaluations"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return err
	}

	o.metrics.iterations, err = meter.Int64Histogram(
		"optimizer_iterations",
		metric.WithDescription("Iterations per optimizer run"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		return err
	}

	o.metrics.duration, err = meter.Float64Histogram(
		"optimizer_duration_ms",
		metric.WithDescription("Optimizer run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Config returns the optimizer configuration.
func (o *HybridOptimizer) Config() domain.Config { return o.config }

// Optimize runs the optimizer from initial prices (raw units, one per token
// of the problem). All-zero initial prices start from ones.
//
// Non-convergence is reported in the result, not as an error. A run that
// stalls with some prices at zero settles the pools trading only unpriced
// tokens: it converges when their trades cover the shortfall and otherwise
// ends with Reason = boundary and the best trades found. Cancellation
// or an exhausted time budget returns the last accepted iterate with
// Reason = cancelled and a nil error. A failing pool aborts the run with an
// error wrapping *domain.PoolError.
func (o *HybridOptimizer) Optimize(ctx context.Context, problem domain.Problem, utility domain.Utility, initial []float64) (*domain.Result, error) {
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "optimizer.optimize",
		trace.WithAttributes(
			attribute.Int("markets", len(problem.Markets)),
			attribute.Int("tokens", problem.NumTokens()),
		),
	)
	defer span.End()

	if err := problem.Validate(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidInput, "optimizer problem")
	}
	if utility == nil {
		return nil, apperror.Validation(apperror.CodeInvalidInput, "optimizer utility is nil")
	}

	n := problem.NumTokens()
	prices, err := startingPrices(initial, n)
	if err != nil {
		return nil, err
	}

	scales := make([]float64, n)
	x0 := make([]float64, n)
	for j, d := range problem.Depths {
		scales[j] = 1
		if d > 0 && !math.IsInf(d, 0) {
			scales[j] = d
		}
		x0[j] = prices[j] * scales[j]
	}

	if o.config.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.MaxDuration)
		defer cancel()
	}

	e := &evaluator{
		problem: problem,
		utility: utility,
		scales:  scales,
		workers: o.config.Workers,
		evals:   o.metrics.evaluations,
	}

	cur, err := e.eval(ctx, x0)
	if err != nil {
		if ctx.Err() != nil {
			return o.finish(ctx, span, problem, scales, point{x: x0}, nil, 0, domain.ReasonCancelled, start), nil
		}
		return nil, o.fail(ctx, span, err)
	}

	hist := newLBFGS(o.config.Memory)
	values := []float64{cur.value}
	reason := domain.ReasonMaxIterations
	iter := 0

	for iter < o.config.MaxIterations {
		pg := projectedGradient(cur.x, cur.grad)
		if norm(pg) < o.config.Tolerance {
			reason = domain.ReasonConverged
			break
		}
		if ctx.Err() != nil {
			reason = domain.ReasonCancelled
			break
		}
		iter++

		d := hist.direction(pg)
		if d == nil {
			d = steepest(cur.x, pg)
		}
		clampDirection(cur.x, d)
		if dot(d, cur.grad) >= 0 {
			hist.reset()
			d = steepest(cur.x, pg)
			clampDirection(cur.x, d)
		}

		next, ok, err := backtrack(ctx, e.eval, cur, d)
		if err != nil {
			if ctx.Err() != nil {
				reason = domain.ReasonCancelled
				break
			}
			return nil, o.fail(ctx, span, err)
		}
		if !ok {
			reason = domain.ReasonLineSearchFailed
			break
		}

		s := make([]float64, n)
		y := make([]float64, n)
		for j := 0; j < n; j++ {
			s[j] = next.x[j] - cur.x[j]
			y[j] = next.grad[j] - cur.grad[j]
		}
		hist.push(s, y)

		cur = next
		values = append(values, cur.value)
	}

	// A stall on v >= 0 is often an optimum the oracle's subgradient cannot
	// show; settle the unpriced pools before giving up.
	if reason == domain.ReasonLineSearchFailed && onBoundary(cur.x) {
		settled, certified, err := e.settleBoundary(ctx, cur, o.config.Tolerance)
		switch {
		case err != nil && ctx.Err() != nil:
			reason = domain.ReasonCancelled
		case err != nil:
			return nil, o.fail(ctx, span, err)
		case certified:
			cur, reason = settled, domain.ReasonConverged
		default:
			cur, reason = settled, domain.ReasonBoundary
		}
	}

	if reason == domain.ReasonMaxIterations && norm(projectedGradient(cur.x, cur.grad)) < o.config.Tolerance {
		reason = domain.ReasonConverged
	}

	return o.finish(ctx, span, problem, scales, cur, values, iter, reason, start), nil
}

func (o *HybridOptimizer) finish(
	ctx context.Context,
	span trace.Span,
	problem domain.Problem,
	scales []float64,
	cur point,
	values []float64,
	iter int,
	reason domain.Reason,
	start time.Time,
) *domain.Result {
	n := problem.NumTokens()
	res := &domain.Result{
		Tokens:     problem.Tokens,
		Prices:     make([]float64, n),
		NetTrade:   make([]float64, n),
		DualValue:  cur.value,
		Iterations: iter,
		Converged:  reason == domain.ReasonConverged,
		Reason:     reason,
		Trace:      values,
		Elapsed:    time.Since(start),
	}
	for j := range res.Prices {
		res.Prices[j] = cur.x[j] / scales[j]
	}

	if cur.grad != nil {
		res.GradientNorm = norm(projectedGradient(cur.x, cur.grad))
	} else {
		res.GradientNorm = math.Inf(1)
	}

	if cur.trades != nil {
		res.PoolTrades = make([]domain.PoolTrade, len(cur.trades))
		for i, t := range cur.trades {
			res.PoolTrades[i] = domain.PoolTrade{
				Pool:  problem.Markets[i].ID(),
				Delta: t.Delta,
				Value: t.Value,
			}
			if t.Delta != nil {
				problem.Couplings[i].Lift(t.Delta, res.NetTrade)
			}
		}
	}

	attrs := metric.WithAttributes(attribute.String("reason", string(reason)))
	o.metrics.runs.Add(ctx, 1, attrs)
	o.metrics.iterations.Record(ctx, int64(iter), attrs)
	o.metrics.duration.Record(ctx, float64(res.Elapsed.Milliseconds()), attrs)

	span.SetAttributes(
		attribute.Int("iterations", iter),
		attribute.String("reason", string(reason)),
		attribute.Float64("gradient_norm", res.GradientNorm),
	)
	span.SetStatus(codes.Ok, string(reason))

	o.logger.Debug(ctx, "optimizer finished",
		"reason", reason,
		"iterations", iter,
		"dual_value", res.DualValue,
		"gradient_norm", res.GradientNorm,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)

	return res
}

func (o *HybridOptimizer) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "optimizer failed")
	o.metrics.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "error")))

	opts := []apperror.Option{apperror.WithCause(err)}
	var poolErr *domain.PoolError
	if errors.As(err, &poolErr) {
		opts = append(opts, apperror.WithContext("pool "+poolErr.Pool.Hex()))
	}
	return apperror.New(apperror.CodeOptimizerFailed, opts...)
}

func startingPrices(initial []float64, n int) ([]float64, error) {
	if len(initial) != n {
		return nil, apperror.Validation(apperror.CodeInvalidPrices,
			fmt.Sprintf("%d initial prices for %d tokens", len(initial), n))
	}

	prices := make([]float64, n)
	allZero := true
	for j, v := range initial {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, apperror.Validation(apperror.CodeInvalidPrices,
				fmt.Sprintf("initial price %d is %v", j, v))
		}
		if v != 0 {
			allZero = false
		}
		prices[j] = v
	}
	if allZero {
		for j := range prices {
			prices[j] = 1
		}
	}
	return prices, nil
}

// evaluator computes the scaled dual objective and its gradient.
type evaluator struct {
	problem domain.Problem
	utility domain.Utility
	scales  []float64
	workers int
	evals   metric.Int64Counter
}

func (e *evaluator) eval(ctx context.Context, x []float64) (point, error) {
	if err := ctx.Err(); err != nil {
		return point{}, err
	}
	e.evals.Add(ctx, 1)

	prices := make([]float64, len(x))
	for j := range x {
		prices[j] = x[j] / e.scales[j]
	}

	conj, err := e.utility.Optimal(prices)
	if err != nil {
		return point{}, fmt.Errorf("utility conjugate: %w", err)
	}

	markets := e.problem.Markets
	trades := make([]market.Trade, len(markets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, m := range markets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			coupling := e.problem.Couplings[i]
			t, err := m.Arbitrage(coupling.Restrict(prices))
			if err != nil {
				return &domain.PoolError{Pool: m.ID(), Err: err}
			}
			if t.Delta != nil && len(t.Delta) != len(coupling.Global) {
				return &domain.PoolError{Pool: m.ID(),
					Err: fmt.Errorf("trade has %d entries for %d tokens", len(t.Delta), len(coupling.Global))}
			}
			trades[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return point{}, err
	}

	value := conj.Value
	grad := append([]float64(nil), conj.Gradient...)
	for i, t := range trades {
		value += t.Value
		if t.Delta != nil {
			e.problem.Couplings[i].Lift(t.Delta, grad)
		}
	}
	for j := range grad {
		grad[j] /= e.scales[j]
	}

	return point{x: x, value: value, grad: grad, trades: trades}, nil
}
