package sandbox

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// numericModule backs the `np` binding: the small set of numeric helpers the
// system prompt tells the model it may rely on. Starlark has no sum builtin,
// so these cover the aggregations snippets reach for.
func numericModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "np",
		Members: starlark.StringDict{
			"sum":   starlark.NewBuiltin("sum", npReduce(func(vals []float64) float64 { return reduceSum(vals) })),
			"mean":  starlark.NewBuiltin("mean", npMean),
			"min":   starlark.NewBuiltin("min", npReduceNonEmpty("min", reduceMin)),
			"max":   starlark.NewBuiltin("max", npReduceNonEmpty("max", reduceMax)),
			"abs":   starlark.NewBuiltin("abs", npUnary(math.Abs)),
			"sqrt":  starlark.NewBuiltin("sqrt", npUnary(math.Sqrt)),
			"floor": starlark.NewBuiltin("floor", npUnary(math.Floor)),
			"ceil":  starlark.NewBuiltin("ceil", npUnary(math.Ceil)),
			"round": starlark.NewBuiltin("round", npRound),
		},
	}
}

func reduceSum(vals []float64) float64 {
	var total float64
	for _, v := range vals {
		total += v
	}
	return total
}

func reduceMin(vals []float64) float64 {
	best := vals[0]
	for _, v := range vals[1:] {
		if v < best {
			best = v
		}
	}
	return best
}

func reduceMax(vals []float64) float64 {
	best := vals[0]
	for _, v := range vals[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

func npReduce(reduce func([]float64) float64) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &v); err != nil {
			return nil, err
		}
		vals, err := floatsFrom(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.Float(reduce(vals)), nil
	}
}

func npReduceNonEmpty(name string, reduce func([]float64) float64) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &v); err != nil {
			return nil, err
		}
		vals, err := floatsFrom(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if len(vals) == 0 {
			return nil, fmt.Errorf("%s of empty sequence", name)
		}
		return starlark.Float(reduce(vals)), nil
	}
}

func npMean(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &v); err != nil {
		return nil, err
	}
	vals, err := floatsFrom(v)
	if err != nil {
		return nil, fmt.Errorf("mean: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("mean of empty sequence")
	}
	return starlark.Float(reduceSum(vals) / float64(len(vals))), nil
}

func npUnary(fn func(float64) float64) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x float64
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x); err != nil {
			return nil, err
		}
		return starlark.Float(fn(x)), nil
	}
}

func npRound(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x float64
	digits := 0
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x, "digits?", &digits); err != nil {
		return nil, err
	}
	scale := math.Pow(10, float64(digits))
	return starlark.Float(math.Round(x*scale) / scale), nil
}
