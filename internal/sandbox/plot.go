package sandbox

import (
	"bytes"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// plotModule backs the `plt` binding. Drawing calls accumulate figure state
// for the duration of one execution; after the run the harness renders the
// most recently created figure and all figure state is discarded with the
// module, so nothing leaks across runs.
type plotModule struct {
	figures []*figure
}

type figure struct {
	title  string
	xlabel string
	ylabel string
	series []plotSeries
}

type plotSeries struct {
	kind   string // bar, line, scatter, hist
	labels []string
	xs     []float64
	ys     []float64
	bins   int
}

func newPlotModule() *plotModule {
	return &plotModule{}
}

func (pm *plotModule) module() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "plt",
		Members: starlark.StringDict{
			"figure":  starlark.NewBuiltin("figure", pm.figureFn),
			"bar":     starlark.NewBuiltin("bar", pm.bar),
			"line":    starlark.NewBuiltin("line", pm.line),
			"plot":    starlark.NewBuiltin("plot", pm.line),
			"scatter": starlark.NewBuiltin("scatter", pm.scatter),
			"hist":    starlark.NewBuiltin("hist", pm.hist),
			"title":   starlark.NewBuiltin("title", pm.title),
			"xlabel":  starlark.NewBuiltin("xlabel", pm.xlabel),
			"ylabel":  starlark.NewBuiltin("ylabel", pm.ylabel),
		},
	}
}

// current returns the active figure, creating the first one implicitly so
// snippets may draw without calling plt.figure().
func (pm *plotModule) current() *figure {
	if len(pm.figures) == 0 {
		pm.figures = append(pm.figures, &figure{})
	}
	return pm.figures[len(pm.figures)-1]
}

func (pm *plotModule) figureFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	pm.figures = append(pm.figures, &figure{})
	return starlark.None, nil
}

func (pm *plotModule) bar(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var labelsV, valuesV starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "labels", &labelsV, "values", &valuesV); err != nil {
		return nil, err
	}
	labels, err := stringsFrom(labelsV)
	if err != nil {
		return nil, fmt.Errorf("bar: %w", err)
	}
	values, err := floatsFrom(valuesV)
	if err != nil {
		return nil, fmt.Errorf("bar: %w", err)
	}
	if len(labels) != len(values) {
		return nil, fmt.Errorf("bar: %d labels but %d values", len(labels), len(values))
	}
	fig := pm.current()
	fig.series = append(fig.series, plotSeries{kind: "bar", labels: labels, ys: values})
	return starlark.None, nil
}

func (pm *plotModule) line(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return pm.xySeries("line", b, args, kwargs)
}

func (pm *plotModule) scatter(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return pm.xySeries("scatter", b, args, kwargs)
}

func (pm *plotModule) xySeries(kind string, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var xV, yV starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &xV, "y?", &yV); err != nil {
		return nil, err
	}

	// Single-argument form plots values against their index.
	if yV == nil {
		ys, err := floatsFrom(xV)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		xs := make([]float64, len(ys))
		for i := range xs {
			xs[i] = float64(i)
		}
		fig := pm.current()
		fig.series = append(fig.series, plotSeries{kind: kind, xs: xs, ys: ys})
		return starlark.None, nil
	}

	xs, err := floatsFrom(xV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	ys, err := floatsFrom(yV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%s: %d x values but %d y values", b.Name(), len(xs), len(ys))
	}
	fig := pm.current()
	fig.series = append(fig.series, plotSeries{kind: kind, xs: xs, ys: ys})
	return starlark.None, nil
}

func (pm *plotModule) hist(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var valuesV starlark.Value
	bins := 10
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &valuesV, "bins?", &bins); err != nil {
		return nil, err
	}
	values, err := floatsFrom(valuesV)
	if err != nil {
		return nil, fmt.Errorf("hist: %w", err)
	}
	if bins < 1 {
		return nil, fmt.Errorf("hist: bins must be positive, got %d", bins)
	}
	fig := pm.current()
	fig.series = append(fig.series, plotSeries{kind: "hist", ys: values, bins: bins})
	return starlark.None, nil
}

func (pm *plotModule) title(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return pm.setLabel(b, args, kwargs, func(f *figure, s string) { f.title = s })
}

func (pm *plotModule) xlabel(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return pm.setLabel(b, args, kwargs, func(f *figure, s string) { f.xlabel = s })
}

func (pm *plotModule) ylabel(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return pm.setLabel(b, args, kwargs, func(f *figure, s string) { f.ylabel = s })
}

func (pm *plotModule) setLabel(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, set func(*figure, string)) (starlark.Value, error) {
	var text string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "text", &text); err != nil {
		return nil, err
	}
	set(pm.current(), text)
	return starlark.None, nil
}

// renderLast renders the most recently created figure to PNG bytes.
// The second return reports whether any figure was drawn at all.
func (pm *plotModule) renderLast() ([]byte, bool, error) {
	if len(pm.figures) == 0 {
		return nil, false, nil
	}
	fig := pm.figures[len(pm.figures)-1]
	if len(fig.series) == 0 {
		return nil, false, nil
	}

	p := plot.New()
	p.Title.Text = fig.title
	p.X.Label.Text = fig.xlabel
	p.Y.Label.Text = fig.ylabel

	for _, s := range fig.series {
		switch s.kind {
		case "bar":
			bars, err := plotter.NewBarChart(plotter.Values(s.ys), vg.Points(24))
			if err != nil {
				return nil, false, fmt.Errorf("failed to build bar chart: %w", err)
			}
			p.Add(bars)
			p.NominalX(s.labels...)
		case "line":
			ln, err := plotter.NewLine(xyPoints(s.xs, s.ys))
			if err != nil {
				return nil, false, fmt.Errorf("failed to build line plot: %w", err)
			}
			p.Add(ln)
		case "scatter":
			sc, err := plotter.NewScatter(xyPoints(s.xs, s.ys))
			if err != nil {
				return nil, false, fmt.Errorf("failed to build scatter plot: %w", err)
			}
			p.Add(sc)
		case "hist":
			h, err := plotter.NewHist(plotter.Values(s.ys), s.bins)
			if err != nil {
				return nil, false, fmt.Errorf("failed to build histogram: %w", err)
			}
			p.Add(h)
		}
	}

	writer, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return nil, false, fmt.Errorf("failed to render figure: %w", err)
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return nil, false, fmt.Errorf("failed to render figure: %w", err)
	}
	return buf.Bytes(), true, nil
}

func xyPoints(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(ys))
	for i := range ys {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	return pts
}

// floatsFrom accepts a Series, list or tuple of numbers.
func floatsFrom(v starlark.Value) ([]float64, error) {
	if s, ok := v.(*Series); ok {
		if err := s.requireNumeric("plot"); err != nil {
			return nil, err
		}
		out := make([]float64, len(s.cells))
		for i, c := range s.cells {
			out[i] = toFloat(c)
		}
		return out, nil
	}

	iter, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("expected a series or list of numbers, got %s", v.Type())
	}
	var out []float64
	it := iter.Iterate()
	defer it.Done()
	var elem starlark.Value
	for it.Next(&elem) {
		f, ok := starlark.AsFloat(elem)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %s", elem.Type())
		}
		out = append(out, f)
	}
	return out, nil
}

// stringsFrom accepts a Series, list or tuple and stringifies each element.
func stringsFrom(v starlark.Value) ([]string, error) {
	if s, ok := v.(*Series); ok {
		out := make([]string, len(s.cells))
		for i, c := range s.cells {
			out[i] = fmt.Sprint(c)
		}
		return out, nil
	}

	iter, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("expected a series or list of labels, got %s", v.Type())
	}
	var out []string
	it := iter.Iterate()
	defer it.Done()
	var elem starlark.Value
	for it.Next(&elem) {
		if s, ok := starlark.AsString(elem); ok {
			out = append(out, s)
		} else {
			out = append(out, elem.String())
		}
	}
	return out, nil
}
