package sandbox

import (
	"fmt"
	"sort"
	"strconv"

	"go.starlark.net/starlark"

	"github.com/jordanhubbard/tablechat/internal/table"
)

// mapper is implemented by values the harness converts to a mapping when they
// are bound to `result`, mirroring how the response layer serializes
// table-like answers.
type mapper interface {
	ToMapping() map[string]any
}

// DataFrame exposes a table copy to the snippet under the `df` binding.
// The copy is exclusively owned by one execution, so snippet access never
// touches the stored table.
type DataFrame struct {
	tbl *table.Table
}

// NewDataFrame wraps a table for snippet consumption.
func NewDataFrame(tbl *table.Table) *DataFrame {
	return &DataFrame{tbl: tbl}
}

var (
	_ starlark.Value    = (*DataFrame)(nil)
	_ starlark.HasAttrs = (*DataFrame)(nil)
	_ starlark.Mapping  = (*DataFrame)(nil)
)

func (d *DataFrame) String() string {
	return fmt.Sprintf("DataFrame(%d rows, %d columns)", d.tbl.Rows(), d.tbl.Cols())
}

func (d *DataFrame) Type() string          { return "dataframe" }
func (d *DataFrame) Freeze()               {}
func (d *DataFrame) Truth() starlark.Bool  { return d.tbl.Rows() > 0 }
func (d *DataFrame) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: dataframe") }

// Get implements df["col"] indexing, returning the column as a Series.
func (d *DataFrame) Get(k starlark.Value) (starlark.Value, bool, error) {
	name, ok := starlark.AsString(k)
	if !ok {
		return nil, false, fmt.Errorf("dataframe index must be a column name, got %s", k.Type())
	}
	cells, typ, ok := d.tbl.Column(name)
	if !ok {
		return nil, false, nil
	}
	return &Series{name: name, typ: typ, cells: cells}, true, nil
}

func (d *DataFrame) AttrNames() []string {
	return []string{"columns", "dtypes", "group_by", "head", "shape", "sort_values", "tail", "to_dict"}
}

func (d *DataFrame) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		cols := make([]starlark.Value, d.tbl.Cols())
		for i, c := range d.tbl.Columns {
			cols[i] = starlark.String(c)
		}
		return starlark.NewList(cols), nil
	case "shape":
		return starlark.Tuple{
			starlark.MakeInt(d.tbl.Rows()),
			starlark.MakeInt(d.tbl.Cols()),
		}, nil
	case "dtypes":
		dict := starlark.NewDict(d.tbl.Cols())
		for i, c := range d.tbl.Columns {
			if err := dict.SetKey(starlark.String(c), starlark.String(string(d.tbl.Types[i]))); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case "head":
		return starlark.NewBuiltin("head", d.head), nil
	case "tail":
		return starlark.NewBuiltin("tail", d.tail), nil
	case "sort_values":
		return starlark.NewBuiltin("sort_values", d.sortValues), nil
	case "group_by":
		return starlark.NewBuiltin("group_by", d.groupBy), nil
	case "to_dict":
		return starlark.NewBuiltin("to_dict", d.toDict), nil
	}
	return nil, nil
}

func (d *DataFrame) head(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	if n > d.tbl.Rows() {
		n = d.tbl.Rows()
	}
	if n < 0 {
		n = 0
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return &DataFrame{tbl: d.tbl.Select(rows)}, nil
}

func (d *DataFrame) tail(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	total := d.tbl.Rows()
	if n > total {
		n = total
	}
	if n < 0 {
		n = 0
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = total - n + i
	}
	return &DataFrame{tbl: d.tbl.Select(rows)}, nil
}

func (d *DataFrame) sortValues(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by string
	ascending := true
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "by", &by, "ascending?", &ascending); err != nil {
		return nil, err
	}

	cells, typ, ok := d.tbl.Column(by)
	if !ok {
		return nil, fmt.Errorf("sort_values: unknown column %q", by)
	}

	rows := make([]int, len(cells))
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		less := cellLess(cells[rows[i]], cells[rows[j]], typ)
		if ascending {
			return less
		}
		return cellLess(cells[rows[j]], cells[rows[i]], typ)
	})
	return &DataFrame{tbl: d.tbl.Select(rows)}, nil
}

func (d *DataFrame) groupBy(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by, value string
	agg := "sum"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "by", &by, "value", &value, "agg?", &agg); err != nil {
		return nil, err
	}

	keys, _, ok := d.tbl.Column(by)
	if !ok {
		return nil, fmt.Errorf("group_by: unknown column %q", by)
	}
	vals, typ, ok := d.tbl.Column(value)
	if !ok {
		return nil, fmt.Errorf("group_by: unknown column %q", value)
	}
	if agg != "count" && typ != table.TypeInt && typ != table.TypeFloat {
		return nil, fmt.Errorf("group_by: cannot aggregate %s column %q with %q", typ, value, agg)
	}

	// Group in first-seen key order; starlark dicts preserve insertion order.
	order := make([]any, 0)
	groups := make(map[any][]float64)
	for i, k := range keys {
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], toFloat(vals[i]))
	}

	dict := starlark.NewDict(len(order))
	for _, k := range order {
		agged, err := aggregate(groups[k], agg)
		if err != nil {
			return nil, fmt.Errorf("group_by: %w", err)
		}
		var v starlark.Value
		if agg == "count" {
			v = starlark.MakeInt(int(agged))
		} else if typ == table.TypeInt && (agg == "sum" || agg == "min" || agg == "max") {
			v = starlark.MakeInt64(int64(agged))
		} else {
			v = starlark.Float(agged)
		}
		if err := dict.SetKey(goToStarlark(k), v); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

func (d *DataFrame) toDict(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	outer := starlark.NewDict(d.tbl.Cols())
	for _, name := range d.tbl.Columns {
		cells, _, _ := d.tbl.Column(name)
		inner := starlark.NewDict(len(cells))
		for i, c := range cells {
			if err := inner.SetKey(starlark.MakeInt(i), goToStarlark(c)); err != nil {
				return nil, err
			}
		}
		if err := outer.SetKey(starlark.String(name), inner); err != nil {
			return nil, err
		}
	}
	return outer, nil
}

// ToMapping renders the frame pandas-style: {column: {row index: value}}.
func (d *DataFrame) ToMapping() map[string]any {
	out := make(map[string]any, d.tbl.Cols())
	for _, name := range d.tbl.Columns {
		cells, _, _ := d.tbl.Column(name)
		col := make(map[string]any, len(cells))
		for i, c := range cells {
			col[strconv.Itoa(i)] = c
		}
		out[name] = col
	}
	return out
}

// Series is one named, typed column exposed to the snippet.
type Series struct {
	name  string
	typ   table.Type
	cells []any
}

var (
	_ starlark.Value     = (*Series)(nil)
	_ starlark.HasAttrs  = (*Series)(nil)
	_ starlark.Indexable = (*Series)(nil)
	_ starlark.Iterable  = (*Series)(nil)
)

func (s *Series) String() string {
	return fmt.Sprintf("Series(%s, %s, %d values)", s.name, s.typ, len(s.cells))
}

func (s *Series) Type() string          { return "series" }
func (s *Series) Freeze()               {}
func (s *Series) Truth() starlark.Bool  { return len(s.cells) > 0 }
func (s *Series) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: series") }
func (s *Series) Len() int              { return len(s.cells) }

func (s *Series) Index(i int) starlark.Value {
	return goToStarlark(s.cells[i])
}

func (s *Series) Iterate() starlark.Iterator {
	return &seriesIterator{s: s}
}

type seriesIterator struct {
	s *Series
	i int
}

func (it *seriesIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.s.cells) {
		return false
	}
	*p = goToStarlark(it.s.cells[it.i])
	it.i++
	return true
}

func (it *seriesIterator) Done() {}

func (s *Series) AttrNames() []string {
	return []string{"count", "max", "mean", "min", "sum", "to_dict", "to_list", "unique"}
}

func (s *Series) Attr(name string) (starlark.Value, error) {
	switch name {
	case "sum":
		return starlark.NewBuiltin("sum", s.sum), nil
	case "mean":
		return starlark.NewBuiltin("mean", s.mean), nil
	case "min":
		return starlark.NewBuiltin("min", s.minFn), nil
	case "max":
		return starlark.NewBuiltin("max", s.maxFn), nil
	case "count":
		return starlark.NewBuiltin("count", s.count), nil
	case "unique":
		return starlark.NewBuiltin("unique", s.unique), nil
	case "to_list":
		return starlark.NewBuiltin("to_list", s.toList), nil
	case "to_dict":
		return starlark.NewBuiltin("to_dict", s.toDict), nil
	}
	return nil, nil
}

func (s *Series) requireNumeric(op string) error {
	if s.typ != table.TypeInt && s.typ != table.TypeFloat {
		return fmt.Errorf("%s: column %q has type %s, not numeric", op, s.name, s.typ)
	}
	return nil
}

func (s *Series) sum(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := s.requireNumeric("sum"); err != nil {
		return nil, err
	}
	if s.typ == table.TypeInt {
		var total int64
		for _, c := range s.cells {
			total += c.(int64)
		}
		return starlark.MakeInt64(total), nil
	}
	var total float64
	for _, c := range s.cells {
		total += c.(float64)
	}
	return starlark.Float(total), nil
}

func (s *Series) mean(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := s.requireNumeric("mean"); err != nil {
		return nil, err
	}
	if len(s.cells) == 0 {
		return nil, fmt.Errorf("mean: column %q is empty", s.name)
	}
	var total float64
	for _, c := range s.cells {
		total += toFloat(c)
	}
	return starlark.Float(total / float64(len(s.cells))), nil
}

func (s *Series) minFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return s.extreme("min", true)
}

func (s *Series) maxFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return s.extreme("max", false)
}

func (s *Series) extreme(op string, min bool) (starlark.Value, error) {
	if len(s.cells) == 0 {
		return nil, fmt.Errorf("%s: column %q is empty", op, s.name)
	}
	best := s.cells[0]
	for _, c := range s.cells[1:] {
		less := cellLess(c, best, s.typ)
		if (min && less) || (!min && cellLess(best, c, s.typ)) {
			best = c
		}
	}
	return goToStarlark(best), nil
}

func (s *Series) count(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return starlark.MakeInt(len(s.cells)), nil
}

func (s *Series) unique(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	seen := make(map[any]bool, len(s.cells))
	out := make([]starlark.Value, 0, len(s.cells))
	for _, c := range s.cells {
		if !seen[c] {
			seen[c] = true
			out = append(out, goToStarlark(c))
		}
	}
	return starlark.NewList(out), nil
}

func (s *Series) toList(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	out := make([]starlark.Value, len(s.cells))
	for i, c := range s.cells {
		out[i] = goToStarlark(c)
	}
	return starlark.NewList(out), nil
}

func (s *Series) toDict(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	dict := starlark.NewDict(len(s.cells))
	for i, c := range s.cells {
		if err := dict.SetKey(starlark.MakeInt(i), goToStarlark(c)); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// ToMapping renders the series pandas-style: {row index: value}.
func (s *Series) ToMapping() map[string]any {
	out := make(map[string]any, len(s.cells))
	for i, c := range s.cells {
		out[strconv.Itoa(i)] = c
	}
	return out
}

// Cell ordering and conversion helpers shared by dataframe operations.

func cellLess(a, b any, typ table.Type) bool {
	switch typ {
	case table.TypeInt:
		return a.(int64) < b.(int64)
	case table.TypeFloat:
		return a.(float64) < b.(float64)
	case table.TypeBool:
		return !a.(bool) && b.(bool)
	default:
		return a.(string) < b.(string)
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func aggregate(vals []float64, agg string) (float64, error) {
	switch agg {
	case "count":
		return float64(len(vals)), nil
	case "sum":
		var total float64
		for _, v := range vals {
			total += v
		}
		return total, nil
	case "mean":
		if len(vals) == 0 {
			return 0, fmt.Errorf("mean of empty group")
		}
		var total float64
		for _, v := range vals {
			total += v
		}
		return total / float64(len(vals)), nil
	case "min":
		if len(vals) == 0 {
			return 0, fmt.Errorf("min of empty group")
		}
		best := vals[0]
		for _, v := range vals[1:] {
			if v < best {
				best = v
			}
		}
		return best, nil
	case "max":
		if len(vals) == 0 {
			return 0, fmt.Errorf("max of empty group")
		}
		best := vals[0]
		for _, v := range vals[1:] {
			if v > best {
				best = v
			}
		}
		return best, nil
	default:
		return 0, fmt.Errorf("unknown aggregation %q", agg)
	}
}

func goToStarlark(v any) starlark.Value {
	switch x := v.(type) {
	case int64:
		return starlark.MakeInt64(x)
	case float64:
		return starlark.Float(x)
	case bool:
		return starlark.Bool(x)
	case string:
		return starlark.String(x)
	default:
		return starlark.None
	}
}
