package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Common errors for table operations.
var (
	ErrParse    = errors.New("failed to parse tabular data")
	ErrNotFound = errors.New("table not found")
)

// Type identifies the inferred type of a column.
type Type string

const (
	TypeInt    Type = "int64"
	TypeFloat  Type = "float64"
	TypeBool   Type = "bool"
	TypeString Type = "string"
)

// Table is an immutable-by-contract rectangular dataset: named columns,
// one inferred type per column, ordered rows. Cells are stored column-major
// as int64, float64, bool or string depending on the column type.
type Table struct {
	Columns []string
	Types   []Type
	cells   [][]any
}

// Parse reads CSV bytes into a Table. The first record is the header.
// Ragged records, an empty header, or empty input wrap ErrParse.
func Parse(data []byte) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrParse)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrParse)
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
		if header[i] == "" {
			return nil, fmt.Errorf("%w: empty column name at position %d", ErrParse, i)
		}
	}

	raw := make([][]string, len(header))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		for i, cell := range record {
			raw[i] = append(raw[i], cell)
		}
	}

	t := &Table{
		Columns: header,
		Types:   make([]Type, len(header)),
		cells:   make([][]any, len(header)),
	}
	for i := range header {
		t.Types[i], t.cells[i] = inferColumn(raw[i])
	}
	return t, nil
}

// inferColumn picks the narrowest type that fits every cell in the column,
// trying int64, then float64, then bool, falling back to string.
func inferColumn(raw []string) (Type, []any) {
	vals := make([]any, len(raw))

	isInt := true
	for i, s := range raw {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			isInt = false
			break
		}
		vals[i] = n
	}
	if isInt {
		return TypeInt, vals
	}

	isFloat := true
	for i, s := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			isFloat = false
			break
		}
		vals[i] = f
	}
	if isFloat {
		return TypeFloat, vals
	}

	isBool := true
	for i, s := range raw {
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
		if err != nil {
			isBool = false
			break
		}
		vals[i] = b
	}
	if isBool {
		return TypeBool, vals
	}

	for i, s := range raw {
		vals[i] = s
	}
	return TypeString, vals
}

// Rows returns the number of data rows.
func (t *Table) Rows() int {
	if len(t.cells) == 0 {
		return 0
	}
	return len(t.cells[0])
}

// Cols returns the number of columns.
func (t *Table) Cols() int {
	return len(t.Columns)
}

// Column returns the cells and inferred type for a named column.
func (t *Table) Column(name string) ([]any, Type, bool) {
	for i, col := range t.Columns {
		if col == name {
			return t.cells[i], t.Types[i], true
		}
	}
	return nil, "", false
}

// Cell returns the value at (row, col index).
func (t *Table) Cell(row, col int) any {
	return t.cells[col][row]
}

// Copy returns a deep copy. The execution harness mutates its copy freely
// without affecting the stored table.
func (t *Table) Copy() *Table {
	c := &Table{
		Columns: append([]string(nil), t.Columns...),
		Types:   append([]Type(nil), t.Types...),
		cells:   make([][]any, len(t.cells)),
	}
	for i, col := range t.cells {
		c.cells[i] = append([]any(nil), col...)
	}
	return c
}

// Select returns a new Table containing the given row indices, in order.
func (t *Table) Select(rows []int) *Table {
	c := &Table{
		Columns: append([]string(nil), t.Columns...),
		Types:   append([]Type(nil), t.Types...),
		cells:   make([][]any, len(t.cells)),
	}
	for i, col := range t.cells {
		out := make([]any, 0, len(rows))
		for _, r := range rows {
			out = append(out, col[r])
		}
		c.cells[i] = out
	}
	return c
}

// Descriptor renders the compact shape/columns/dtypes summary embedded in
// the user message sent to the model.
func (t *Table) Descriptor() string {
	var b strings.Builder
	fmt.Fprintf(&b, `{"shape": [%d, %d], "columns": [`, t.Rows(), t.Cols())
	for i, col := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", col)
	}
	b.WriteString(`], "dtypes": {`)
	for i, col := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %q", col, t.Types[i])
	}
	b.WriteString("}}")
	return b.String()
}
