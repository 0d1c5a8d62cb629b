package database

// Row is a generic record: the column names of the result set and the
// Go-native values of one row, in column order.
type Row struct {
	Columns []string
	Values  []any
}

// Map returns the row keyed by column name. []byte values are converted to
// strings, which is what text columns arrive as from most drivers.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, col := range r.Columns {
		if i >= len(r.Values) {
			m[col] = nil
			continue
		}
		if b, ok := r.Values[i].([]byte); ok {
			m[col] = string(b)
			continue
		}
		m[col] = r.Values[i]
	}
	return m
}

// BindRows is a BindFunc that scans every column into a Row.
// Each record gets its own value slice, so rows are safe to keep after the
// batch callback returns.
func BindRows() BindFunc[Row] {
	return func(_ any, cols []Column) (ScanFunc[Row], error) {
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}
		return func(rec *Row) []any {
			rec.Columns = names
			rec.Values = make([]any, len(names))
			dest := make([]any, len(names))
			for i := range rec.Values {
				dest[i] = &rec.Values[i]
			}
			return dest
		}, nil
	}
}

// Rows collects the successfully scanned records of a batch as maps.
func Rows(b *Batch[Row]) []map[string]any {
	out := make([]map[string]any, 0, b.Fetched)
	for i := 0; i < b.Fetched; i++ {
		if b.Status[i] != RowSuccess {
			continue
		}
		out = append(out, b.Records[i].Map())
	}
	return out
}
