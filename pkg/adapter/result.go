package adapter

import (
	"fmt"
	"time"
)

// QueryResult is the common tabular result shape every engine produces.
type QueryResult struct {
	Columns            []string                 `json:"columns"`
	ColumnDisplayNames []string                 `json:"column_display_names,omitempty"`
	ColumnTypes        map[string]string        `json:"column_types,omitempty"`
	Rows               []map[string]interface{} `json:"rows"`
	RowsAffected       *int64                   `json:"rows_affected,omitempty"`
	ExecutionTime      int64                    `json:"execution_time"`
	FinalQuery         string                   `json:"final_query,omitempty"`
}

// NewQueryResult returns an empty result with non-nil slices.
func NewQueryResult() *QueryResult {
	return &QueryResult{
		Columns: []string{},
		Rows:    []map[string]interface{}{},
	}
}

// SetRowsAffected records the affected row count.
func (r *QueryResult) SetRowsAffected(n int64) {
	r.RowsAffected = &n
}

// SetElapsed records the execution time since start in milliseconds.
func (r *QueryResult) SetElapsed(start time.Time) {
	r.ExecutionTime = time.Since(start).Milliseconds()
}

// AddColumn appends a column through the namer and returns its unique name.
func (r *QueryResult) AddColumn(n *ColumnNamer, name, dataType string) string {
	unique := n.Next(name)
	r.Columns = append(r.Columns, unique)
	r.ColumnDisplayNames = append(r.ColumnDisplayNames, name)
	if dataType != "" {
		if r.ColumnTypes == nil {
			r.ColumnTypes = make(map[string]string)
		}
		r.ColumnTypes[unique] = dataType
	}
	return unique
}

// ColumnNamer produces unique column names. The first occurrence of a name
// keeps it; the n-th occurrence becomes name_n.
type ColumnNamer struct {
	seen map[string]int
}

// NewColumnNamer creates an empty namer.
func NewColumnNamer() *ColumnNamer {
	return &ColumnNamer{seen: make(map[string]int)}
}

// Next returns the unique name for the next occurrence of name.
func (n *ColumnNamer) Next(name string) string {
	n.seen[name]++
	count := n.seen[name]
	if count == 1 {
		return name
	}
	candidate := fmt.Sprintf("%s_%d", name, count)
	// A native column may already be called id_2.
	for n.seen[candidate] > 0 {
		count++
		candidate = fmt.Sprintf("%s_%d", name, count)
	}
	n.seen[candidate]++
	return candidate
}

// DedupColumns returns unique names for a list of native column names.
func DedupColumns(names []string) []string {
	n := NewColumnNamer()
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = n.Next(name)
	}
	return out
}

// ColumnInfo is one column of a TableDataResponse.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// TableDataResponse is a QueryResult reshaped into array rows in column order.
type TableDataResponse struct {
	Columns       []ColumnInfo    `json:"columns"`
	Rows          [][]interface{} `json:"rows"`
	FinalQuery    string          `json:"final_query"`
	HasMoreData   bool            `json:"has_more_data"`
	ExecutionTime int64           `json:"execution_time"`
}

// ToTableData reshapes a result. Columns without a known type report UNKNOWN.
func (r *QueryResult) ToTableData(finalQuery string, limit int, elapsed time.Duration) *TableDataResponse {
	resp := &TableDataResponse{
		Columns:       make([]ColumnInfo, 0, len(r.Columns)),
		Rows:          make([][]interface{}, 0, len(r.Rows)),
		FinalQuery:    finalQuery,
		HasMoreData:   limit > 0 && len(r.Rows) >= limit,
		ExecutionTime: elapsed.Milliseconds(),
	}
	for _, col := range r.Columns {
		dataType, ok := r.ColumnTypes[col]
		if !ok {
			dataType = "UNKNOWN"
		}
		resp.Columns = append(resp.Columns, ColumnInfo{Name: col, DataType: dataType})
	}
	for _, row := range r.Rows {
		values := make([]interface{}, len(r.Columns))
		for i, col := range r.Columns {
			values[i] = row[col]
		}
		resp.Rows = append(resp.Rows, values)
	}
	return resp
}

// BinaryPlaceholder is shown instead of raw binary column data.
func BinaryPlaceholder(n int) string {
	return fmt.Sprintf("[BINARY %d bytes]", n)
}
