package adapter

// Row is one record keyed by column name.
type Row map[string]interface{}

// EditedRow pairs the snapshot a row was read with and the values to write.
// OriginalData alone identifies the row; UpdatedData alone supplies SET values.
type EditedRow struct {
	OriginalData Row `json:"original_data"`
	UpdatedData  Row `json:"updated_data"`
}

// SaveRequest is a row diff produced by an editing grid.
type SaveRequest struct {
	NewRows     []Row       `json:"new_rows"`
	EditedRows  []EditedRow `json:"edited_rows"`
	DeletedRows []Row       `json:"deleted_rows"`
}

// Empty reports whether the request carries no changes.
func (r SaveRequest) Empty() bool {
	return len(r.NewRows) == 0 && len(r.EditedRows) == 0 && len(r.DeletedRows) == 0
}

// Save outcome statuses.
const (
	SaveStatusSuccess = "success"
	SaveStatusPartial = "partial"
	SaveStatusError   = "error"
)

// SaveResponse aggregates the outcome of independently executed statements.
type SaveResponse struct {
	Status          string   `json:"status"`
	Message         string   `json:"message"`
	AffectedRows    int64    `json:"affected_rows"`
	ExecutedQueries []string `json:"executed_queries"`
	Errors          []string `json:"errors,omitempty"`
}
