package adapter

// Database is one database (or keyspace, or cache) on a server.
type Database struct {
	Name string `json:"name"`
}

// Table is one table, collection, or synthetic key table.
type Table struct {
	Name      string  `json:"name"`
	Schema    *string `json:"schema,omitempty"`
	SizeBytes *uint64 `json:"size_bytes,omitempty"`
}

// View is a named view.
type View struct {
	Name   string  `json:"name"`
	Schema *string `json:"schema,omitempty"`
}

// Column describes one column of a TableSchema.
type Column struct {
	Name            string  `json:"name"`
	DataType        string  `json:"data_type"`
	Nullable        bool    `json:"nullable"`
	DefaultValue    *string `json:"default_value,omitempty"`
	IsPrimaryKey    bool    `json:"is_primary_key"`
	IsAutoIncrement bool    `json:"is_auto_increment"`
}

// Index describes an index of a TableSchema.
type Index struct {
	Name      string   `json:"name"`
	Columns   []string `json:"columns"`
	IsUnique  bool     `json:"is_unique"`
	IndexType *string  `json:"index_type,omitempty"`
	Ascending *bool    `json:"ascending,omitempty"`
}

// ForeignKey describes a single-column reference.
type ForeignKey struct {
	Name             string  `json:"name"`
	Column           string  `json:"column"`
	ReferencedTable  string  `json:"referenced_table"`
	ReferencedColumn string  `json:"referenced_column"`
	OnDelete         *string `json:"on_delete,omitempty"`
	OnUpdate         *string `json:"on_update,omitempty"`
}

// TableSchema is fetched on demand and never cached. Its column order is the
// authoritative order for generated INSERT and UPDATE statements.
type TableSchema struct {
	TableName   string       `json:"table_name"`
	Columns     []Column     `json:"columns"`
	Indexes     []Index      `json:"indexes"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// PrimaryKeys returns the primary key column names in column order.
func (s *TableSchema) PrimaryKeys() []string {
	if s == nil {
		return nil
	}
	var keys []string
	for _, c := range s.Columns {
		if c.IsPrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

// DbIndex is an index listed by the metadata browser.
type DbIndex struct {
	Name      string   `json:"name"`
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
	IsUnique  bool     `json:"is_unique"`
	IndexType *string  `json:"index_type,omitempty"`
	Ascending *bool    `json:"ascending,omitempty"`
}

// Procedure is a stored procedure or function.
type Procedure struct {
	Name          string  `json:"name"`
	Schema        *string `json:"schema,omitempty"`
	ProcedureType *string `json:"procedure_type,omitempty"`
	OID           *string `json:"oid,omitempty"`
}

// Trigger is a table trigger.
type Trigger struct {
	Name        string  `json:"name"`
	TableName   string  `json:"table_name"`
	Event       string  `json:"event"`
	Timing      string  `json:"timing"`
	TriggerType *string `json:"trigger_type,omitempty"`
}

// Event is a scheduled event.
type Event struct {
	Name          string  `json:"name"`
	Status        *string `json:"status,omitempty"`
	IntervalValue *string `json:"interval_value,omitempty"`
	IntervalField *string `json:"interval_field,omitempty"`
}

// Relationship types.
const (
	RelationshipForeignKey   = "FOREIGN_KEY"
	RelationshipReferencedBy = "REFERENCED_BY"
)

// TableRelationship is a foreign key seen from either end.
type TableRelationship struct {
	ConstraintName       string  `json:"constraint_name"`
	TableName            string  `json:"table_name"`
	ColumnName           string  `json:"column_name"`
	ReferencedTableName  string  `json:"referenced_table_name"`
	ReferencedColumnName string  `json:"referenced_column_name"`
	RelationshipType     string  `json:"relationship_type"`
	OnDelete             *string `json:"on_delete,omitempty"`
	OnUpdate             *string `json:"on_update,omitempty"`
}

// TableStatistics holds whatever size and timing figures the engine exposes.
type TableStatistics struct {
	RowCount      *int64  `json:"row_count,omitempty"`
	AvgRowLength  *int64  `json:"avg_row_length,omitempty"`
	DataLength    *int64  `json:"data_length,omitempty"`
	MaxDataLength *int64  `json:"max_data_length,omitempty"`
	DataFree      *int64  `json:"data_free,omitempty"`
	IndexLength   *int64  `json:"index_length,omitempty"`
	RowFormat     *string `json:"row_format,omitempty"`
	CreateTime    *string `json:"create_time,omitempty"`
	UpdateTime    *string `json:"update_time,omitempty"`
	CheckTime     *string `json:"check_time,omitempty"`
	Collation     *string `json:"collation,omitempty"`
	Checksum      *string `json:"checksum,omitempty"`
	Engine        *string `json:"engine,omitempty"`
	Comment       *string `json:"comment,omitempty"`
	TableSize     *string `json:"table_size,omitempty"`
	Pages         *int64  `json:"pages,omitempty"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

// Int64Ptr returns a pointer to n.
func Int64Ptr(n int64) *int64 {
	return &n
}

// Uint64Ptr returns a pointer to n.
func Uint64Ptr(n uint64) *uint64 {
	return &n
}
