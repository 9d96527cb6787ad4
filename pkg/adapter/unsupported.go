package adapter

import "context"

// UnsupportedMetadata is a nil object for engines that lack some catalog
// concepts. Drivers embed it and override what they support.
type UnsupportedMetadata struct{}

func (UnsupportedMetadata) GetViews(ctx context.Context, database, schema string) ([]View, error) {
	return []View{}, nil
}

func (UnsupportedMetadata) GetIndexes(ctx context.Context, database, schema string) ([]DbIndex, error) {
	return []DbIndex{}, nil
}

func (UnsupportedMetadata) GetProcedures(ctx context.Context, database, schema string) ([]Procedure, error) {
	return []Procedure{}, nil
}

func (UnsupportedMetadata) GetTriggers(ctx context.Context, database, schema string) ([]Trigger, error) {
	return []Trigger{}, nil
}

func (UnsupportedMetadata) GetEvents(ctx context.Context, database, schema string) ([]Event, error) {
	return []Event{}, nil
}

func (UnsupportedMetadata) GetTableRelationships(ctx context.Context, database, schema, table string) ([]TableRelationship, error) {
	return []TableRelationship{}, nil
}

func (UnsupportedMetadata) GetTableStatistics(ctx context.Context, database, schema, table string) (*TableStatistics, error) {
	return &TableStatistics{}, nil
}

func (UnsupportedMetadata) GetProcedureSource(ctx context.Context, database, schema, name, procType string) (string, error) {
	return "", nil
}

// UnsupportedCRUD is the CRUD builder for engines whose rows cannot be edited.
type UnsupportedCRUD struct {
	DatabaseType DatabaseType
}

func (u UnsupportedCRUD) BuildInsertQuery(table, schema string, row Row, tableSchema *TableSchema) (string, error) {
	return "", NewUnsupportedOperationError(u.DatabaseType, "insert", "")
}

func (u UnsupportedCRUD) BuildUpdateQuery(table, schema string, edited EditedRow, primaryKeys []string, tableSchema *TableSchema) (string, error) {
	return "", NewUnsupportedOperationError(u.DatabaseType, "update", "")
}

func (u UnsupportedCRUD) BuildDeleteQuery(table, schema string, row Row, primaryKeys []string) (string, error) {
	return "", NewUnsupportedOperationError(u.DatabaseType, "delete", "")
}
