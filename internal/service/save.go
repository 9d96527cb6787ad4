package service

import (
	"context"
	"fmt"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// statement is one generated mutation, or the error building it.
type statement struct {
	label string
	query string
	err   error
}

// SaveChanges applies a row diff. Deletes run first, then updates, then
// inserts. Every statement runs on its own; a failure does not stop the rest.
func (s *Service) SaveChanges(ctx context.Context, id, database, schema, table string, req adapter.SaveRequest) (*adapter.SaveResponse, error) {
	if req.Empty() {
		return &adapter.SaveResponse{
			Status:          adapter.SaveStatusSuccess,
			Message:         "No changes to save",
			ExecutedQueries: []string{},
		}, nil
	}

	cfg, err := s.ensureConnected(ctx, id)
	if err != nil {
		return nil, err
	}
	crud, err := adapter.GetCRUDBuilder(cfg.Type)
	if err != nil {
		return nil, err
	}
	crud = databaseScoped(cfg.Type, crud, database)

	tableSchema, err := s.pool.GetTableSchema(ctx, id, database, schemaQualified(cfg.Type, schema, table))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema for %s: %w", table, err)
	}

	statements := buildStatements(crud, table, schema, tableSchema, req)

	resp := &adapter.SaveResponse{ExecutedQueries: []string{}}
	for _, st := range statements {
		if st.err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", st.label, st.err))
			continue
		}
		n, err := s.pool.ExecuteUpdate(ctx, id, st.query)
		if err != nil {
			s.safeLog("warn", "Save statement failed on %s: %v", id, err)
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", st.label, err))
			continue
		}
		resp.AffectedRows += n
		resp.ExecutedQueries = append(resp.ExecutedQueries, st.query)
	}

	switch {
	case len(resp.Errors) == 0:
		resp.Status = adapter.SaveStatusSuccess
		resp.Message = fmt.Sprintf("Successfully saved %d changes", len(resp.ExecutedQueries))
	case len(resp.ExecutedQueries) > 0:
		resp.Status = adapter.SaveStatusPartial
		resp.Message = fmt.Sprintf("Saved %d of %d changes", len(resp.ExecutedQueries), len(statements))
	default:
		resp.Status = adapter.SaveStatusError
		resp.Message = "Failed to save changes"
	}
	s.safeLog("info", "Save on %s.%s finished with status %s", id, table, resp.Status)
	return resp, nil
}

// databaseScoped points mutations at database on engines where one connection
// can reach several databases. PostgreSQL connections are bound to a single
// database, Redis writes go to the selected index, and Ignite has none.
func databaseScoped(dbType adapter.DatabaseType, crud adapter.CRUDBuilder, database string) adapter.CRUDBuilder {
	if database == "" {
		return crud
	}
	switch dbType {
	case adapter.MySQL, adapter.MSSQL, adapter.MongoDB:
		if scoper, ok := crud.(adapter.DatabaseScoper); ok {
			return scoper.InDatabase(database)
		}
	}
	return crud
}

func buildStatements(crud adapter.CRUDBuilder, table, schema string, tableSchema *adapter.TableSchema, req adapter.SaveRequest) []statement {
	pks := tableSchema.PrimaryKeys()
	statements := make([]statement, 0, len(req.DeletedRows)+len(req.EditedRows)+len(req.NewRows))

	for i, row := range req.DeletedRows {
		q, err := crud.BuildDeleteQuery(table, schema, row, pks)
		statements = append(statements, statement{label: fmt.Sprintf("delete row %d", i+1), query: q, err: err})
	}
	for i, edited := range req.EditedRows {
		q, err := crud.BuildUpdateQuery(table, schema, edited, pks, tableSchema)
		statements = append(statements, statement{label: fmt.Sprintf("update row %d", i+1), query: q, err: err})
	}
	for i, row := range req.NewRows {
		q, err := crud.BuildInsertQuery(table, schema, row, tableSchema)
		statements = append(statements, statement{label: fmt.Sprintf("insert row %d", i+1), query: q, err: err})
	}
	return statements
}
