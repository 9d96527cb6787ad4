package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// GetDatabases lists non-template databases.
func (c *Connection) GetDatabases(ctx context.Context) ([]adapter.Database, error) {
	pool, err := c.handle("get_databases")
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, "SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname")
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_databases", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_databases", err)
	}

	databases := make([]adapter.Database, len(names))
	for i, name := range names {
		databases[i] = adapter.Database{Name: name}
	}
	return databases, nil
}

// GetTables lists user tables across schemas with their total relation size.
// The connection is already bound to one database, so database is unused.
func (c *Connection) GetTables(ctx context.Context, database string) ([]adapter.Table, error) {
	pool, err := c.handle("get_tables")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT schemaname, tablename,
			pg_total_relation_size(quote_ident(schemaname) || '.' || quote_ident(tablename))
		FROM pg_tables
		WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
		ORDER BY schemaname, tablename`

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_tables", err)
	}
	defer rows.Close()

	tables := []adapter.Table{}
	for rows.Next() {
		var schema, name string
		var size *int64
		if err := rows.Scan(&schema, &name, &size); err != nil {
			return nil, adapter.WrapError(adapter.PostgreSQL, "get_tables", err)
		}
		table := adapter.Table{Name: name, Schema: adapter.StringPtr(schema)}
		if size != nil {
			if *size < 0 {
				*size = 0
			}
			table.SizeBytes = adapter.Uint64Ptr(uint64(*size))
		}
		tables = append(tables, table)
	}
	return tables, rows.Err()
}

// GetTableSchema reads columns, indexes, and foreign keys. table may be
// "schema.table"; names are matched lowercased.
func (c *Connection) GetTableSchema(ctx context.Context, database, table string) (*adapter.TableSchema, error) {
	pool, err := c.handle("get_table_schema")
	if err != nil {
		return nil, err
	}
	schemaName, tableName := SplitTableName(table)

	schema := &adapter.TableSchema{
		TableName:   table,
		Columns:     []adapter.Column{},
		Indexes:     []adapter.Index{},
		ForeignKeys: []adapter.ForeignKey{},
	}

	columnQuery := `
		SELECT c.column_name, c.data_type, c.character_maximum_length, c.numeric_precision,
			c.numeric_scale, c.is_nullable, c.column_default,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema AND tc.table_name = c.table_name
					AND kcu.column_name = c.column_name
			) AS is_primary
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`

	rows, err := pool.Query(ctx, columnQuery, schemaName, tableName)
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_schema", err)
	}
	for rows.Next() {
		var name, dataType, nullable string
		var charLen, precision, scale *int64
		var def *string
		var isPrimary bool
		if err := rows.Scan(&name, &dataType, &charLen, &precision, &scale, &nullable, &def, &isPrimary); err != nil {
			rows.Close()
			return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_schema", err)
		}
		schema.Columns = append(schema.Columns, adapter.Column{
			Name:            name,
			DataType:        NormalizeDataType(dataType, charLen, precision, scale),
			Nullable:        nullable == "YES",
			DefaultValue:    def,
			IsPrimaryKey:    isPrimary,
			IsAutoIncrement: def != nil && strings.Contains(*def, "nextval"),
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_schema", err)
	}

	indexRows, err := pool.Query(ctx,
		"SELECT indexname, indexdef FROM pg_indexes WHERE schemaname = $1 AND tablename = $2 ORDER BY indexname",
		schemaName, tableName)
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_schema", err)
	}
	for indexRows.Next() {
		var name, def string
		if err := indexRows.Scan(&name, &def); err != nil {
			indexRows.Close()
			return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_schema", err)
		}
		schema.Indexes = append(schema.Indexes, adapter.Index{
			Name:      name,
			Columns:   IndexColumnsFromDef(def),
			IsUnique:  strings.Contains(strings.ToUpper(def), "UNIQUE"),
			IndexType: adapter.StringPtr(IndexTypeFromDef(def)),
			Ascending: adapter.BoolPtr(true),
		})
	}
	indexRows.Close()
	if err := indexRows.Err(); err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_schema", err)
	}

	fkQuery := `
		SELECT tc.constraint_name, kcu.column_name, ccu.table_name, ccu.column_name,
			rc.update_rule, rc.delete_rule
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		LEFT JOIN information_schema.referential_constraints AS rc
			ON tc.constraint_name = rc.constraint_name AND tc.table_schema = rc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND tc.table_name = $2`

	fkRows, err := pool.Query(ctx, fkQuery, schemaName, tableName)
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_schema", err)
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var fk adapter.ForeignKey
		var onUpdate, onDelete *string
		if err := fkRows.Scan(&fk.Name, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn, &onUpdate, &onDelete); err != nil {
			return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_schema", err)
		}
		fk.OnUpdate, fk.OnDelete = onUpdate, onDelete
		schema.ForeignKeys = append(schema.ForeignKeys, fk)
	}
	if err := fkRows.Err(); err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_schema", err)
	}
	return schema, nil
}

// IndexColumnsFromDef extracts the column list of a CREATE INDEX definition:
// the text between the first "(" after USING and its closing ")".
func IndexColumnsFromDef(def string) []string {
	start := strings.Index(strings.ToUpper(def), " USING ")
	if start < 0 {
		start = 0
	}
	open := strings.Index(def[start:], "(")
	if open < 0 {
		return []string{}
	}
	open += start
	depth := 0
	for i := open; i < len(def); i++ {
		switch def[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				parts := strings.Split(def[open+1:i], ",")
				columns := make([]string, 0, len(parts))
				for _, p := range parts {
					p = strings.TrimSpace(p)
					p = strings.TrimSuffix(p, " DESC")
					p = strings.TrimSuffix(p, " ASC")
					columns = append(columns, strings.Trim(p, `"`))
				}
				return columns
			}
		}
	}
	return []string{}
}

// GetViews lists views, optionally restricted to one schema.
func (c *Connection) GetViews(ctx context.Context, database, schema string) ([]adapter.View, error) {
	pool, err := c.handle("get_views")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT schemaname, viewname FROM pg_views
		WHERE schemaname NOT IN ('pg_catalog', 'information_schema') AND ($1 = '' OR schemaname = $1)
		ORDER BY schemaname, viewname`

	rows, err := pool.Query(ctx, query, schema)
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_views", err)
	}
	defer rows.Close()

	views := []adapter.View{}
	for rows.Next() {
		var s, name string
		if err := rows.Scan(&s, &name); err != nil {
			return nil, adapter.WrapError(adapter.PostgreSQL, "get_views", err)
		}
		views = append(views, adapter.View{Name: name, Schema: adapter.StringPtr(s)})
	}
	return views, rows.Err()
}

// GetIndexes lists indexes, optionally restricted to one schema.
func (c *Connection) GetIndexes(ctx context.Context, database, schema string) ([]adapter.DbIndex, error) {
	pool, err := c.handle("get_indexes")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT tablename, indexname, indexdef FROM pg_indexes
		WHERE schemaname NOT IN ('pg_catalog', 'information_schema') AND ($1 = '' OR schemaname = $1)
		ORDER BY schemaname, tablename, indexname`

	rows, err := pool.Query(ctx, query, schema)
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_indexes", err)
	}
	defer rows.Close()

	indexes := []adapter.DbIndex{}
	for rows.Next() {
		var tableName, name, def string
		if err := rows.Scan(&tableName, &name, &def); err != nil {
			return nil, adapter.WrapError(adapter.PostgreSQL, "get_indexes", err)
		}
		indexes = append(indexes, adapter.DbIndex{
			Name:      name,
			TableName: tableName,
			Columns:   IndexColumnsFromDef(def),
			IsUnique:  strings.Contains(strings.ToLower(def), "unique"),
			IndexType: adapter.StringPtr(IndexTypeFromDef(def)),
			Ascending: adapter.BoolPtr(true),
		})
	}
	return indexes, rows.Err()
}

// GetProcedures lists functions and procedures from pg_proc.
func (c *Connection) GetProcedures(ctx context.Context, database, schema string) ([]adapter.Procedure, error) {
	pool, err := c.handle("get_procedures")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT n.nspname, p.proname,
			CASE WHEN p.prokind = 'p' THEN 'PROCEDURE' ELSE 'FUNCTION' END,
			p.oid::text
		FROM pg_proc p JOIN pg_namespace n ON p.pronamespace = n.oid
		WHERE n.nspname NOT IN ('pg_catalog', 'information_schema') AND ($1 = '' OR n.nspname = $1)
		ORDER BY n.nspname, p.proname`

	rows, err := pool.Query(ctx, query, schema)
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_procedures", err)
	}
	defer rows.Close()

	procedures := []adapter.Procedure{}
	for rows.Next() {
		var s, name, kind, oid string
		if err := rows.Scan(&s, &name, &kind, &oid); err != nil {
			return nil, adapter.WrapError(adapter.PostgreSQL, "get_procedures", err)
		}
		procedures = append(procedures, adapter.Procedure{
			Name:          name,
			Schema:        adapter.StringPtr(s),
			ProcedureType: adapter.StringPtr(kind),
			OID:           adapter.StringPtr(oid),
		})
	}
	return procedures, rows.Err()
}

// GetTriggers lists user triggers, decoding timing and event from tgtype.
func (c *Connection) GetTriggers(ctx context.Context, database, schema string) ([]adapter.Trigger, error) {
	pool, err := c.handle("get_triggers")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT t.tgname, c.relname,
			CASE WHEN t.tgtype & 2 = 2 THEN 'BEFORE' WHEN t.tgtype & 64 = 64 THEN 'INSTEAD OF' ELSE 'AFTER' END,
			CASE WHEN t.tgtype & 4 = 4 THEN 'INSERT' WHEN t.tgtype & 8 = 8 THEN 'DELETE'
				WHEN t.tgtype & 16 = 16 THEN 'UPDATE' ELSE 'UNKNOWN' END
		FROM pg_trigger t
		JOIN pg_class c ON t.tgrelid = c.oid
		JOIN pg_namespace n ON c.relnamespace = n.oid
		WHERE NOT t.tgisinternal AND n.nspname NOT IN ('pg_catalog', 'information_schema')
			AND ($1 = '' OR n.nspname = $1)
		ORDER BY n.nspname, c.relname, t.tgname`

	rows, err := pool.Query(ctx, query, schema)
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_triggers", err)
	}
	defer rows.Close()

	triggers := []adapter.Trigger{}
	for rows.Next() {
		var t adapter.Trigger
		if err := rows.Scan(&t.Name, &t.TableName, &t.Timing, &t.Event); err != nil {
			return nil, adapter.WrapError(adapter.PostgreSQL, "get_triggers", err)
		}
		t.TriggerType = adapter.StringPtr("ROW")
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// GetTableRelationships lists foreign keys declared on the table and those
// that reference it.
func (c *Connection) GetTableRelationships(ctx context.Context, database, schema, table string) ([]adapter.TableRelationship, error) {
	pool, err := c.handle("get_table_relationships")
	if err != nil {
		return nil, err
	}
	schemaName, tableName := relationSchema(schema, table)

	query := `
		SELECT tc.constraint_name, tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name,
			rc.update_rule, rc.delete_rule, 'FOREIGN_KEY'
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		LEFT JOIN information_schema.referential_constraints AS rc
			ON tc.constraint_name = rc.constraint_name AND tc.table_schema = rc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND tc.table_name = $2
		UNION ALL
		SELECT tc.constraint_name, tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name,
			rc.update_rule, rc.delete_rule, 'REFERENCED_BY'
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		LEFT JOIN information_schema.referential_constraints AS rc
			ON tc.constraint_name = rc.constraint_name AND tc.table_schema = rc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND ccu.table_name = $2`

	rows, err := pool.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_relationships", err)
	}
	defer rows.Close()

	relationships := []adapter.TableRelationship{}
	for rows.Next() {
		var r adapter.TableRelationship
		if err := rows.Scan(&r.ConstraintName, &r.TableName, &r.ColumnName, &r.ReferencedTableName,
			&r.ReferencedColumnName, &r.OnUpdate, &r.OnDelete, &r.RelationshipType); err != nil {
			return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_relationships", err)
		}
		relationships = append(relationships, r)
	}
	return relationships, rows.Err()
}

// GetTableStatistics combines pg_class sizes with pg_stat_user_tables counters.
func (c *Connection) GetTableStatistics(ctx context.Context, database, schema, table string) (*adapter.TableStatistics, error) {
	pool, err := c.handle("get_table_statistics")
	if err != nil {
		return nil, err
	}
	schemaName, tableName := relationSchema(schema, table)

	query := `
		SELECT COALESCE(s.n_live_tup, c.reltuples::bigint),
			pg_relation_size(c.oid), pg_indexes_size(c.oid),
			pg_size_pretty(pg_total_relation_size(c.oid)), c.relpages::bigint,
			GREATEST(s.last_analyze, s.last_autoanalyze)::text
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_stat_user_tables s ON s.relid = c.oid
		WHERE n.nspname = $1 AND c.relname = $2`

	stats := &adapter.TableStatistics{}
	err = pool.QueryRow(ctx, query, schemaName, tableName).Scan(
		&stats.RowCount, &stats.DataLength, &stats.IndexLength, &stats.TableSize, &stats.Pages, &stats.UpdateTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return nil, adapter.WrapError(adapter.PostgreSQL, "get_table_statistics", err)
	}
	return stats, nil
}

// GetProcedureSource returns pg_get_functiondef for the first routine
// matching name in the schema.
func (c *Connection) GetProcedureSource(ctx context.Context, database, schema, name, procType string) (string, error) {
	pool, err := c.handle("get_procedure_source")
	if err != nil {
		return "", err
	}
	if schema == "" {
		schema = DefaultSchema
	}

	var source *string
	err = pool.QueryRow(ctx, `
		SELECT pg_get_functiondef(p.oid)
		FROM pg_proc p JOIN pg_namespace n ON p.pronamespace = n.oid
		WHERE n.nspname = $1 AND p.proname = $2
		LIMIT 1`, schema, name).Scan(&source)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && source == nil) {
		return "-- Source code not available", nil
	}
	if err != nil {
		return "", adapter.WrapError(adapter.PostgreSQL, "get_procedure_source", err)
	}
	return *source, nil
}

// relationSchema resolves the schema for metadata calls that take it
// separately. A qualified table name wins over the schema argument.
func relationSchema(schema, table string) (string, string) {
	if strings.Contains(table, ".") || schema == "" {
		return SplitTableName(table)
	}
	return strings.ToLower(schema), strings.ToLower(table)
}
