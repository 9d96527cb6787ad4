package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// catalog returns the [db]. prefix for catalog views, or nothing for the
// connection's current database.
func catalog(database string) string {
	if database == "" {
		return ""
	}
	return QuoteIdentifier(database) + "."
}

// GetDatabases lists user databases; the four system databases are skipped.
func (c *Connection) GetDatabases(ctx context.Context) ([]adapter.Database, error) {
	db, err := c.handle("get_databases")
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT name FROM sys.databases WHERE database_id > 4 ORDER BY name")
	if err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_databases", err)
	}
	defer rows.Close()

	databases := []adapter.Database{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, adapter.WrapError(adapter.MSSQL, "get_databases", err)
		}
		databases = append(databases, adapter.Database{Name: name})
	}
	return databases, rows.Err()
}

// GetTables lists base tables with their size estimated from partition row
// counts at 8 KiB per row.
func (c *Connection) GetTables(ctx context.Context, database string) ([]adapter.Table, error) {
	db, err := c.handle("get_tables")
	if err != nil {
		return nil, err
	}

	prefix := catalog(database)
	query := fmt.Sprintf(`
		SELECT t.TABLE_NAME, t.TABLE_SCHEMA, COALESCE(SUM(p.rows * 8 * 1024), 0)
		FROM %[1]sINFORMATION_SCHEMA.TABLES t
		LEFT JOIN %[1]ssys.tables st ON t.TABLE_NAME = st.name
		LEFT JOIN %[1]ssys.partitions p ON st.object_id = p.object_id
		WHERE t.TABLE_TYPE = 'BASE TABLE' AND (p.index_id IN (0, 1) OR p.index_id IS NULL)
		GROUP BY t.TABLE_NAME, t.TABLE_SCHEMA
		ORDER BY t.TABLE_NAME`, prefix)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_tables", err)
	}
	defer rows.Close()

	tables := []adapter.Table{}
	for rows.Next() {
		var name string
		var schema sql.NullString
		var size sql.NullInt64
		if err := rows.Scan(&name, &schema, &size); err != nil {
			return nil, adapter.WrapError(adapter.MSSQL, "get_tables", err)
		}
		table := adapter.Table{Name: name, Schema: adapter.StringPtr(schema.String)}
		if size.Valid {
			if size.Int64 < 0 {
				size.Int64 = 0
			}
			table.SizeBytes = adapter.Uint64Ptr(uint64(size.Int64))
		}
		tables = append(tables, table)
	}
	return tables, rows.Err()
}

// GetTableSchema reads columns, primary keys, indexes, and foreign keys.
// table may be schema.table; the schema defaults to dbo.
func (c *Connection) GetTableSchema(ctx context.Context, database, table string) (*adapter.TableSchema, error) {
	db, err := c.handle("get_table_schema")
	if err != nil {
		return nil, err
	}

	schemaName, tableName := SplitTableName(table)
	prefix := catalog(database)
	schema := &adapter.TableSchema{
		TableName:   table,
		Columns:     []adapter.Column{},
		Indexes:     []adapter.Index{},
		ForeignKeys: []adapter.ForeignKey{},
	}

	query := fmt.Sprintf(`
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT, CHARACTER_MAXIMUM_LENGTH,
			COLUMNPROPERTY(OBJECT_ID(TABLE_SCHEMA + '.' + TABLE_NAME), COLUMN_NAME, 'IsIdentity')
		FROM %sINFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_NAME = @p1 AND TABLE_SCHEMA = @p2
		ORDER BY ORDINAL_POSITION`, prefix)

	rows, err := db.QueryContext(ctx, query, tableName, schemaName)
	if err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_table_schema", err)
	}
	for rows.Next() {
		var name, dataType, nullable string
		var def sql.NullString
		var maxLength, identity sql.NullInt64
		if err := rows.Scan(&name, &dataType, &nullable, &def, &maxLength, &identity); err != nil {
			rows.Close()
			return nil, adapter.WrapError(adapter.MSSQL, "get_table_schema", err)
		}
		col := adapter.Column{
			Name:            name,
			DataType:        dataType,
			Nullable:        nullable == "YES",
			IsAutoIncrement: identity.Valid && identity.Int64 == 1,
		}
		if maxLength.Valid && maxLength.Int64 > 0 {
			col.DataType = fmt.Sprintf("%s(%d)", dataType, maxLength.Int64)
		}
		if def.Valid {
			v := def.String
			col.DefaultValue = &v
		}
		schema.Columns = append(schema.Columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_table_schema", err)
	}

	primaryKeys, err := c.primaryKeyColumns(ctx, db, prefix, schemaName, tableName)
	if err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_table_schema", err)
	}
	for i := range schema.Columns {
		if primaryKeys[schema.Columns[i].Name] {
			schema.Columns[i].IsPrimaryKey = true
		}
	}

	objectName := prefix + QuoteIdentifier(schemaName) + "." + QuoteIdentifier(tableName)
	if schema.Indexes, err = c.tableIndexes(ctx, db, prefix, objectName); err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_table_schema", err)
	}
	if schema.ForeignKeys, err = c.tableForeignKeys(ctx, db, prefix, objectName); err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_table_schema", err)
	}
	return schema, nil
}

func (c *Connection) primaryKeyColumns(ctx context.Context, db *sql.DB, prefix, schemaName, tableName string) (map[string]bool, error) {
	query := fmt.Sprintf(`
		SELECT COLUMN_NAME
		FROM %sINFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE OBJECTPROPERTY(OBJECT_ID(CONSTRAINT_SCHEMA + '.' + QUOTENAME(CONSTRAINT_NAME)), 'IsPrimaryKey') = 1
			AND TABLE_NAME = @p1 AND TABLE_SCHEMA = @p2`, prefix)

	rows, err := db.QueryContext(ctx, query, tableName, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		keys[name] = true
	}
	return keys, rows.Err()
}

func (c *Connection) tableIndexes(ctx context.Context, db *sql.DB, prefix, objectName string) ([]adapter.Index, error) {
	query := fmt.Sprintf(`
		SELECT i.name, COL_NAME(ic.object_id, ic.column_id), i.is_unique, i.type_desc, ic.is_descending_key
		FROM %[1]ssys.indexes i
		INNER JOIN %[1]ssys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
		WHERE i.object_id = OBJECT_ID(@p1, 'U') AND i.name IS NOT NULL
		ORDER BY i.name, ic.key_ordinal`, prefix)

	rows, err := db.QueryContext(ctx, query, objectName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexes := []adapter.Index{}
	position := make(map[string]int)
	for rows.Next() {
		var name, column string
		var unique, descending bool
		var indexType sql.NullString
		if err := rows.Scan(&name, &column, &unique, &indexType, &descending); err != nil {
			return nil, err
		}

		i, ok := position[name]
		if !ok {
			indexes = append(indexes, adapter.Index{
				Name:      name,
				IsUnique:  unique,
				IndexType: adapter.StringPtr(indexType.String),
				Ascending: adapter.BoolPtr(!descending),
			})
			i = len(indexes) - 1
			position[name] = i
		}
		indexes[i].Columns = append(indexes[i].Columns, column)
	}
	return indexes, rows.Err()
}

func (c *Connection) tableForeignKeys(ctx context.Context, db *sql.DB, prefix, objectName string) ([]adapter.ForeignKey, error) {
	query := fmt.Sprintf(`
		SELECT fk.name,
			COL_NAME(fkc.parent_object_id, fkc.parent_column_id),
			OBJECT_NAME(fkc.referenced_object_id),
			COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id),
			fk.delete_referential_action_desc,
			fk.update_referential_action_desc
		FROM %[1]ssys.foreign_keys fk
		INNER JOIN %[1]ssys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
		WHERE fk.parent_object_id = OBJECT_ID(@p1)`, prefix)

	rows, err := db.QueryContext(ctx, query, objectName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := []adapter.ForeignKey{}
	for rows.Next() {
		var fk adapter.ForeignKey
		var onDelete, onUpdate sql.NullString
		if err := rows.Scan(&fk.Name, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn, &onDelete, &onUpdate); err != nil {
			return nil, err
		}
		fk.OnDelete = adapter.StringPtr(onDelete.String)
		fk.OnUpdate = adapter.StringPtr(onUpdate.String)
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// GetViews lists views, optionally restricted to one schema.
func (c *Connection) GetViews(ctx context.Context, database, schema string) ([]adapter.View, error) {
	db, err := c.handle("get_views")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT v.name, s.name
		FROM %[1]ssys.views v
		INNER JOIN %[1]ssys.schemas s ON v.schema_id = s.schema_id
		WHERE (@p1 = '' OR s.name = @p1)
		ORDER BY v.name`, catalog(database))

	rows, err := db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_views", err)
	}
	defer rows.Close()

	views := []adapter.View{}
	for rows.Next() {
		var name, schemaName string
		if err := rows.Scan(&name, &schemaName); err != nil {
			return nil, adapter.WrapError(adapter.MSSQL, "get_views", err)
		}
		views = append(views, adapter.View{Name: name, Schema: adapter.StringPtr(schemaName)})
	}
	return views, rows.Err()
}

// GetIndexes lists named indexes on user tables.
func (c *Connection) GetIndexes(ctx context.Context, database, schema string) ([]adapter.DbIndex, error) {
	db, err := c.handle("get_indexes")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT i.name, t.name, i.type_desc, i.is_unique
		FROM %[1]ssys.indexes i
		INNER JOIN %[1]ssys.tables t ON i.object_id = t.object_id
		INNER JOIN %[1]ssys.schemas s ON t.schema_id = s.schema_id
		WHERE i.name IS NOT NULL AND (@p1 = '' OR s.name = @p1)
		ORDER BY s.name, t.name, i.name`, catalog(database))

	rows, err := db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_indexes", err)
	}
	defer rows.Close()

	indexes := []adapter.DbIndex{}
	for rows.Next() {
		var idx adapter.DbIndex
		var indexType sql.NullString
		if err := rows.Scan(&idx.Name, &idx.TableName, &indexType, &idx.IsUnique); err != nil {
			return nil, adapter.WrapError(adapter.MSSQL, "get_indexes", err)
		}
		idx.Columns = []string{}
		idx.IndexType = adapter.StringPtr(indexType.String)
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

// GetProcedures lists user stored procedures; system sp_ procedures are skipped.
func (c *Connection) GetProcedures(ctx context.Context, database, schema string) ([]adapter.Procedure, error) {
	db, err := c.handle("get_procedures")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT p.name, s.name
		FROM %[1]ssys.procedures p
		INNER JOIN %[1]ssys.schemas s ON p.schema_id = s.schema_id
		WHERE p.name NOT LIKE 'sp[_]%%' AND (@p1 = '' OR s.name = @p1)
		ORDER BY s.name, p.name`, catalog(database))

	rows, err := db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_procedures", err)
	}
	defer rows.Close()

	procedures := []adapter.Procedure{}
	for rows.Next() {
		var name, schemaName string
		if err := rows.Scan(&name, &schemaName); err != nil {
			return nil, adapter.WrapError(adapter.MSSQL, "get_procedures", err)
		}
		procedures = append(procedures, adapter.Procedure{
			Name:          name,
			Schema:        adapter.StringPtr(schemaName),
			ProcedureType: adapter.StringPtr("PROCEDURE"),
		})
	}
	return procedures, rows.Err()
}

// GetTriggers lists DML triggers on user tables.
func (c *Connection) GetTriggers(ctx context.Context, database, schema string) ([]adapter.Trigger, error) {
	db, err := c.handle("get_triggers")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT tr.name, t.name, tr.is_instead_of_trigger
		FROM %[1]ssys.triggers tr
		INNER JOIN %[1]ssys.tables t ON tr.parent_id = t.object_id
		INNER JOIN %[1]ssys.schemas s ON t.schema_id = s.schema_id
		WHERE tr.is_ms_shipped = 0 AND (@p1 = '' OR s.name = @p1)
		ORDER BY s.name, t.name, tr.name`, catalog(database))

	rows, err := db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_triggers", err)
	}
	defer rows.Close()

	triggers := []adapter.Trigger{}
	for rows.Next() {
		var t adapter.Trigger
		var insteadOf bool
		if err := rows.Scan(&t.Name, &t.TableName, &insteadOf); err != nil {
			return nil, adapter.WrapError(adapter.MSSQL, "get_triggers", err)
		}
		t.Timing = "AFTER"
		if insteadOf {
			t.Timing = "INSTEAD OF"
		}
		t.TriggerType = adapter.StringPtr("TRIGGER")
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// GetTableRelationships lists foreign keys declared on the table and those
// referencing it.
func (c *Connection) GetTableRelationships(ctx context.Context, database, schema, table string) ([]adapter.TableRelationship, error) {
	db, err := c.handle("get_table_relationships")
	if err != nil {
		return nil, err
	}

	if schema == "" {
		schema = DefaultSchema
	}
	prefix := catalog(database)
	query := fmt.Sprintf(`
		SELECT fk.name,
			OBJECT_NAME(fkc.parent_object_id),
			COL_NAME(fkc.parent_object_id, fkc.parent_column_id),
			OBJECT_NAME(fkc.referenced_object_id),
			COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id),
			fk.delete_referential_action_desc,
			fk.update_referential_action_desc
		FROM %[1]ssys.foreign_keys fk
		INNER JOIN %[1]ssys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
		WHERE fkc.parent_object_id = OBJECT_ID(@p1) OR fkc.referenced_object_id = OBJECT_ID(@p1)
		ORDER BY fk.name`, prefix)

	objectName := prefix + QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
	rows, err := db.QueryContext(ctx, query, objectName)
	if err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_table_relationships", err)
	}
	defer rows.Close()

	relationships := []adapter.TableRelationship{}
	for rows.Next() {
		var r adapter.TableRelationship
		var onDelete, onUpdate sql.NullString
		if err := rows.Scan(&r.ConstraintName, &r.TableName, &r.ColumnName,
			&r.ReferencedTableName, &r.ReferencedColumnName, &onDelete, &onUpdate); err != nil {
			return nil, adapter.WrapError(adapter.MSSQL, "get_table_relationships", err)
		}
		if r.TableName == table {
			r.RelationshipType = adapter.RelationshipForeignKey
		} else {
			r.RelationshipType = adapter.RelationshipReferencedBy
		}
		r.OnDelete = adapter.StringPtr(onDelete.String)
		r.OnUpdate = adapter.StringPtr(onUpdate.String)
		relationships = append(relationships, r)
	}
	return relationships, rows.Err()
}

// GetTableStatistics reads row and page counts from sys.dm_db_partition_stats.
func (c *Connection) GetTableStatistics(ctx context.Context, database, schema, table string) (*adapter.TableStatistics, error) {
	db, err := c.handle("get_table_statistics")
	if err != nil {
		return nil, err
	}

	if schema == "" {
		schema = DefaultSchema
	}
	prefix := catalog(database)
	query := fmt.Sprintf(`
		SELECT
			SUM(CASE WHEN ps.index_id IN (0, 1) THEN ps.row_count ELSE 0 END),
			SUM(CASE WHEN ps.index_id IN (0, 1) THEN ps.used_page_count ELSE 0 END) * 8 * 1024,
			SUM(CASE WHEN ps.index_id > 1 THEN ps.used_page_count ELSE 0 END) * 8 * 1024,
			SUM(ps.reserved_page_count),
			MAX(o.create_date),
			MAX(o.modify_date)
		FROM %[1]ssys.dm_db_partition_stats ps
		INNER JOIN %[1]ssys.objects o ON ps.object_id = o.object_id
		WHERE ps.object_id = OBJECT_ID(@p1)`, prefix)

	var rowCount, dataLength, indexLength, pages sql.NullInt64
	var created, modified sql.NullTime
	objectName := prefix + QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
	err = db.QueryRowContext(ctx, query, objectName).Scan(&rowCount, &dataLength, &indexLength, &pages, &created, &modified)
	if err != nil {
		return nil, adapter.WrapError(adapter.MSSQL, "get_table_statistics", err)
	}

	stats := &adapter.TableStatistics{
		RowCount:    nullInt(rowCount),
		DataLength:  nullInt(dataLength),
		IndexLength: nullInt(indexLength),
		Pages:       nullInt(pages),
	}
	if rowCount.Valid && rowCount.Int64 > 0 && dataLength.Valid {
		stats.AvgRowLength = adapter.Int64Ptr(dataLength.Int64 / rowCount.Int64)
	}
	if created.Valid {
		stats.CreateTime = adapter.StringPtr(created.Time.Format("2006-01-02 15:04:05"))
	}
	if modified.Valid {
		stats.UpdateTime = adapter.StringPtr(modified.Time.Format("2006-01-02 15:04:05"))
	}
	if dataLength.Valid && indexLength.Valid {
		stats.TableSize = adapter.StringPtr(formatBytes(dataLength.Int64 + indexLength.Int64))
	}
	return stats, nil
}

// GetProcedureSource returns the module definition of a procedure or function.
func (c *Connection) GetProcedureSource(ctx context.Context, database, schema, name, procType string) (string, error) {
	db, err := c.handle("get_procedure_source")
	if err != nil {
		return "", err
	}

	if schema == "" {
		schema = DefaultSchema
	}
	prefix := catalog(database)
	query := fmt.Sprintf("SELECT m.definition FROM %ssys.sql_modules m WHERE m.object_id = OBJECT_ID(@p1)", prefix)

	var source sql.NullString
	objectName := prefix + QuoteIdentifier(schema) + "." + QuoteIdentifier(name)
	err = db.QueryRowContext(ctx, query, objectName).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !source.Valid) {
		return "-- Source code not available", nil
	}
	if err != nil {
		return "", adapter.WrapError(adapter.MSSQL, "get_procedure_source", err)
	}
	return source.String, nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d bytes", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return adapter.Int64Ptr(v.Int64)
}
