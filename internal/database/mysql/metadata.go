package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// GetDatabases lists the databases visible to the user.
func (c *Connection) GetDatabases(ctx context.Context) ([]adapter.Database, error) {
	db, err := c.handle("get_databases")
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_databases", err)
	}
	defer rows.Close()

	databases := []adapter.Database{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, adapter.WrapError(adapter.MySQL, "get_databases", err)
		}
		databases = append(databases, adapter.Database{Name: name})
	}
	return databases, rows.Err()
}

// GetTables lists the base tables of a database with their data+index size.
func (c *Connection) GetTables(ctx context.Context, database string) ([]adapter.Table, error) {
	db, err := c.handle("get_tables")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT TABLE_NAME, COALESCE(DATA_LENGTH + INDEX_LENGTH, 0)
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	rows, err := db.QueryContext(ctx, query, database)
	if err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_tables", err)
	}
	defer rows.Close()

	tables := []adapter.Table{}
	for rows.Next() {
		var name string
		var size sql.NullInt64
		if err := rows.Scan(&name, &size); err != nil {
			return nil, adapter.WrapError(adapter.MySQL, "get_tables", err)
		}
		table := adapter.Table{Name: name}
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

// GetTableSchema reads columns from DESCRIBE, then indexes and foreign keys
// from information_schema.
func (c *Connection) GetTableSchema(ctx context.Context, database, table string) (*adapter.TableSchema, error) {
	db, err := c.handle("get_table_schema")
	if err != nil {
		return nil, err
	}

	schema := &adapter.TableSchema{
		TableName:   table,
		Columns:     []adapter.Column{},
		Indexes:     []adapter.Index{},
		ForeignKeys: []adapter.ForeignKey{},
	}

	describe := fmt.Sprintf("DESCRIBE %s", Dialect{}.QualifyTable(database, "", table))
	rows, err := db.QueryContext(ctx, describe)
	if err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_table_schema", err)
	}
	for rows.Next() {
		var field, dataType, null, key, extra string
		var def sql.NullString
		if err := rows.Scan(&field, &dataType, &null, &key, &def, &extra); err != nil {
			rows.Close()
			return nil, adapter.WrapError(adapter.MySQL, "get_table_schema", err)
		}
		col := adapter.Column{
			Name:            field,
			DataType:        dataType,
			Nullable:        null == "YES",
			IsPrimaryKey:    key == "PRI",
			IsAutoIncrement: strings.Contains(extra, "auto_increment"),
		}
		if def.Valid {
			v := def.String
			col.DefaultValue = &v
		}
		schema.Columns = append(schema.Columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_table_schema", err)
	}

	if schema.Indexes, err = c.tableIndexes(ctx, db, database, table); err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_table_schema", err)
	}
	if schema.ForeignKeys, err = c.tableForeignKeys(ctx, db, database, table); err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_table_schema", err)
	}
	return schema, nil
}

func (c *Connection) tableIndexes(ctx context.Context, db *sql.DB, database, table string) ([]adapter.Index, error) {
	query := `
		SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE, INDEX_TYPE, COLLATION
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`

	rows, err := db.QueryContext(ctx, query, database, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexes := []adapter.Index{}
	position := make(map[string]int)
	for rows.Next() {
		var name, column string
		var nonUnique int
		var indexType, collation sql.NullString
		if err := rows.Scan(&name, &column, &nonUnique, &indexType, &collation); err != nil {
			return nil, err
		}

		i, ok := position[name]
		if !ok {
			idx := adapter.Index{Name: name, IsUnique: nonUnique == 0}
			if indexType.Valid {
				idx.IndexType = adapter.StringPtr(indexType.String)
			}
			if collation.Valid {
				idx.Ascending = adapter.BoolPtr(collation.String == "A")
			}
			indexes = append(indexes, idx)
			i = len(indexes) - 1
			position[name] = i
		}
		indexes[i].Columns = append(indexes[i].Columns, column)
	}
	return indexes, rows.Err()
}

func (c *Connection) tableForeignKeys(ctx context.Context, db *sql.DB, database, table string) ([]adapter.ForeignKey, error) {
	query := `
		SELECT kcu.CONSTRAINT_NAME, kcu.COLUMN_NAME, kcu.REFERENCED_TABLE_NAME,
			kcu.REFERENCED_COLUMN_NAME, rc.UPDATE_RULE, rc.DELETE_RULE
		FROM information_schema.KEY_COLUMN_USAGE kcu
		LEFT JOIN information_schema.REFERENTIAL_CONSTRAINTS rc
			ON kcu.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
			AND kcu.CONSTRAINT_SCHEMA = rc.CONSTRAINT_SCHEMA
		WHERE kcu.TABLE_SCHEMA = ? AND kcu.TABLE_NAME = ? AND kcu.REFERENCED_TABLE_NAME IS NOT NULL`

	rows, err := db.QueryContext(ctx, query, database, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := []adapter.ForeignKey{}
	for rows.Next() {
		var fk adapter.ForeignKey
		var onUpdate, onDelete sql.NullString
		if err := rows.Scan(&fk.Name, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		fk.OnUpdate = adapter.StringPtr(onUpdate.String)
		fk.OnDelete = adapter.StringPtr(onDelete.String)
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// GetViews lists the views of a database.
func (c *Connection) GetViews(ctx context.Context, database, schema string) ([]adapter.View, error) {
	db, err := c.handle("get_views")
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT TABLE_NAME FROM information_schema.VIEWS WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME", database)
	if err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_views", err)
	}
	defer rows.Close()

	views := []adapter.View{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, adapter.WrapError(adapter.MySQL, "get_views", err)
		}
		views = append(views, adapter.View{Name: name})
	}
	return views, rows.Err()
}

// GetIndexes lists every index of a database, one entry per index.
func (c *Connection) GetIndexes(ctx context.Context, database, schema string) ([]adapter.DbIndex, error) {
	db, err := c.handle("get_indexes")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT INDEX_NAME, TABLE_NAME, COLUMN_NAME, NON_UNIQUE, INDEX_TYPE, COLLATION
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME, INDEX_NAME, SEQ_IN_INDEX`

	rows, err := db.QueryContext(ctx, query, database)
	if err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_indexes", err)
	}
	defer rows.Close()

	indexes := []adapter.DbIndex{}
	position := make(map[string]int)
	for rows.Next() {
		var name, tableName, column string
		var nonUnique int
		var indexType, collation sql.NullString
		if err := rows.Scan(&name, &tableName, &column, &nonUnique, &indexType, &collation); err != nil {
			return nil, adapter.WrapError(adapter.MySQL, "get_indexes", err)
		}

		key := tableName + "." + name
		i, ok := position[key]
		if !ok {
			idx := adapter.DbIndex{Name: name, TableName: tableName, IsUnique: nonUnique == 0}
			idx.IndexType = adapter.StringPtr(indexType.String)
			if collation.Valid {
				idx.Ascending = adapter.BoolPtr(collation.String == "A")
			}
			indexes = append(indexes, idx)
			i = len(indexes) - 1
			position[key] = i
		}
		indexes[i].Columns = append(indexes[i].Columns, column)
	}
	return indexes, rows.Err()
}

// GetProcedures lists stored procedures and functions.
func (c *Connection) GetProcedures(ctx context.Context, database, schema string) ([]adapter.Procedure, error) {
	db, err := c.handle("get_procedures")
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT ROUTINE_NAME, ROUTINE_TYPE FROM information_schema.ROUTINES WHERE ROUTINE_SCHEMA = ? ORDER BY ROUTINE_NAME",
		database)
	if err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_procedures", err)
	}
	defer rows.Close()

	procedures := []adapter.Procedure{}
	for rows.Next() {
		var name string
		var routineType sql.NullString
		if err := rows.Scan(&name, &routineType); err != nil {
			return nil, adapter.WrapError(adapter.MySQL, "get_procedures", err)
		}
		procedures = append(procedures, adapter.Procedure{Name: name, ProcedureType: adapter.StringPtr(routineType.String)})
	}
	return procedures, rows.Err()
}

// GetTriggers lists the triggers of a database.
func (c *Connection) GetTriggers(ctx context.Context, database, schema string) ([]adapter.Trigger, error) {
	db, err := c.handle("get_triggers")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT TRIGGER_NAME, EVENT_OBJECT_TABLE, EVENT_MANIPULATION, ACTION_TIMING, ACTION_ORIENTATION
		FROM information_schema.TRIGGERS
		WHERE TRIGGER_SCHEMA = ?
		ORDER BY TRIGGER_NAME`

	rows, err := db.QueryContext(ctx, query, database)
	if err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_triggers", err)
	}
	defer rows.Close()

	triggers := []adapter.Trigger{}
	for rows.Next() {
		var t adapter.Trigger
		var orientation sql.NullString
		if err := rows.Scan(&t.Name, &t.TableName, &t.Event, &t.Timing, &orientation); err != nil {
			return nil, adapter.WrapError(adapter.MySQL, "get_triggers", err)
		}
		t.TriggerType = adapter.StringPtr(orientation.String)
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// GetEvents lists the scheduled events of a database.
func (c *Connection) GetEvents(ctx context.Context, database, schema string) ([]adapter.Event, error) {
	db, err := c.handle("get_events")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT EVENT_NAME, STATUS, INTERVAL_VALUE, INTERVAL_FIELD
		FROM information_schema.EVENTS
		WHERE EVENT_SCHEMA = ?
		ORDER BY EVENT_NAME`

	rows, err := db.QueryContext(ctx, query, database)
	if err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_events", err)
	}
	defer rows.Close()

	events := []adapter.Event{}
	for rows.Next() {
		var e adapter.Event
		var status, intervalValue, intervalField sql.NullString
		if err := rows.Scan(&e.Name, &status, &intervalValue, &intervalField); err != nil {
			return nil, adapter.WrapError(adapter.MySQL, "get_events", err)
		}
		e.Status = adapter.StringPtr(status.String)
		e.IntervalValue = adapter.StringPtr(intervalValue.String)
		e.IntervalField = adapter.StringPtr(intervalField.String)
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetTableRelationships lists foreign keys from and to a table.
func (c *Connection) GetTableRelationships(ctx context.Context, database, schema, table string) ([]adapter.TableRelationship, error) {
	db, err := c.handle("get_table_relationships")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT kcu.CONSTRAINT_NAME, kcu.TABLE_NAME, kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_NAME, kcu.REFERENCED_COLUMN_NAME, rc.UPDATE_RULE, rc.DELETE_RULE
		FROM information_schema.KEY_COLUMN_USAGE kcu
		LEFT JOIN information_schema.REFERENTIAL_CONSTRAINTS rc
			ON kcu.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
			AND kcu.CONSTRAINT_SCHEMA = rc.CONSTRAINT_SCHEMA
		WHERE kcu.TABLE_SCHEMA = ?
			AND (kcu.TABLE_NAME = ? OR kcu.REFERENCED_TABLE_NAME = ?)
			AND kcu.REFERENCED_TABLE_NAME IS NOT NULL`

	rows, err := db.QueryContext(ctx, query, database, table, table)
	if err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_table_relationships", err)
	}
	defer rows.Close()

	relationships := []adapter.TableRelationship{}
	for rows.Next() {
		var r adapter.TableRelationship
		var onUpdate, onDelete sql.NullString
		if err := rows.Scan(&r.ConstraintName, &r.TableName, &r.ColumnName,
			&r.ReferencedTableName, &r.ReferencedColumnName, &onUpdate, &onDelete); err != nil {
			return nil, adapter.WrapError(adapter.MySQL, "get_table_relationships", err)
		}
		if r.TableName == table {
			r.RelationshipType = adapter.RelationshipForeignKey
		} else {
			r.RelationshipType = adapter.RelationshipReferencedBy
		}
		r.OnUpdate = adapter.StringPtr(onUpdate.String)
		r.OnDelete = adapter.StringPtr(onDelete.String)
		relationships = append(relationships, r)
	}
	return relationships, rows.Err()
}

// GetTableStatistics reads the size and timing figures of information_schema.TABLES.
func (c *Connection) GetTableStatistics(ctx context.Context, database, schema, table string) (*adapter.TableStatistics, error) {
	db, err := c.handle("get_table_statistics")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT TABLE_ROWS, AVG_ROW_LENGTH, DATA_LENGTH, MAX_DATA_LENGTH, DATA_FREE, INDEX_LENGTH,
			ROW_FORMAT, CREATE_TIME, UPDATE_TIME, CHECK_TIME, TABLE_COLLATION, CHECKSUM, ENGINE, TABLE_COMMENT
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`

	var rowCount, avgRowLength, dataLength, maxDataLength, dataFree, indexLength sql.NullInt64
	var rowFormat, createTime, updateTime, checkTime, collation, checksum, engine, comment sql.NullString
	err = db.QueryRowContext(ctx, query, database, table).Scan(
		&rowCount, &avgRowLength, &dataLength, &maxDataLength, &dataFree, &indexLength,
		&rowFormat, &createTime, &updateTime, &checkTime, &collation, &checksum, &engine, &comment)
	if err != nil {
		return nil, adapter.WrapError(adapter.MySQL, "get_table_statistics", err)
	}

	return &adapter.TableStatistics{
		RowCount:      nullInt(rowCount),
		AvgRowLength:  nullInt(avgRowLength),
		DataLength:    nullInt(dataLength),
		MaxDataLength: nullInt(maxDataLength),
		DataFree:      nullInt(dataFree),
		IndexLength:   nullInt(indexLength),
		RowFormat:     adapter.StringPtr(rowFormat.String),
		CreateTime:    adapter.StringPtr(createTime.String),
		UpdateTime:    adapter.StringPtr(updateTime.String),
		CheckTime:     adapter.StringPtr(checkTime.String),
		Collation:     adapter.StringPtr(collation.String),
		Checksum:      adapter.StringPtr(checksum.String),
		Engine:        adapter.StringPtr(engine.String),
		Comment:       adapter.StringPtr(comment.String),
	}, nil
}

// GetProcedureSource returns the routine body. procType PROCEDURE selects a
// procedure; anything else a function.
func (c *Connection) GetProcedureSource(ctx context.Context, database, schema, name, procType string) (string, error) {
	db, err := c.handle("get_procedure_source")
	if err != nil {
		return "", err
	}

	routineType := "FUNCTION"
	if strings.EqualFold(procType, "PROCEDURE") {
		routineType = "PROCEDURE"
	}

	var source sql.NullString
	err = db.QueryRowContext(ctx,
		"SELECT ROUTINE_DEFINITION FROM information_schema.ROUTINES WHERE ROUTINE_SCHEMA = ? AND ROUTINE_NAME = ? AND ROUTINE_TYPE = ?",
		database, name, routineType).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !source.Valid) {
		return "-- Source code not available", nil
	}
	if err != nil {
		return "", adapter.WrapError(adapter.MySQL, "get_procedure_source", err)
	}
	return source.String, nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return adapter.Int64Ptr(v.Int64)
}
