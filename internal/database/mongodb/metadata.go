package mongodb

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// schemaSampleSize is how many documents GetTableSchema inspects.
const schemaSampleSize = 100

// GetDatabases lists the databases of the deployment.
func (c *Connection) GetDatabases(ctx context.Context) ([]adapter.Database, error) {
	client, err := c.handle("get_databases")
	if err != nil {
		return nil, err
	}

	names, err := client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_databases", err)
	}
	sort.Strings(names)

	databases := make([]adapter.Database, 0, len(names))
	for _, name := range names {
		databases = append(databases, adapter.Database{Name: name})
	}
	return databases, nil
}

// GetTables lists the collections of a database.
func (c *Connection) GetTables(ctx context.Context, database string) ([]adapter.Table, error) {
	client, err := c.handle("get_tables")
	if err != nil {
		return nil, err
	}
	db, err := c.database(client, database)
	if err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_tables", err)
	}

	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_tables", err)
	}
	sort.Strings(names)

	tables := make([]adapter.Table, 0, len(names))
	for _, name := range names {
		tables = append(tables, adapter.Table{Name: name})
	}
	return tables, nil
}

// GetTableSchema infers fields from a sample of documents and reads the
// collection's indexes.
func (c *Connection) GetTableSchema(ctx context.Context, database, table string) (*adapter.TableSchema, error) {
	client, err := c.handle("get_table_schema")
	if err != nil {
		return nil, err
	}
	db, err := c.database(client, database)
	if err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_table_schema", err)
	}
	coll := db.Collection(table)

	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetLimit(schemaSampleSize))
	if err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_table_schema", err)
	}
	var docs []bson.D
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_table_schema", err)
	}

	schema := inferSchema(table, docs)
	specs, err := listIndexSpecs(ctx, coll)
	if err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_table_schema", err)
	}
	for _, spec := range specs {
		schema.Indexes = append(schema.Indexes, indexFromSpec(spec))
	}
	return schema, nil
}

// GetViews lists the views of a database.
func (c *Connection) GetViews(ctx context.Context, database, schema string) ([]adapter.View, error) {
	client, err := c.handle("get_views")
	if err != nil {
		return nil, err
	}
	db, err := c.database(client, database)
	if err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_views", err)
	}

	specs, err := db.ListCollectionSpecifications(ctx, bson.D{{Key: "type", Value: "view"}})
	if err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_views", err)
	}

	views := make([]adapter.View, 0, len(specs))
	for _, spec := range specs {
		views = append(views, adapter.View{Name: spec.Name})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views, nil
}

// GetIndexes lists the indexes of every collection in a database.
func (c *Connection) GetIndexes(ctx context.Context, database, schema string) ([]adapter.DbIndex, error) {
	client, err := c.handle("get_indexes")
	if err != nil {
		return nil, err
	}
	db, err := c.database(client, database)
	if err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_indexes", err)
	}

	names, err := db.ListCollectionNames(ctx, bson.D{{Key: "type", Value: "collection"}})
	if err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_indexes", err)
	}
	sort.Strings(names)

	indexes := []adapter.DbIndex{}
	for _, name := range names {
		specs, err := listIndexSpecs(ctx, db.Collection(name))
		if err != nil {
			return nil, adapter.WrapError(adapter.MongoDB, "get_indexes", err)
		}
		for _, spec := range specs {
			idx := indexFromSpec(spec)
			indexes = append(indexes, adapter.DbIndex{
				Name:      idx.Name,
				TableName: name,
				Columns:   idx.Columns,
				IsUnique:  idx.IsUnique,
				IndexType: idx.IndexType,
				Ascending: idx.Ascending,
			})
		}
	}
	return indexes, nil
}

// GetTableStatistics reads collStats.
func (c *Connection) GetTableStatistics(ctx context.Context, database, schema, table string) (*adapter.TableStatistics, error) {
	client, err := c.handle("get_table_statistics")
	if err != nil {
		return nil, err
	}
	db, err := c.database(client, database)
	if err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_table_statistics", err)
	}

	var stats bson.M
	if err := db.RunCommand(ctx, bson.D{{Key: "collStats", Value: table}}).Decode(&stats); err != nil {
		return nil, adapter.WrapError(adapter.MongoDB, "get_table_statistics", err)
	}
	return statisticsFromCollStats(stats), nil
}

func listIndexSpecs(ctx context.Context, coll *mongo.Collection) ([]bson.D, error) {
	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	var specs []bson.D
	if err := cursor.All(ctx, &specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// indexFromSpec reads a listIndexes entry. Numeric key directions set
// Ascending; named kinds such as text or 2dsphere become the index type.
func indexFromSpec(spec bson.D) adapter.Index {
	idx := adapter.Index{Columns: []string{}}
	for _, e := range spec {
		switch e.Key {
		case "name":
			idx.Name, _ = e.Value.(string)
		case "unique":
			idx.IsUnique, _ = e.Value.(bool)
		case "key":
			keys, _ := e.Value.(bson.D)
			for i, k := range keys {
				idx.Columns = append(idx.Columns, k.Key)
				if i > 0 {
					continue
				}
				if dir, ok := toInt64(k.Value); ok {
					idx.Ascending = adapter.BoolPtr(dir > 0)
				} else if kind, ok := k.Value.(string); ok {
					idx.IndexType = adapter.StringPtr(kind)
				}
			}
		}
	}
	if idx.Name == "_id_" {
		idx.IsUnique = true
	}
	return idx
}

func statisticsFromCollStats(stats bson.M) *adapter.TableStatistics {
	field := func(name string) *int64 {
		if n, ok := toInt64(stats[name]); ok {
			return adapter.Int64Ptr(n)
		}
		return nil
	}
	result := &adapter.TableStatistics{
		RowCount:     field("count"),
		AvgRowLength: field("avgObjSize"),
		DataLength:   field("size"),
		IndexLength:  field("totalIndexSize"),
	}
	if storage, ok := toInt64(stats["storageSize"]); ok {
		result.TableSize = adapter.StringPtr(fmt.Sprintf("%d bytes", storage))
	}
	return result
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
