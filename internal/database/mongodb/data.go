package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// ExecuteQuery runs a JSON envelope. Reads return the matching documents;
// writes return a single row of counters.
func (c *Connection) ExecuteQuery(ctx context.Context, statement string) (*adapter.QueryResult, error) {
	client, err := c.handle("execute_query")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if c.logger != nil {
		c.logger.Debug("Executing query: %s", statement)
	}

	env, err := ParseEnvelope(statement)
	if err != nil {
		return nil, adapter.NewQueryError(adapter.MongoDB, statement, err)
	}
	db, err := c.database(client, env.DB)
	if err != nil {
		return nil, adapter.NewQueryError(adapter.MongoDB, statement, err)
	}

	result, err := runEnvelope(ctx, db.Collection(env.Collection), env)
	if err != nil {
		return nil, adapter.NewQueryError(adapter.MongoDB, statement, err)
	}
	result.SetElapsed(start)
	return result, nil
}

// ExecuteUpdate runs a write envelope and returns the affected document count.
func (c *Connection) ExecuteUpdate(ctx context.Context, statement string) (int64, error) {
	result, err := c.ExecuteQuery(ctx, statement)
	if err != nil {
		return 0, err
	}
	if result.RowsAffected == nil {
		return 0, nil
	}
	return *result.RowsAffected, nil
}

func runEnvelope(ctx context.Context, coll *mongo.Collection, env *Envelope) (*adapter.QueryResult, error) {
	switch env.Operation {
	case OpFind:
		return find(ctx, coll, env.Selector(), env.Options)

	case OpInsertOne:
		res, err := coll.InsertOne(ctx, env.Document)
		if err != nil {
			return nil, fmt.Errorf("error inserting document: %w", err)
		}
		return counterResult(1, "inserted_id", ConvertValue(res.InsertedID)), nil

	case OpInsertMany:
		docs := make([]interface{}, len(env.Documents))
		for i, d := range env.Documents {
			docs[i] = d
		}
		res, err := coll.InsertMany(ctx, docs)
		if err != nil {
			return nil, fmt.Errorf("error inserting documents: %w", err)
		}
		n := int64(len(res.InsertedIDs))
		return counterResult(n, "inserted_count", n), nil

	case OpUpdateOne, OpUpdateMany:
		var res *mongo.UpdateResult
		var err error
		if env.Operation == OpUpdateOne {
			res, err = coll.UpdateOne(ctx, env.Selector(), env.Update)
		} else {
			res, err = coll.UpdateMany(ctx, env.Selector(), env.Update)
		}
		if err != nil {
			return nil, fmt.Errorf("error updating documents: %w", err)
		}
		return counterResult(res.ModifiedCount, "matched_count", res.MatchedCount, "modified_count", res.ModifiedCount), nil

	case OpDeleteOne, OpDeleteMany:
		var res *mongo.DeleteResult
		var err error
		if env.Operation == OpDeleteOne {
			res, err = coll.DeleteOne(ctx, env.Selector())
		} else {
			res, err = coll.DeleteMany(ctx, env.Selector())
		}
		if err != nil {
			return nil, fmt.Errorf("error deleting documents: %w", err)
		}
		return counterResult(res.DeletedCount, "deleted_count", res.DeletedCount), nil

	default:
		return nil, fmt.Errorf("unsupported MongoDB operation: %s", env.Operation)
	}
}

func find(ctx context.Context, coll *mongo.Collection, filter bson.D, opts EnvelopeOptions) (*adapter.QueryResult, error) {
	findOptions := options.Find()
	if opts.Limit != nil && *opts.Limit > 0 {
		findOptions.SetLimit(*opts.Limit)
	}
	if opts.Skip != nil && *opts.Skip > 0 {
		findOptions.SetSkip(*opts.Skip)
	}
	if len(opts.Sort) > 0 {
		findOptions.SetSort(opts.Sort)
	}

	cursor, err := coll.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("error querying collection %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	var docs []bson.D
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error decoding documents: %w", err)
	}
	return documentsToResult(docs), nil
}

// counterResult builds a one-row result from name/value pairs.
func counterResult(affected int64, pairs ...interface{}) *adapter.QueryResult {
	result := adapter.NewQueryResult()
	namer := adapter.NewColumnNamer()
	row := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		name := result.AddColumn(namer, pairs[i].(string), "")
		row[name] = pairs[i+1]
	}
	result.Rows = append(result.Rows, row)
	result.SetRowsAffected(affected)
	return result
}

// GetTableData fetches one page of a collection.
func (c *Connection) GetTableData(ctx context.Context, database, table string, limit, offset int) (*adapter.QueryResult, error) {
	if _, err := c.handle("get_table_data"); err != nil {
		return nil, err
	}

	query, err := NewQueryBuilder().BuildSelectQuery(adapter.QueryRequest{
		Type:     adapter.MongoDB,
		Database: database,
		Table:    table,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, adapter.NewQueryError(adapter.MongoDB, table, err)
	}

	result, err := c.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	result.FinalQuery = query
	return result, nil
}
