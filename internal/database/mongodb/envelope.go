package mongodb

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// Envelope is the JSON command ExecuteQuery accepts. It is parsed as relaxed
// Extended JSON, so {"$oid": ...} and {"$date": ...} values keep their BSON types.
type Envelope struct {
	DB         string          `bson:"db,omitempty"`
	Collection string          `bson:"collection"`
	Operation  string          `bson:"operation"`
	Query      bson.D          `bson:"query,omitempty"`
	Filter     bson.D          `bson:"filter,omitempty"`
	Update     bson.D          `bson:"update,omitempty"`
	Document   bson.D          `bson:"document,omitempty"`
	Documents  []bson.D        `bson:"documents,omitempty"`
	Options    EnvelopeOptions `bson:"options,omitempty"`
}

// EnvelopeOptions are the find options of an envelope.
type EnvelopeOptions struct {
	Limit *int64 `bson:"limit,omitempty"`
	Skip  *int64 `bson:"skip,omitempty"`
	Sort  bson.D `bson:"sort,omitempty"`
}

// Operations an envelope may name.
const (
	OpFind       = "find"
	OpInsertOne  = "insertOne"
	OpInsertMany = "insertMany"
	OpUpdateOne  = "updateOne"
	OpUpdateMany = "updateMany"
	OpDeleteOne  = "deleteOne"
	OpDeleteMany = "deleteMany"
)

// ParseEnvelope decodes and validates a statement. A missing operation means find.
func ParseEnvelope(statement string) (*Envelope, error) {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty query", adapter.ErrInvalidQuery)
	}

	var env Envelope
	if err := bson.UnmarshalExtJSON([]byte(trimmed), false, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid MongoDB query: %v", adapter.ErrInvalidQuery, err)
	}
	if env.Collection == "" {
		return nil, fmt.Errorf("%w: collection is required", adapter.ErrInvalidQuery)
	}
	if env.Operation == "" {
		env.Operation = OpFind
	}

	switch env.Operation {
	case OpFind, OpUpdateOne, OpUpdateMany, OpDeleteOne, OpDeleteMany:
	case OpInsertOne:
		if env.Document == nil {
			return nil, fmt.Errorf("%w: insertOne requires a document", adapter.ErrInvalidQuery)
		}
	case OpInsertMany:
		if len(env.Documents) == 0 {
			return nil, fmt.Errorf("%w: insertMany requires documents", adapter.ErrInvalidQuery)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported MongoDB operation: %s", adapter.ErrInvalidQuery, env.Operation)
	}
	return &env, nil
}

// Selector returns the query document, falling back to filter, then to {}.
func (e *Envelope) Selector() bson.D {
	switch {
	case e.Query != nil:
		return e.Query
	case e.Filter != nil:
		return e.Filter
	default:
		return bson.D{}
	}
}
