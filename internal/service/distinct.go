package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// DistinctValues lists the distinct values of one column as strings, with
// null rendered as NULL. Engines without SQL are not supported.
func (s *Service) DistinctValues(ctx context.Context, id string, req adapter.DistinctValuesRequest) (*adapter.DistinctValuesResponse, error) {
	cfg, err := s.ensureConnected(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cfg.Type.IsSQL() {
		return nil, adapter.NewUnsupportedOperationError(cfg.Type, "distinct_values", "distinct values need a SQL engine")
	}

	qb, err := adapter.GetQueryBuilder(cfg.Type)
	if err != nil {
		return nil, err
	}
	dq, ok := qb.(adapter.DistinctQueryBuilder)
	if !ok {
		return nil, adapter.NewUnsupportedOperationError(cfg.Type, "distinct_values", "builder cannot list distinct values")
	}
	query, err := dq.BuildDistinctQuery(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	start := time.Now()
	result, err := s.pool.ExecuteQuery(ctx, id, query)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if v, ok := row[req.Column]; ok {
			values = append(values, RenderValue(v))
		}
	}

	return &adapter.DistinctValuesResponse{
		Values:        values,
		TotalCount:    len(values),
		ExecutionTime: time.Since(start).Milliseconds(),
		QueryUsed:     query,
	}, nil
}

// RenderValue formats a result value for display in a filter list.
func RenderValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
