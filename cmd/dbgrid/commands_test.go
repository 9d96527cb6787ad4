package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/dbgrid/pkg/adapter"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		input string
		want  adapter.Filter
	}{
		{"age>18", adapter.Filter{Column: "age", Operator: adapter.OpGreaterThan, Value: adapter.SingleValue(int64(18))}},
		{"age>=18", adapter.Filter{Column: "age", Operator: adapter.OpGreaterThanOrEqual, Value: adapter.SingleValue(int64(18))}},
		{"name=Ada", adapter.Filter{Column: "name", Operator: adapter.OpEquals, Value: adapter.SingleValue("Ada")}},
		{"score<=2.5", adapter.Filter{Column: "score", Operator: adapter.OpLessThanOrEqual, Value: adapter.SingleValue(2.5)}},
		{"active!=true", adapter.Filter{Column: "active", Operator: adapter.OpNotEquals, Value: adapter.SingleValue(true)}},
		{"email~%@x.org", adapter.Filter{Column: "email", Operator: adapter.OpLike, Value: adapter.SingleValue("%@x.org")}},
		{"deleted_at=null", adapter.Filter{Column: "deleted_at", Operator: adapter.OpIsNull}},
		{"deleted_at!=NULL", adapter.Filter{Column: "deleted_at", Operator: adapter.OpIsNotNull}},
		{"expr=a>b", adapter.Filter{Column: "expr", Operator: adapter.OpEquals, Value: adapter.SingleValue("a>b")}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseFilter(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"noop", "=5"} {
		_, err := parseFilter(bad)
		assert.Error(t, err, bad)
	}
}
