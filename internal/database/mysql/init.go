package mysql

import (
	"github.com/redbco/dbgrid/pkg/adapter"
)

func init() {
	// Register MySQL builders with the global registry
	builder := NewQueryBuilder()
	adapter.RegisterBuilders(adapter.MySQL, builder, builder)
}
