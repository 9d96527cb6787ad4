package postgres

import (
	"github.com/redbco/dbgrid/pkg/adapter"
)

func init() {
	// Register PostgreSQL builders with the global registry
	builder := NewQueryBuilder()
	adapter.RegisterBuilders(adapter.PostgreSQL, builder, builder)
}
