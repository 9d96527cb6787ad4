package mongodb

import (
	"github.com/redbco/dbgrid/pkg/adapter"
)

func init() {
	builder := NewQueryBuilder()
	adapter.RegisterBuilders(adapter.MongoDB, builder, builder)
}
