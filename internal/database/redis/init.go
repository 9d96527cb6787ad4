package redis

import (
	"github.com/redbco/dbgrid/pkg/adapter"
)

func init() {
	builder := NewQueryBuilder()
	adapter.RegisterBuilders(adapter.Redis, builder, builder)
}
