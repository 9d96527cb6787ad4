package ignite

import (
	"github.com/redbco/dbgrid/pkg/adapter"
)

func init() {
	builder := NewQueryBuilder()
	adapter.RegisterBuilders(adapter.Ignite, builder, builder)
}
