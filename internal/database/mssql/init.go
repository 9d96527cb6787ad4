package mssql

import (
	"github.com/redbco/dbgrid/pkg/adapter"
)

func init() {
	builder := NewQueryBuilder()
	adapter.RegisterBuilders(adapter.MSSQL, builder, builder)
}
