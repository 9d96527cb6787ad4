package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redbco/dbgrid/internal/bridge"
	"github.com/redbco/dbgrid/pkg/adapter"
)

// databasesCmd lists the databases of a connection
var databasesCmd = &cobra.Command{
	Use:   "databases [connection-id]",
	Short: "List databases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		databases, err := app.Service.ListDatabases(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return app.printJSON(databases)
	},
}

// tablesCmd lists the tables of a database
var tablesCmd = &cobra.Command{
	Use:   "tables [connection-id] [database]",
	Short: "List tables, collections, caches or key tables",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database := ""
		if len(args) > 1 {
			database = args[1]
		}
		tables, err := app.Service.ListTables(cmd.Context(), args[0], database)
		if err != nil {
			return err
		}
		return app.printJSON(tables)
	},
}

// schemaCmd describes a table
var schemaCmd = &cobra.Command{
	Use:   "schema [connection-id] [database] [table]",
	Short: "Show a table schema",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := app.Service.TableSchema(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return err
		}
		return app.printJSON(schema)
	},
}

// queryCmd runs a raw statement
var queryCmd = &cobra.Command{
	Use:   "query [connection-id] [statement]",
	Short: "Execute a statement in the engine's own language",
	Long: "Execute a statement. SQL engines take SQL, MongoDB takes a JSON command envelope, " +
		"Redis takes a command line and Ignite takes SQL or SCAN <cache> [LIMIT n] [OFFSET m].",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := app.Service.ExecuteQuery(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return app.printJSON(result)
	},
}

// dataCmd loads one page of a table through the query builder
var dataCmd = &cobra.Command{
	Use:   "data [connection-id] [table]",
	Short: "Load filtered, sorted, paginated table data",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := adapter.QueryRequest{Table: args[1]}
		req.Database, _ = cmd.Flags().GetString("database")
		req.Schema, _ = cmd.Flags().GetString("schema")
		req.Limit, _ = cmd.Flags().GetInt("limit")
		req.Offset, _ = cmd.Flags().GetInt("offset")

		orders, _ := cmd.Flags().GetStringArray("order")
		for _, o := range orders {
			order, err := adapter.ParseOrderBy(o)
			if err != nil {
				return err
			}
			req.OrderBy = append(req.OrderBy, order)
		}

		filters, _ := cmd.Flags().GetStringArray("filter")
		for _, f := range filters {
			filter, err := parseFilter(f)
			if err != nil {
				return err
			}
			req.Filters = append(req.Filters, filter)
		}

		resp, err := app.Service.LoadTableData(cmd.Context(), args[0], req)
		if err != nil {
			return err
		}
		return app.printJSON(resp)
	},
}

// distinctCmd lists the distinct values of a column
var distinctCmd = &cobra.Command{
	Use:   "distinct [connection-id] [table] [column]",
	Short: "List the distinct values of a column",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := adapter.DistinctValuesRequest{Table: args[1], Column: args[2]}
		req.Database, _ = cmd.Flags().GetString("database")
		req.Schema, _ = cmd.Flags().GetString("schema")
		req.SearchTerm, _ = cmd.Flags().GetString("search")
		req.Limit, _ = cmd.Flags().GetInt("limit")

		resp, err := app.Service.DistinctValues(cmd.Context(), args[0], req)
		if err != nil {
			return err
		}
		return app.printJSON(resp)
	},
}

// saveCmd applies a row diff read from a JSON file
var saveCmd = &cobra.Command{
	Use:   "save [connection-id] [table]",
	Short: "Apply inserts, updates and deletes from a JSON save request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read save request: %w", err)
		}
		var req adapter.SaveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("failed to parse save request: %w", err)
		}

		database, _ := cmd.Flags().GetString("database")
		schema, _ := cmd.Flags().GetString("schema")
		resp, err := app.Service.SaveChanges(cmd.Context(), args[0], database, schema, args[1], req)
		if err != nil {
			return err
		}
		return app.printJSON(resp)
	},
}

// testCmd tests a configured connection without pooling it
var testCmd = &cobra.Command{
	Use:   "test [connection-id]",
	Short: "Test a configured connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ok := app.Config.Lookup(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", adapter.ErrConnectionNotFound, args[0])
		}
		ok, err := app.Service.TestConnection(cmd.Context(), cfg)
		status := map[string]interface{}{"id": cfg.ID, "connected": ok}
		if err != nil {
			status["error"] = err.Error()
		}
		return app.printJSON(status)
	},
}

// bridgeCmd groups helper process commands
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Manage the Ignite bridge helper",
}

// bridgeStatusCmd reports the helper's health
var bridgeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a bridge helper is listening",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := bridgeManager(cmd)
		resp, err := manager.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("no bridge is listening at %s: %w", manager.PipePath(), err)
		}
		return app.printJSON(resp)
	},
}

// bridgeShutdownCmd stops a running helper
var bridgeShutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop a running bridge helper",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := bridgeManager(cmd)
		if _, err := manager.Health(cmd.Context()); err != nil {
			return fmt.Errorf("no bridge is listening at %s: %w", manager.PipePath(), err)
		}
		if err := manager.Shutdown(cmd.Context()); err != nil {
			return err
		}
		return app.printJSON(bridge.OK("Bridge shut down"))
	},
}

// versionCmd prints build information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersionInfo()
	},
}

// bridgeManager returns a manager for the pipe given by --pipe, or the
// configured one.
func bridgeManager(cmd *cobra.Command) *bridge.Manager {
	pipe, _ := cmd.Flags().GetString("pipe")
	if pipe == "" {
		return app.Bridge
	}
	opts := app.Config.Bridge.ManagerOptions(app.Logger)
	opts.PipePath = pipe
	return bridge.NewManager(opts)
}

// parseFilter reads col=value, col!=value, col>value, col>=value,
// col<value, col<=value and col~pattern (LIKE).
func parseFilter(s string) (adapter.Filter, error) {
	ops := []struct {
		token string
		op    adapter.FilterOperator
	}{
		{"!=", adapter.OpNotEquals},
		{">=", adapter.OpGreaterThanOrEqual},
		{"<=", adapter.OpLessThanOrEqual},
		{"=", adapter.OpEquals},
		{">", adapter.OpGreaterThan},
		{"<", adapter.OpLessThan},
		{"~", adapter.OpLike},
	}

	best, bestAt := -1, len(s)
	for i, o := range ops {
		if at := strings.Index(s, o.token); at >= 0 && at < bestAt {
			best, bestAt = i, at
		}
	}
	if best < 0 || bestAt == 0 {
		return adapter.Filter{}, fmt.Errorf("invalid filter %q, expected column<op>value", s)
	}

	column := strings.TrimSpace(s[:bestAt])
	raw := s[bestAt+len(ops[best].token):]
	op := ops[best].op

	if strings.EqualFold(raw, "null") {
		switch op {
		case adapter.OpEquals:
			return adapter.Filter{Column: column, Operator: adapter.OpIsNull}, nil
		case adapter.OpNotEquals:
			return adapter.Filter{Column: column, Operator: adapter.OpIsNotNull}, nil
		}
	}
	return adapter.Filter{Column: column, Operator: op, Value: adapter.SingleValue(parseScalar(raw))}, nil
}

func parseScalar(raw string) interface{} {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func setupCommands() {
	dataCmd.Flags().String("database", "", "Database name")
	dataCmd.Flags().String("schema", "", "Schema name")
	dataCmd.Flags().Int("limit", 100, "Maximum rows to return")
	dataCmd.Flags().Int("offset", 0, "Rows to skip")
	dataCmd.Flags().StringArray("order", nil, "Sort key as column[:asc|desc] (repeatable)")
	dataCmd.Flags().StringArray("filter", nil, "Filter as column<op>value with op one of = != > >= < <= ~ (repeatable)")

	distinctCmd.Flags().String("database", "", "Database name")
	distinctCmd.Flags().String("schema", "", "Schema name")
	distinctCmd.Flags().String("search", "", "Case-insensitive substring to match")
	distinctCmd.Flags().Int("limit", 0, "Maximum values to return (0 for all)")

	saveCmd.Flags().String("file", "", "Path to a JSON save request")
	saveCmd.Flags().String("database", "", "Database name")
	saveCmd.Flags().String("schema", "", "Schema name")
	saveCmd.MarkFlagRequired("file")

	bridgeCmd.PersistentFlags().String("pipe", "", "Bridge socket path (defaults to the configured pipe)")
	bridgeCmd.AddCommand(bridgeStatusCmd, bridgeShutdownCmd)

	rootCmd.AddCommand(
		databasesCmd,
		tablesCmd,
		schemaCmd,
		queryCmd,
		dataCmd,
		distinctCmd,
		saveCmd,
		testCmd,
		bridgeCmd,
		versionCmd,
	)
}
