// Package igniterest serves bridge actions against an Ignite node through
// its REST API.
package igniterest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/redbco/dbgrid/internal/bridge"
	"github.com/redbco/dbgrid/pkg/logger"
)

// DefaultRESTPort is the port of the Ignite REST module.
const DefaultRESTPort = 8080

const (
	defaultScanLimit = 100
	queryPageSize    = 1000
	schemaSampleSize = 10
)

// Options configures a Handler.
type Options struct {
	// RESTPort overrides the port sent by the caller. Zero keeps it.
	RESTPort   int
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Handler implements bridge.Handler. Connections are keyed by connection id.
type Handler struct {
	opts    Options
	mu      sync.Mutex
	clients map[string]*Client
}

var (
	_ bridge.Handler           = (*Handler)(nil)
	_ bridge.ConnectionCounter = (*Handler)(nil)
)

// NewHandler creates a handler with no connections.
func NewHandler(opts Options) *Handler {
	return &Handler{opts: opts, clients: make(map[string]*Client)}
}

// Connections returns the number of open connections.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handle serves one request.
func (h *Handler) Handle(ctx context.Context, req bridge.Request) *bridge.Response {
	var (
		resp *bridge.Response
		err  error
	)

	switch req.Action {
	case bridge.ActionConnect:
		resp, err = h.connect(ctx, req)
	case bridge.ActionDisconnect:
		resp = h.disconnect(req)
	case bridge.ActionTest:
		resp, err = h.test(ctx, req)
	case bridge.ActionCaches:
		resp, err = h.withClient(ctx, req, h.caches)
	case bridge.ActionTables:
		resp, err = h.withClient(ctx, req, h.tables)
	case bridge.ActionQuery:
		resp, err = h.withClient(ctx, req, h.query)
	case bridge.ActionScan:
		resp, err = h.withClient(ctx, req, h.scan)
	case bridge.ActionSchema:
		resp, err = h.withClient(ctx, req, h.schema)
	default:
		return bridge.Fail(fmt.Sprintf("Unknown action: %s", req.Action))
	}

	if err != nil {
		return bridge.Fail(err.Error())
	}
	return resp
}

func (h *Handler) newClient(req bridge.Request) *Client {
	port := req.Port
	if h.opts.RESTPort > 0 {
		port = h.opts.RESTPort
	}
	if port == 0 {
		port = DefaultRESTPort
	}
	c := NewClient(req.Host, port, req.Username, req.Password)
	if h.opts.HTTPClient != nil {
		c.HTTPClient = h.opts.HTTPClient
	}
	return c
}

func (h *Handler) connect(ctx context.Context, req bridge.Request) (*bridge.Response, error) {
	if req.ConnectionID == "" {
		return nil, fmt.Errorf("connectionId is required")
	}
	client := h.newClient(req)
	if _, err := client.Version(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.clients[req.ConnectionID] = client
	total := len(h.clients)
	h.mu.Unlock()

	if h.opts.Logger != nil {
		h.opts.Logger.Info("Connected: %s (total: %d)", req.ConnectionID, total)
	}
	return bridge.OK("Connected to Ignite"), nil
}

func (h *Handler) disconnect(req bridge.Request) *bridge.Response {
	h.mu.Lock()
	_, ok := h.clients[req.ConnectionID]
	delete(h.clients, req.ConnectionID)
	remaining := len(h.clients)
	h.mu.Unlock()

	if h.opts.Logger != nil {
		if ok {
			h.opts.Logger.Info("Removed connection: %s (remaining: %d)", req.ConnectionID, remaining)
		} else {
			h.opts.Logger.Warn("Connection not found: %s", req.ConnectionID)
		}
	}
	return bridge.OK("")
}

func (h *Handler) test(ctx context.Context, req bridge.Request) (*bridge.Response, error) {
	caches, err := h.newClient(req).CacheNames(ctx)
	if err != nil {
		return nil, err
	}
	return bridge.OK(fmt.Sprintf("Connected successfully. Found %d caches.", len(caches))), nil
}

func (h *Handler) withClient(ctx context.Context, req bridge.Request,
	fn func(context.Context, *Client, bridge.Request) (*bridge.Response, error)) (*bridge.Response, error) {
	h.mu.Lock()
	client, ok := h.clients[req.ConnectionID]
	h.mu.Unlock()
	if !ok {
		return bridge.Fail("Not connected"), nil
	}
	return fn(ctx, client, req)
}

func (h *Handler) caches(ctx context.Context, client *Client, req bridge.Request) (*bridge.Response, error) {
	names, err := client.CacheNames(ctx)
	if err != nil {
		return nil, err
	}
	resp := bridge.OK("")
	resp.Caches = make([]bridge.NamedItem, 0, len(names))
	for _, name := range names {
		resp.Caches = append(resp.Caches, bridge.NamedItem{Name: name, Type: "cache"})
	}
	return resp, nil
}

// tables lists the SQL types of a cache. A cache without SQL types is
// reported as a single table named after the cache.
func (h *Handler) tables(ctx context.Context, client *Client, req bridge.Request) (*bridge.Response, error) {
	resp := bridge.OK("")
	meta, err := client.Metadata(ctx, req.CacheName)
	if err != nil || len(meta.Types) == 0 {
		resp.Tables = []bridge.NamedItem{{Name: req.CacheName, Type: "cache"}}
		return resp, nil
	}
	for _, t := range meta.Types {
		resp.Tables = append(resp.Tables, bridge.NamedItem{Name: t, Type: "table"})
	}
	return resp, nil
}

func (h *Handler) query(ctx context.Context, client *Client, req bridge.Request) (*bridge.Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	columns, items, err := client.FieldsQuery(ctx, req.CacheName, req.Query, queryPageSize)
	if err != nil {
		return nil, fmt.Errorf("Query failed: %w", err)
	}

	if len(columns) == 0 && len(items) > 0 {
		for i := range items[0] {
			columns = append(columns, fmt.Sprintf("column_%d", i))
		}
	}

	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if i < len(item) {
				row[col] = item[i]
			} else {
				row[col] = nil
			}
		}
		rows = append(rows, row)
	}

	affected := int64(len(rows))
	resp := bridge.OK("")
	resp.Result = &bridge.Result{
		Columns:      columns,
		Rows:         rows,
		RowsAffected: &affected,
		FinalQuery:   req.Query,
	}
	return resp, nil
}

func (h *Handler) scan(ctx context.Context, client *Client, req bridge.Request) (*bridge.Response, error) {
	limit, offset := defaultScanLimit, 0
	if req.Limit != nil {
		limit = *req.Limit
	}
	if req.Offset != nil {
		offset = *req.Offset
	}

	entries, err := client.Scan(ctx, req.CacheName, limit+offset)
	if err != nil {
		return nil, fmt.Errorf("Scan failed: %w", err)
	}

	columns, rows := ScanRows(entries, limit, offset)
	affected := int64(len(rows))
	resp := bridge.OK("")
	resp.Result = &bridge.Result{Columns: columns, Rows: rows, RowsAffected: &affected}
	return resp, nil
}

// ScanRows pages entries and flattens them into rows. Object values become
// one column per field; scalar values go into _value. _key is always the
// first column.
func ScanRows(entries []ScanEntry, limit, offset int) ([]string, []map[string]interface{}) {
	columns := []string{"_key"}
	seen := map[string]bool{"_key": true}
	addColumn := func(name string) {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}

	start := min(offset, len(entries))
	end := min(offset+limit, len(entries))
	rows := make([]map[string]interface{}, 0, end-start)

	for _, entry := range entries[start:end] {
		row := map[string]interface{}{"_key": entry.Key}
		if fields, ok := entry.Value.(map[string]interface{}); ok {
			names := make([]string, 0, len(fields))
			for k := range fields {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				addColumn(k)
				row[k] = fields[k]
			}
		} else {
			addColumn("_value")
			row["_value"] = entry.Value
		}
		rows = append(rows, row)
	}
	return columns, rows
}

func (h *Handler) schema(ctx context.Context, client *Client, req bridge.Request) (*bridge.Response, error) {
	table := req.TableName
	if table == "" {
		table = req.CacheName
	}

	if meta, err := client.Metadata(ctx, req.CacheName); err == nil {
		if fields := lookupFields(meta.Fields, table); fields != nil {
			resp := bridge.OK("")
			resp.Schema = &bridge.Schema{TableName: table, Columns: schemaColumns(fields)}
			return resp, nil
		}
	}

	// Infer the layout from a sample of entries.
	entries, err := client.Scan(ctx, req.CacheName, schemaSampleSize)
	if err != nil {
		return nil, fmt.Errorf("Failed to get schema: %w", err)
	}
	resp := bridge.OK("")
	resp.Schema = &bridge.Schema{TableName: req.CacheName, Columns: InferColumns(entries)}
	return resp, nil
}

func lookupFields(fields map[string]map[string]string, table string) map[string]string {
	for name, f := range fields {
		if strings.EqualFold(name, table) {
			return f
		}
	}
	return nil
}

func schemaColumns(fields map[string]string) []bridge.SchemaColumn {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := make([]bridge.SchemaColumn, 0, len(names))
	for _, name := range names {
		columns = append(columns, bridge.SchemaColumn{
			Name:         name,
			DataType:     javaTypeName(fields[name]),
			IsNullable:   boolPtr(true),
			IsPrimaryKey: boolPtr(false),
		})
	}
	return columns
}

// InferColumns derives columns from sampled entries: _key, then the fields
// of object values or _value for scalars.
func InferColumns(entries []ScanEntry) []bridge.SchemaColumn {
	columns := []bridge.SchemaColumn{{Name: "_key", DataType: "UNKNOWN", IsNullable: boolPtr(false), IsPrimaryKey: boolPtr(true)}}
	seen := map[string]bool{"_key": true}

	for _, entry := range entries {
		if fields, ok := entry.Value.(map[string]interface{}); ok {
			names := make([]string, 0, len(fields))
			for k := range fields {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				if !seen[k] {
					seen[k] = true
					columns = append(columns, bridge.SchemaColumn{Name: k, DataType: jsonTypeName(fields[k]), IsNullable: boolPtr(true)})
				}
			}
		} else if !seen["_value"] {
			seen["_value"] = true
			columns = append(columns, bridge.SchemaColumn{Name: "_value", DataType: jsonTypeName(entry.Value), IsNullable: boolPtr(true)})
		}
	}
	return columns
}

func javaTypeName(class string) string {
	if i := strings.LastIndex(class, "."); i >= 0 {
		return class[i+1:]
	}
	return class
}

func jsonTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	default:
		return "object"
	}
}

func boolPtr(b bool) *bool {
	return &b
}
