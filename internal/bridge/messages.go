package bridge

// Actions understood by the helper process.
const (
	ActionHealth     = "health"
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
	ActionTest       = "test"
	ActionQuery      = "query"
	ActionScan       = "scan"
	ActionCaches     = "caches"
	ActionTables     = "tables"
	ActionSchema     = "schema"
	ActionShutdown   = "shutdown"
)

// Request is one framed call to the helper.
type Request struct {
	Action       string `json:"action"`
	ConnectionID string `json:"connectionId,omitempty"`
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	Query        string `json:"query,omitempty"`
	CacheName    string `json:"cacheName,omitempty"`
	TableName    string `json:"tableName,omitempty"`
	Limit        *int   `json:"limit,omitempty"`
	Offset       *int   `json:"offset,omitempty"`
}

// Response is the helper's reply. Only the fields relevant to the action are set.
type Response struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message,omitempty"`
	Caches      []NamedItem `json:"caches,omitempty"`
	Tables      []NamedItem `json:"tables,omitempty"`
	Result      *Result     `json:"result,omitempty"`
	Schema      *Schema     `json:"schema,omitempty"`
	Connections *int        `json:"connections,omitempty"`
}

// NamedItem is a cache or table entry.
type NamedItem struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Result is a tabular query or scan result.
type Result struct {
	Columns      []string                 `json:"columns"`
	Rows         []map[string]interface{} `json:"rows"`
	RowsAffected *int64                   `json:"rowsAffected,omitempty"`
	FinalQuery   string                   `json:"finalQuery,omitempty"`
}

// Schema describes one table's columns.
type Schema struct {
	TableName string         `json:"tableName"`
	Columns   []SchemaColumn `json:"columns"`
}

// SchemaColumn is one column of a Schema.
type SchemaColumn struct {
	Name         string      `json:"name"`
	DataType     string      `json:"dataType"`
	IsNullable   *bool       `json:"isNullable,omitempty"`
	DefaultValue interface{} `json:"defaultValue,omitempty"`
	IsPrimaryKey *bool       `json:"isPrimaryKey,omitempty"`
}

// Fail builds an unsuccessful response.
func Fail(message string) *Response {
	return &Response{Success: false, Message: message}
}

// OK builds a successful response with an optional message.
func OK(message string) *Response {
	return &Response{Success: true, Message: message}
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}
