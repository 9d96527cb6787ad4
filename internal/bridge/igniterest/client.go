package igniterest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client calls the Ignite REST endpoint of one node.
type Client struct {
	BaseURL    string
	Username   string
	Password   string
	HTTPClient *http.Client
}

// envelope is the wrapper every REST reply comes in. successStatus 0 means success.
type envelope struct {
	SuccessStatus int             `json:"successStatus"`
	Error         string          `json:"error"`
	Response      json.RawMessage `json:"response"`
}

// NewClient builds a client for host:port.
func NewClient(host string, port int, username, password string) *Client {
	return &Client{
		BaseURL:    "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		Username:   username,
		Password:   password,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Command runs cmd with the given parameters and decodes the response
// payload into out.
func (c *Client) Command(ctx context.Context, cmd string, params url.Values, out interface{}) error {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("cmd", cmd)
	if c.Username != "" {
		query.Set("ignite.login", c.Username)
		query.Set("ignite.password", c.Password)
	}

	endpoint := fmt.Sprintf("%s/ignite?%s", c.BaseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	if env.SuccessStatus != 0 {
		if env.Error == "" {
			env.Error = fmt.Sprintf("status %d", env.SuccessStatus)
		}
		return fmt.Errorf("%s failed: %s", cmd, env.Error)
	}
	if out == nil || len(env.Response) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("error decoding %s response: %w", cmd, err)
	}
	return nil
}

// Version returns the node's version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version string
	if err := c.Command(ctx, "version", nil, &version); err != nil {
		return "", err
	}
	return version, nil
}

type topologyNode struct {
	Caches []struct {
		Name      string `json:"name"`
		Mode      string `json:"mode"`
		SQLSchema string `json:"sqlSchema"`
	} `json:"caches"`
}

// CacheNames lists the distinct caches reported by the topology.
func (c *Client) CacheNames(ctx context.Context) ([]string, error) {
	var nodes []topologyNode
	params := url.Values{"attr": {"false"}, "mtr": {"false"}}
	if err := c.Command(ctx, "top", params, &nodes); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	for _, node := range nodes {
		for _, cache := range node.Caches {
			if cache.Name != "" && !seen[cache.Name] {
				seen[cache.Name] = true
				names = append(names, cache.Name)
			}
		}
	}
	return names, nil
}

type fieldMetadata struct {
	FieldName     string `json:"fieldName"`
	FieldTypeName string `json:"fieldTypeName"`
}

type fieldsResult struct {
	Items          [][]interface{} `json:"items"`
	FieldsMetadata []fieldMetadata `json:"fieldsMetadata"`
}

// FieldsQuery runs a SQL fields query and returns the column names and rows.
func (c *Client) FieldsQuery(ctx context.Context, cacheName, sql string, pageSize int) ([]string, [][]interface{}, error) {
	params := url.Values{
		"qry":      {sql},
		"pageSize": {strconv.Itoa(pageSize)},
	}
	if cacheName != "" {
		params.Set("cacheName", cacheName)
	}

	var res fieldsResult
	if err := c.Command(ctx, "qryfldexe", params, &res); err != nil {
		return nil, nil, err
	}

	columns := make([]string, len(res.FieldsMetadata))
	for i, f := range res.FieldsMetadata {
		columns[i] = f.FieldName
	}
	return columns, res.Items, nil
}

// ScanEntry is one key/value pair returned by a scan.
type ScanEntry struct {
	Key   interface{} `json:"key"`
	Value interface{} `json:"value"`
}

// Scan reads the first pageSize entries of a cache.
func (c *Client) Scan(ctx context.Context, cacheName string, pageSize int) ([]ScanEntry, error) {
	params := url.Values{
		"cacheName": {cacheName},
		"pageSize":  {strconv.Itoa(pageSize)},
	}
	var res struct {
		Items []ScanEntry `json:"items"`
	}
	if err := c.Command(ctx, "qryscanexe", params, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// CacheMetadata is the metadata command's description of one cache.
type CacheMetadata struct {
	CacheName  string                       `json:"cacheName"`
	Types      []string                     `json:"types"`
	KeyClasses map[string]string            `json:"keyClasses"`
	Fields     map[string]map[string]string `json:"fields"`
}

// Metadata describes the SQL types of a cache.
func (c *Client) Metadata(ctx context.Context, cacheName string) (*CacheMetadata, error) {
	var raw json.RawMessage
	if err := c.Command(ctx, "metadata", url.Values{"cacheName": {cacheName}}, &raw); err != nil {
		return nil, err
	}

	// Some versions reply with a list of caches, others with a single object.
	var list []CacheMetadata
	if err := json.Unmarshal(raw, &list); err == nil {
		for i := range list {
			if list[i].CacheName == cacheName {
				return &list[i], nil
			}
		}
		if len(list) > 0 {
			return &list[0], nil
		}
		return &CacheMetadata{CacheName: cacheName}, nil
	}

	var meta CacheMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("error decoding metadata response: %w", err)
	}
	return &meta, nil
}
