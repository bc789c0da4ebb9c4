// Package baserow 提供 Baserow REST API 客户端
package baserow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxPageSize = 200

// Config Baserow 客户端配置
type Config struct {
	BaseURL    string
	JWT        string // 结构类接口（建表、加字段）需要 JWT
	Token      string // 数据库 token，只能读写行
	DatabaseID int64
	PageSize   int
	Timeout    time.Duration
}

// Client Baserow 客户端
type Client struct {
	baseURL    string
	jwt        string
	token      string
	databaseID int64
	pageSize   int
	httpClient *http.Client
}

// APIError 非 2xx 响应
type APIError struct {
	StatusCode int
	Body       string
}

// Error 实现 error 接口
func (e *APIError) Error() string {
	return fmt.Sprintf("baserow api error %d: %s", e.StatusCode, e.Body)
}

// NewClient 创建 Baserow 客户端
func NewClient(cfg *Config) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		jwt:        cfg.JWT,
		token:      cfg.Token,
		databaseID: cfg.DatabaseID,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Table 表
type Table struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
	DatabaseID int64  `json:"database_id"`
}

// Field 字段
type Field struct {
	ID      int64  `json:"id"`
	TableID int64  `json:"table_id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Primary bool   `json:"primary"`
}

// rowsPage 行分页响应
type rowsPage struct {
	Count   int                      `json:"count"`
	Next    *string                  `json:"next"`
	Results []map[string]interface{} `json:"results"`
}

// ListTables 列出数据库下的所有表
func (c *Client) ListTables(ctx context.Context) ([]Table, error) {
	var tables []Table
	path := fmt.Sprintf("/api/database/tables/database/%d/", c.databaseID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// CreateTable 创建表
func (c *Client) CreateTable(ctx context.Context, name string) (*Table, error) {
	var table Table
	path := fmt.Sprintf("/api/database/tables/database/%d/", c.databaseID)
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"name": name}, &table); err != nil {
		return nil, err
	}
	return &table, nil
}

// ListFields 列出表字段
func (c *Client) ListFields(ctx context.Context, tableID int64) ([]Field, error) {
	var fields []Field
	path := fmt.Sprintf("/api/database/fields/table/%d/", tableID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// CreateField 创建字段
func (c *Client) CreateField(ctx context.Context, tableID int64, name, fieldType string) (*Field, error) {
	var field Field
	path := fmt.Sprintf("/api/database/fields/table/%d/", tableID)
	body := map[string]string{"name": name, "type": fieldType}
	if err := c.do(ctx, http.MethodPost, path, nil, body, &field); err != nil {
		return nil, err
	}
	return &field, nil
}

// ListRows 按页读取行，最多返回 limit 行；limit<=0 时读取全部
func (c *Client) ListRows(ctx context.Context, tableID int64, limit int) ([]map[string]interface{}, error) {
	path := fmt.Sprintf("/api/database/rows/table/%d/", tableID)
	rows := make([]map[string]interface{}, 0)

	// 偏移量为 (page-1)*size，各页必须同一 size，超出部分最后截断
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("user_field_names", "true")
		query.Set("page", strconv.Itoa(page))
		query.Set("size", strconv.Itoa(c.pageSize))

		var resp rowsPage
		if err := c.do(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
			return nil, err
		}
		rows = append(rows, resp.Results...)

		if resp.Next == nil || len(resp.Results) == 0 {
			break
		}
		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// CreateRow 创建行，字段按名称提交
func (c *Client) CreateRow(ctx context.Context, tableID int64, fields map[string]interface{}) (map[string]interface{}, error) {
	path := fmt.Sprintf("/api/database/rows/table/%d/", tableID)
	query := url.Values{}
	query.Set("user_field_names", "true")

	var row map[string]interface{}
	if err := c.do(ctx, http.MethodPost, path, query, fields, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// authorization 优先使用 JWT
func (c *Client) authorization() string {
	if c.jwt != "" {
		return "JWT " + c.jwt
	}
	if c.token != "" {
		return "Token " + c.token
	}
	return ""
}

// do 发送请求并解析 JSON 响应
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth := c.authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
