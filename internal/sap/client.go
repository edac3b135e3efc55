package sap

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// =============================================================================
// Client — SAP B1 Service Layer客户端
// 提供登录会话管理和查询/过账请求，会话在调用之间复用
// =============================================================================

// Config Service Layer连接参数
type Config struct {
	BaseURL       string
	Username      string
	Password      string
	CompanyDB     string
	SkipTLSVerify bool
	LookupTimeout time.Duration // 查询类调用超时
	PostTimeout   time.Duration // 过账调用超时
}

// SessionStore 跨实例共享的会话存储（可选，如redis）
type SessionStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, sessionID string, ttl time.Duration) error
}

// Client SAP B1 Service Layer客户端
type Client struct {
	cfg   Config
	store SessionStore

	sessionID     string    // 缓存的B1SESSION
	sessionExpire time.Time // 会话过期时间
	mu            sync.RWMutex

	lookupClient *http.Client
	postClient   *http.Client
}

// NewClient 创建Service Layer客户端实例
func NewClient(cfg Config, store SessionStore) *Client {
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = 10 * time.Second
	}
	if cfg.PostTimeout == 0 {
		cfg.PostTimeout = 30 * time.Second
	}
	transport := http.DefaultTransport
	if cfg.SkipTLSVerify {
		// SAP B1本地部署通常使用自签名证书
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}
	return &Client{
		cfg:          cfg,
		store:        store,
		lookupClient: &http.Client{Timeout: cfg.LookupTimeout, Transport: transport},
		postClient:   &http.Client{Timeout: cfg.PostTimeout, Transport: transport},
	}
}

// EnsureSession 确保持有有效会话，必要时登录
// 使用双重检查锁定缓存会话，提前60秒刷新避免过期
func (c *Client) EnsureSession(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.sessionID != "" && time.Now().Before(c.sessionExpire) {
		id := c.sessionID
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// 双重检查：其他goroutine可能已经刷新了会话
	if c.sessionID != "" && time.Now().Before(c.sessionExpire) {
		return c.sessionID, nil
	}

	// 先查共享存储（多实例共用一个登录）
	if c.store != nil {
		if id, err := c.store.Get(ctx); err == nil && id != "" {
			c.sessionID = id
			c.sessionExpire = time.Now().Add(5 * time.Minute)
			return id, nil
		}
	}

	return c.login(ctx)
}

// login 调用/b1s/v1/Login获取新会话，调用方必须持有写锁
func (c *Client) login(ctx context.Context) (string, error) {
	reqBody := map[string]string{
		"CompanyDB": c.cfg.CompanyDB,
		"UserName":  c.cfg.Username,
		"Password":  c.cfg.Password,
	}
	bodyBytes, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/b1s/v1/Login", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &GatewayError{Kind: KindUnreachable, Op: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.lookupClient.Do(req)
	if err != nil {
		return "", transportError("login", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError("login", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &GatewayError{Kind: KindUnreachable, Op: "login",
			Err: fmt.Errorf("login rejected [%d]: %s", resp.StatusCode, truncate(respBody))}
	}

	var result struct {
		SessionID      string `json:"SessionId"`
		SessionTimeout int    `json:"SessionTimeout"` // 分钟
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &GatewayError{Kind: KindUnreachable, Op: "login", Err: err}
	}

	timeout := time.Duration(result.SessionTimeout) * time.Minute
	if timeout <= time.Minute {
		timeout = 30 * time.Minute
	}

	// 提前60秒过期
	c.sessionID = result.SessionID
	c.sessionExpire = time.Now().Add(timeout - time.Minute)

	if c.store != nil {
		c.store.Set(ctx, c.sessionID, timeout-time.Minute)
	}

	return c.sessionID, nil
}

// invalidateSession 丢弃缓存会话（401后触发重新登录）
func (c *Client) invalidateSession() {
	c.mu.Lock()
	c.sessionID = ""
	c.sessionExpire = time.Time{}
	c.mu.Unlock()
}

// doRequest 执行Service Layer请求
// 自动携带会话cookie，401时重新登录并重试一次
func (c *Client) doRequest(ctx context.Context, client *http.Client, method, path string, body interface{}, result interface{}) error {
	op := method + " " + path
	for attempt := 0; attempt < 2; attempt++ {
		sessionID, err := c.EnsureSession(ctx)
		if err != nil {
			return err
		}

		var bodyReader io.Reader
		if body != nil {
			bodyBytes, err := json.Marshal(body)
			if err != nil {
				return &GatewayError{Kind: KindUnreachable, Op: op, Err: err}
			}
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
		if err != nil {
			return &GatewayError{Kind: KindUnreachable, Op: op, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(&http.Cookie{Name: "B1SESSION", Value: sessionID})

		resp, err := client.Do(req)
		if err != nil {
			return transportError(op, err)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return transportError(op, err)
		}

		// 会话过期，重新登录后重试
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.invalidateSession()
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &GatewayError{Kind: KindRemoteRejected, Op: op,
				Status: resp.StatusCode, Body: truncate(respBody)}
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return &GatewayError{Kind: KindRemoteRejected, Op: op,
					Status: resp.StatusCode, Body: "malformed response: " + err.Error()}
			}
		}
		return nil
	}
	return &GatewayError{Kind: KindUnreachable, Op: op, Err: fmt.Errorf("session refresh loop exhausted")}
}

// queryList 执行SQLQueries查询，解包{"value": [...]}信封
func (c *Client) queryList(ctx context.Context, name, paramList string, out interface{}) error {
	var body interface{} = map[string]string{}
	if paramList != "" {
		body = map[string]string{"ParamList": paramList}
	}
	envelope := struct {
		Value json.RawMessage `json:"value"`
	}{}
	path := fmt.Sprintf("/b1s/v1/SQLQueries('%s')/List", name)
	if err := c.doRequest(ctx, c.lookupClient, http.MethodPost, path, body, &envelope); err != nil {
		return err
	}
	if envelope.Value == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Value, out); err != nil {
		return &GatewayError{Kind: KindRemoteRejected, Op: "query:" + name,
			Body: "malformed value array: " + err.Error()}
	}
	return nil
}

// ListSeries 获取销售订单号段列表
func (c *Client) ListSeries(ctx context.Context) ([]SeriesInfo, error) {
	var series []SeriesInfo
	if err := c.queryList(ctx, "Get_SO_Series", "", &series); err != nil {
		return nil, err
	}
	return series, nil
}

// LookupOrder 按(单号, 号段)查询销售订单，返回匹配的DocEntry列表
func (c *Client) LookupOrder(ctx context.Context, soNumber string, series int) ([]OrderRef, error) {
	paramList := fmt.Sprintf("SONumber='%s'&Series='%d'", soNumber, series)
	var refs []OrderRef
	if err := c.queryList(ctx, "Get_SO_Details", paramList, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// FetchOrder 按DocEntry获取销售订单完整头行信息
// found为false表示远端正常响应但无此订单
func (c *Client) FetchOrder(ctx context.Context, docEntry int) (*Order, bool, error) {
	envelope := struct {
		Value []Order `json:"value"`
	}{}
	// $filter值含空格，必须URL编码，否则请求行不合法
	path := "/b1s/v1/Orders?$filter=" + url.QueryEscape(fmt.Sprintf("DocEntry eq %d", docEntry))
	if err := c.doRequest(ctx, c.lookupClient, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, false, err
	}
	if len(envelope.Value) == 0 {
		return nil, false, nil
	}
	return &envelope.Value[0], true, nil
}

// ValidateSerial 校验(仓库, 物料, 序列号)组合的库存存在性
// found为false表示远端正常响应但序列号不存在
func (c *Client) ValidateSerial(ctx context.Context, warehouseCode, itemCode, serialNumber string) (*SerialInfo, bool, error) {
	paramList := fmt.Sprintf("whsCode='%s'&itemCode='%s'&series='%s'",
		warehouseCode, itemCode, serialNumber)
	var serials []SerialInfo
	if err := c.queryList(ctx, "Series_Validation", paramList, &serials); err != nil {
		return nil, false, err
	}
	if len(serials) == 0 {
		return nil, false, nil
	}
	return &serials[0], true, nil
}

// PostInvoice 过账A/R发票，使用较长超时
func (c *Client) PostInvoice(ctx context.Context, inv *InvoiceRequest) (*InvoiceResult, error) {
	var result InvoiceResult
	if err := c.doRequest(ctx, c.postClient, http.MethodPost, "/b1s/v1/Invoices", inv, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
