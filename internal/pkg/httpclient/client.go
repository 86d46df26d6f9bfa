package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound 表示协作方返回 404。补偿流程用它识别 "已经删除过" 的实体。
var ErrNotFound = errors.New("remote resource not found")

// Resolver 将服务名解析为一个可用实例地址。生产环境由 Nacos 客户端实现。
type Resolver interface {
	DiscoverServiceInstance(serviceName string) (string, int, error)
}

// StaticResolver 把服务名解析到固定的 host:port 地址，用于测试与单机部署。
type StaticResolver map[string]string

func (r StaticResolver) DiscoverServiceInstance(serviceName string) (string, int, error) {
	hostport, ok := r[serviceName]
	if !ok {
		return "", 0, fmt.Errorf("no static address for service '%s'", serviceName)
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, fmt.Errorf("invalid static address for service '%s': %s", serviceName, hostport)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port for service '%s': %s", serviceName, portStr)
	}
	return host, port, nil
}

// Client 是一个可追踪的 JSON HTTP 客户端。
// 超时完全由每次请求传入的 context 控制，默认 context 上再套 callTimeout。
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client

	resolver    Resolver
	callTimeout time.Duration
}

// NewClient 创建客户端实例。不设置 http.Client.Timeout，复用连接池。
func NewClient(tracer trace.Tracer, resolver Resolver, callTimeout time.Duration) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:      tracer,
		HTTPClient:  httpClient,
		resolver:    resolver,
		callTimeout: callTimeout,
	}
}

type createResponse struct {
	ID int64 `json:"id"`
}

// PostCreate 调用协作方的创建端点，返回新记录的 id。
func (c *Client) PostCreate(ctx context.Context, service, path string, body interface{}) (int64, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, service, path, body, &resp); err != nil {
		return 0, err
	}
	if resp.ID == 0 {
		return 0, fmt.Errorf("service %s%s did not return an id", service, path)
	}
	return resp.ID, nil
}

// PostJSON 调用任意 POST 端点并解码完整响应体。
func (c *Client) PostJSON(ctx context.Context, service, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, service, path, body, out)
}

// GetJSON 调用读端点并解码响应。
func (c *Client) GetJSON(ctx context.Context, service, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, service, path, nil, out)
}

// Patch 调用部分更新端点。
func (c *Client) Patch(ctx context.Context, service, path string, body interface{}) error {
	return c.do(ctx, http.MethodPatch, service, path, body, nil)
}

// Delete 调用删除端点。资源不存在时返回 ErrNotFound。
func (c *Client) Delete(ctx context.Context, service, path string) error {
	return c.do(ctx, http.MethodDelete, service, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, service, path string, body, out interface{}) error {
	spanName := fmt.Sprintf("call-%s", service)
	ctx, span := c.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	host, port, err := c.resolver.DiscoverServiceInstance(service)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	url := fmt.Sprintf("http://%s:%d%s", host, port, path)

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", method),
		attribute.String("peer.service", service),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, url, ErrNotFound)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := fmt.Errorf("service %s returned status %s", url, resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			span.RecordError(err)
			return fmt.Errorf("decode response from %s: %w", url, err)
		}
	}
	return nil
}
