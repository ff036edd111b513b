package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Poster 网络调用能力：POST请求并返回状态码与响应体
type Poster interface {
	Post(ctx context.Context, url string, body []byte) (int, []byte, error)
}

// HTTPClient 基于net/http的Poster实现
type HTTPClient struct {
	client *http.Client
	logger *logrus.Logger
}

// NewHTTPClient 创建HTTP客户端，timeout作用于每次调用
func NewHTTPClient(timeout time.Duration, logger *logrus.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Post 发送JSON请求
func (h *HTTPClient) Post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	h.logger.Debugf("POST %s -> %d (%d bytes)", url, resp.StatusCode, len(data))
	return resp.StatusCode, data, nil
}

// IsSuccess 2xx视为成功
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
