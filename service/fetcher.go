package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/siddharth-shringarpure/CloutChain/core"
)

// HTTPFetcher 下载图片字节。
//
// 工程特征：
//   - 每次下载有独立超时，同时跟随请求 context 取消
//   - 全局限流，避免批量请求时打爆图片 CDN
//   - 响应体大小上限，超过即失败
//   - 按内容嗅探 MIME 类型，非图片直接失败
//
// 所有失败都以 FETCH_ERROR 返回，由调用方降级处理。
type HTTPFetcher struct {
	client   *resty.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	maxBytes int64
}

// NewHTTPFetcher 创建图片下载器
func NewHTTPFetcher(cfg FetchConfig) *HTTPFetcher {
	timeout := core.DefaultFetchTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	maxBytes := int64(core.DefaultMaxImageBytes)
	if cfg.MaxBytes > 0 {
		maxBytes = cfg.MaxBytes
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 10
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	client := resty.New()
	client.SetTimeout(timeout)
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &HTTPFetcher{
		client:   client,
		limiter:  limiter,
		timeout:  timeout,
		maxBytes: maxBytes,
	}
}

// FetchBytes 实现 core.Fetcher
func (f *HTTPFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, core.NewFetchError(core.ModuleService, "rate limiter", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.client.R().
		SetContext(fetchCtx).
		SetDoNotParseResponse(true).
		Get(url)
	if resp != nil && resp.RawBody() != nil {
		defer resp.RawBody().Close()
	}
	if err != nil {
		return nil, core.NewFetchError(core.ModuleService, "fetch "+url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, core.NewFetchError(core.ModuleService, "fetch "+url, fmt.Errorf("status=%d", resp.StatusCode()))
	}

	data, err := io.ReadAll(io.LimitReader(resp.RawBody(), f.maxBytes+1))
	if err != nil {
		return nil, core.NewFetchError(core.ModuleService, "read "+url, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, core.NewFetchError(core.ModuleService, "fetch "+url, fmt.Errorf("body exceeds %d bytes", f.maxBytes))
	}
	if len(data) == 0 {
		return nil, core.NewFetchError(core.ModuleService, "fetch "+url, errors.New("empty body"))
	}

	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return nil, core.NewFetchError(core.ModuleService, "fetch "+url, fmt.Errorf("unexpected content type %s", mt.String()))
	}
	return data, nil
}

var _ core.Fetcher = (*HTTPFetcher)(nil)
