package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/similarity"
)

// ResultCache 缓存打分结果。
// 只保存最终的四个加权分数，embedding、情感和归一化参数都不跨请求保存。
type ResultCache struct {
	store core.Store
	ttl   int
}

// NewResultCache 创建结果缓存，ttl 单位为秒，0 表示不过期
func NewResultCache(store core.Store, ttl int) *ResultCache {
	return &ResultCache{store: store, ttl: ttl}
}

// Backend 返回底层存储名称
func (c *ResultCache) Backend() string {
	if c == nil || c.store == nil {
		return "none"
	}
	return c.store.Name()
}

// cacheParams 参与缓存 key 计算的打分参数，参数变化后旧结果自然失效
type cacheParams struct {
	Weights   similarity.Weights `json:"weights"`
	DecayRate float64            `json:"decay_rate"`
	Filter    string             `json:"filter"`
}

// Key 计算请求的缓存 key：规范化 JSON（map 按 key 排序）的 SHA-256。
func (c *ResultCache) Key(req *Request, params cacheParams) (string, error) {
	data, err := json.Marshal(struct {
		Params  cacheParams `json:"params"`
		Request *Request    `json:"request"`
	}{params, req})
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Get 读取缓存结果，未命中时返回 (nil, nil)
func (c *ResultCache) Get(ctx context.Context, key string) (*similarity.Result, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var res similarity.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, nil
}

// Put 写入结果
func (c *ResultCache) Put(ctx context.Context, key string, res *similarity.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if c.ttl > 0 {
		return c.store.Set(ctx, key, data, c.ttl)
	}
	return c.store.Set(ctx, key, data)
}
