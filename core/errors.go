package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）、模块（Module）和消息（Message）
//   - 可选包装底层错误（Err），支持 errors.Is / errors.As
//
// 错误分类：
//   - DATA_ERROR：请求数据缺失或格式错误，整个请求失败，通过 {"error": ...} 返回
//   - FETCH_ERROR：单条记录的图片获取失败，不致命，该记录降级为空白图片
//   - CAPABILITY_ERROR：推理能力（embedding / OCR / 情感分类）异常；
//     图片链路等同 FETCH_ERROR，文本链路升级为 DATA_ERROR
type DomainError struct {
	Code    string // 错误代码（如 "DATA_ERROR", "FETCH_ERROR"）
	Message string // 错误消息
	Module  string // 模块名称（如 "normalizer", "enrich"）
	Err     error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建包装底层错误的领域错误
func WrapDomainError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// GetDomainError 沿错误链获取 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// 错误代码常量
const (
	ErrorCodeData         = "DATA_ERROR"       // 数据缺失或格式错误（致命）
	ErrorCodeFetch        = "FETCH_ERROR"      // 网络/图片获取失败（可降级）
	ErrorCodeCapability   = "CAPABILITY_ERROR" // 推理能力异常
	ErrorCodeInvalidInput = "INVALID_INPUT"    // 配置或参数无效
	ErrorCodeUnavailable  = "UNAVAILABLE"      // 服务不可用
	ErrorCodeNotFound     = "NOT_FOUND"        // 资源不存在
)

// 模块名称常量
const (
	ModuleNormalizer = "normalizer"
	ModuleEnrich     = "enrich"
	ModulePreprocess = "preprocess"
	ModuleSimilarity = "similarity"
	ModuleScoring    = "scoring"
	ModuleService    = "service"
	ModuleStore      = "store"
	ModuleAPI        = "api"
	ModuleConfig     = "config"
)

// NewDataError 创建 DATA_ERROR
func NewDataError(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeData, fmt.Sprintf(format, args...))
}

// NewFetchError 创建包装底层错误的 FETCH_ERROR
func NewFetchError(module, message string, err error) *DomainError {
	return WrapDomainError(module, ErrorCodeFetch, message, err)
}

// NewCapabilityError 创建包装底层错误的 CAPABILITY_ERROR
func NewCapabilityError(module, message string, err error) *DomainError {
	return WrapDomainError(module, ErrorCodeCapability, message, err)
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsDataError 检查错误是否为 DATA_ERROR
func IsDataError(err error) bool {
	return hasCode(err, ErrorCodeData)
}

// IsFetchError 检查错误是否为 FETCH_ERROR
func IsFetchError(err error) bool {
	return hasCode(err, ErrorCodeFetch)
}

// IsCapabilityError 检查错误是否为 CAPABILITY_ERROR
func IsCapabilityError(err error) bool {
	return hasCode(err, ErrorCodeCapability)
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	return hasCode(err, ErrorCodeNotFound)
}
