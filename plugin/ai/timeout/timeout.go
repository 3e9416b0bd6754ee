// Package timeout defines centralized timeout constants for AI operations.
// Package timeout 定义 AI 操作的集中式超时常量。
package timeout

import "time"

// AI operation timeout constants.
// AI 操作超时常量。
const (
	// SignalTimeout bounds each routing signal collector (semantic, LLM).
	// SignalTimeout 是单个路由信号采集的超时时间。
	SignalTimeout = 3 * time.Second

	// SelfValidationTimeout bounds the optional classifier re-check.
	// SelfValidationTimeout 是分类自校验的超时时间。
	SelfValidationTimeout = 2 * time.Second

	// TitleGenerationTimeout bounds LLM title generation during extraction.
	TitleGenerationTimeout = 2 * time.Second

	// ContactResolveTimeout bounds a single contact lookup.
	ContactResolveTimeout = 1 * time.Second

	// EmbeddingTimeout is the timeout for catalogue embedding warm-up.
	// EmbeddingTimeout 是向量生成的超时时间。
	EmbeddingTimeout = 30 * time.Second

	// StoreTimeout bounds a single calendar store call.
	StoreTimeout = 5 * time.Second

	// MaxSelfValidationRetries caps the number of re-check calls per request.
	MaxSelfValidationRetries = 1

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 50
)
