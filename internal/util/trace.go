package util

import (
	"context"

	"github.com/google/uuid"
)

// contextKey 是一个私有类型，用于避免 context key 的冲突
type contextKey string

const runIDKey contextKey = "runID"

// NewRunID 生成一个随机的运行 ID，用于关联同一次仿真的所有日志
func NewRunID() string {
	return uuid.NewString()
}

// ContextWithRunID 将运行 ID 注入到 Context 中，并返回一个新的 Context
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext 从 Context 中提取运行 ID
func RunIDFromContext(ctx context.Context) (string, bool) {
	runID, ok := ctx.Value(runIDKey).(string)
	return runID, ok
}
