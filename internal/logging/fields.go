package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FetchFields 描述一次回源尝试：缓存键、源站、第几次尝试与结果类型。
func FetchFields(key, origin string, attempt int, outcome string) logrus.Fields {
	return logrus.Fields{
		"action":  "fetch",
		"key":     key,
		"origin":  origin,
		"attempt": attempt,
		"outcome": outcome,
	}
}

// RouteFields 提供 HTTP 路由日志的公共字段。
func RouteFields(route, requestID string, status int, started time.Time) logrus.Fields {
	fields := logrus.Fields{
		"action":     "route",
		"route":      route,
		"status":     status,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
