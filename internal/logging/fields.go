package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供页面请求的路径、命中状态与变体字段，供代理请求日志复用。
func RequestFields(path, variant string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"action":    "page",
		"path":      path,
		"cache_hit": cacheHit,
		"variant":   variant,
	}
}

// EventFields 描述一次失效事件，invalidation 与 article 共用。
func EventFields(kind, actor string, contentID int64) logrus.Fields {
	fields := logrus.Fields{
		"action": "event",
		"kind":   kind,
	}
	if actor != "" {
		fields["actor"] = actor
	}
	if contentID != 0 {
		fields["content_id"] = contentID
	}
	return fields
}
