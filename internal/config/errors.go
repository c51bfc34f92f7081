package config

import (
	"errors"
	"fmt"
)

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// newFieldError 创建包含字段路径与原因的 error，便于 CLI 定位。
func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// ConfigurationError 表示启动必需的源地址缺失，属于致命错误，调用方不应吞掉。
type ConfigurationError struct {
	Field FieldError
}

func (e *ConfigurationError) Error() string {
	return "配置缺失: " + e.Field.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Field
}

func missingOrigin(field string) error {
	return &ConfigurationError{Field: FieldError{Field: field, Reason: "必须配置"}}
}

// IsConfigurationError 判断 err 链上是否包含 ConfigurationError。
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
