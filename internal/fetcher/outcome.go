package fetcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// OutcomeKind 区分单次回源尝试的结果。
type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "success"
	OutcomeHTTPError    OutcomeKind = "http_error"
	OutcomeNetworkError OutcomeKind = "network_error"
	OutcomeTimeout      OutcomeKind = "timeout"
)

// ErrInvalidBody 表示 2xx 响应的正文不是合法 JSON。
var ErrInvalidBody = errors.New("upstream body is not valid json")

// Outcome 是一次尝试的结果：Success 带 Data，HTTPError 带 Status，其余带 Err。
type Outcome struct {
	Kind   OutcomeKind
	Data   json.RawMessage
	Status int
	Err    error
}

func (o Outcome) ok() bool {
	return o.Kind == OutcomeSuccess
}

// retryable 报告该结果是否值得再次尝试；404 表示资源不存在，重试没有意义。
func (o Outcome) retryable() bool {
	if o.ok() {
		return false
	}
	return !(o.Kind == OutcomeHTTPError && o.Status == http.StatusNotFound)
}

// breakerFailure 报告是否计入熔断器失败：仅 5xx、网络错误与超时。
func (o Outcome) breakerFailure() bool {
	switch o.Kind {
	case OutcomeNetworkError, OutcomeTimeout:
		return true
	case OutcomeHTTPError:
		return o.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

func (o Outcome) describe() string {
	switch o.Kind {
	case OutcomeHTTPError:
		return fmt.Sprintf("upstream responded %d", o.Status)
	case OutcomeTimeout:
		return "upstream timed out"
	case OutcomeNetworkError:
		if o.Err != nil {
			return o.Err.Error()
		}
		return "network error"
	default:
		return string(o.Kind)
	}
}

// FetchError 是重试与故障转移全部用尽后返回给调用方的错误。
type FetchError struct {
	Message    string
	StatusCode int
	Kind       OutcomeKind
	Origin     string
	Attempts   int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// IsNotFound 报告 err 是否代表上游 404。
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound
}

// StatusCode 提取 err 中的 HTTP 状态码，没有时返回 0。
func StatusCode(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
