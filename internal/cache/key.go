package cache

import (
	"net/url"
	"sort"
	"strings"
)

// BuildKey 由命名空间、资源路径和请求参数生成确定性的缓存键：
//
//	<namespace>_<path>?<k1=v1&k2=v2>
//
// 参数按 key 排序，同一 key 的多个值也排序，保证逻辑相同的请求总是得到相同的键。
func BuildKey(namespace, path string, params url.Values) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(namespace))
	b.WriteByte('_')

	clean := strings.Trim(strings.TrimSpace(path), "/")
	if clean == "" && len(params) == 0 {
		b.WriteString("all")
		return b.String()
	}
	b.WriteString(clean)

	if canonical := canonicalQuery(params); canonical != "" {
		b.WriteByte('?')
		b.WriteString(canonical)
	}
	return b.String()
}

func canonicalQuery(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		if len(values) == 0 {
			values = []string{""}
		}
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Namespace 返回缓存键中第一个 "_" 之前的部分。
func Namespace(key string) string {
	if idx := strings.IndexByte(key, '_'); idx > 0 {
		return key[:idx]
	}
	return ""
}
