package seo

import (
	"strings"
	"unicode"
)

const (
	minTokenLen        = 3
	maxKeywords        = 8
	titleKeywordTokens = 5
	descKeywordTokens  = 3
	titleFocusTokens   = 3
	descFocusTokens    = 2
)

// stopwords 覆盖站点使用的英文与印尼语常见虚词和标题套话。
var stopwords = toSet(
	// English
	"the", "and", "for", "with", "from", "that", "this", "these", "those", "your",
	"you", "are", "was", "were", "how", "what", "why", "when", "where", "which",
	"who", "into", "onto", "about", "over", "under", "than", "then", "them",
	"they", "their", "there", "here", "have", "has", "had", "will", "can",
	"not", "but", "all", "any", "our", "its", "best", "top", "guide", "tips",
	"complete", "easy", "new", "more", "most", "use", "using",
	// Indonesian
	"cara", "untuk", "terbaik", "dan", "yang", "dari", "dengan", "atau", "ini",
	"itu", "pada", "dalam", "adalah", "akan", "bagi", "agar", "lebih", "jadi",
	"tanpa", "panduan", "lengkap", "mudah", "cepat", "gratis", "tahun", "para",
	"oleh", "sudah", "bisa", "dapat", "juga", "saja", "apa", "bagaimana",
	"mengapa", "kenapa", "anda", "kamu", "kami", "kita", "tutorial",
	"secara", "serta", "hingga", "sampai", "seperti", "sebagai", "karena",
	"tentang", "tersebut", "baru", "paling", "sangat",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// tokenize 把文本切分为小写词，只保留字母与数字。
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func meaningful(token string) bool {
	if len([]rune(token)) < minTokenLen {
		return false
	}
	if _, stop := stopwords[token]; stop {
		return false
	}
	for _, r := range token {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// meaningfulTokens 返回去重后的有效词，最多 limit 个（limit <= 0 不限）。
func meaningfulTokens(text string, limit int) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, tok := range tokenize(text) {
		if !meaningful(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// deriveFocusKeyword 取标题前 3 个有效词，标题为空时取描述前 2 个。
func deriveFocusKeyword(title, description string) string {
	if tokens := meaningfulTokens(title, titleFocusTokens); len(tokens) > 0 {
		return strings.Join(tokens, " ")
	}
	return strings.Join(meaningfulTokens(description, descFocusTokens), " ")
}

// synthesizeKeywords 由焦点关键词、标题与描述合成关键词列表，最多 8 个。
func synthesizeKeywords(focus, title, description string) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(k string) bool {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			return len(out) < maxKeywords
		}
		if _, dup := seen[k]; dup {
			return len(out) < maxKeywords
		}
		seen[k] = struct{}{}
		out = append(out, k)
		return len(out) < maxKeywords
	}

	if focus != "" && !add(focus) {
		return out
	}
	for _, tok := range meaningfulTokens(title, titleKeywordTokens) {
		if !add(tok) {
			return out
		}
	}
	added := 0
	for _, tok := range meaningfulTokens(description, 0) {
		if added == descKeywordTokens {
			break
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		added++
		if !add(tok) {
			return out
		}
	}
	return out
}

// splitKeywords 解析 meta keywords 的逗号分隔列表。
func splitKeywords(raw string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		k := strings.TrimSpace(part)
		if k == "" {
			continue
		}
		lower := strings.ToLower(k)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, k)
	}
	return out
}
