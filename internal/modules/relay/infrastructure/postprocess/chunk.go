package postprocess

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxMessageLength 单条消息上限（按字符计）
const DefaultMaxMessageLength = 4000

// Chunk 按行切分超长文本；单行超长时在上限处硬切
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var (
		parts  []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		part := strings.TrimRightFunc(cur.String(), unicode.IsSpace)
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
		cur.Reset()
		curLen = 0
	}

	for _, line := range strings.Split(text, "\n") {
		lineLen := utf8.RuneCountInString(line)
		if curLen+lineLen+1 <= maxLen {
			cur.WriteString(line)
			cur.WriteByte('\n')
			curLen += lineLen + 1
			continue
		}

		flush()
		runes := []rune(line)
		for len(runes) > maxLen {
			parts = append(parts, string(runes[:maxLen]))
			runes = runes[maxLen:]
		}
		cur.WriteString(string(runes))
		cur.WriteByte('\n')
		curLen = len(runes) + 1
	}
	flush()

	return parts
}

// Render 标题转换 + 标记修复 + 分片；分片后逐片再修复一次，
// 切断的代码块会被各自补齐，因此切分时预留围栏长度
func Render(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	formatted := Sanitize(FormatHeadings(text))
	if utf8.RuneCountInString(formatted) <= maxLen {
		return []string{formatted}
	}

	budget := maxLen - utf8.RuneCountInString(closingFence)
	if budget <= 0 {
		budget = maxLen
	}
	parts := Chunk(formatted, budget)
	for i := range parts {
		parts[i] = Sanitize(parts[i])
	}
	return parts
}
