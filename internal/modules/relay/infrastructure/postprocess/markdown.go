package postprocess

import (
	"regexp"
	"strings"
)

const (
	boldMarker   = "**"
	codeFence    = "```"
	boldMask     = "\x00B\x00"
	fenceMask    = "\x00F\x00"
	closingFence = "\n" + codeFence
)

var headingPattern = regexp.MustCompile(`(?m)^(#+)\s+(.+)$`)

// FormatHeadings 把 "# 标题" 转成粗体，Markdown v1 不支持标题
func FormatHeadings(text string) string {
	return headingPattern.ReplaceAllString(text, "**$2**")
}

// sanitizePasses 删除字符可能拼出新的标记（如 "*`*" 删掉反引号变成 "**"），重复修复直到稳定
const sanitizePasses = 4

// Sanitize 修复不成对的 ** / * / ` / ``` 标记，只保证数量平衡，不保证嵌套正确
func Sanitize(text string) string {
	for i := 0; i < sanitizePasses; i++ {
		next := sanitizeOnce(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func sanitizeOnce(text string) string {
	// 粗体
	if strings.Count(text, boldMarker)%2 == 1 {
		text = removeLast(text, boldMarker)
	}

	// 斜体：先遮住粗体
	masked := strings.ReplaceAll(text, boldMarker, boldMask)
	if strings.Count(masked, "*")%2 == 1 {
		masked = removeLast(masked, "*")
	}
	text = strings.ReplaceAll(masked, boldMask, boldMarker)

	// 行内代码：不计入代码块围栏
	masked = strings.ReplaceAll(text, codeFence, fenceMask)
	if strings.Count(masked, "`")%2 == 1 {
		masked = removeLast(masked, "`")
	}
	text = strings.ReplaceAll(masked, fenceMask, codeFence)

	// 代码块
	if strings.Count(text, codeFence)%2 == 1 {
		text += closingFence
	}
	return text
}

func removeLast(s, marker string) string {
	i := strings.LastIndex(s, marker)
	if i < 0 {
		return s
	}
	return s[:i] + s[i+len(marker):]
}
