package postprocess

import (
	"regexp"
	"strings"
)

// DefaultMaxImages 单次回复最多投递的图片数
const DefaultMaxImages = 3

const bareImageURL = `https?://[^\s\)\]]+\.(?:png|jpg|jpeg|gif|webp)(?:\?[^\s\)\]]*)?`

var (
	bareImagePattern     = regexp.MustCompile(`(?i)` + bareImageURL)
	bareImageLinePattern = regexp.MustCompile(`(?i)^(?:` + bareImageURL + `)$`)
	markdownImagePattern = regexp.MustCompile(`!\[([^\]]*)\]\((https?://[^\s\)]+)\)`)
)

// ExtractImageURLs 先收集 ![alt](url)，再补充未出现过的裸图片链接，保持首次出现顺序
func ExtractImageURLs(text string) []string {
	var urls []string
	seen := make(map[string]struct{})

	for _, m := range markdownImagePattern.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[2]]; ok {
			continue
		}
		seen[m[2]] = struct{}{}
		urls = append(urls, m[2])
	}
	for _, u := range bareImagePattern.FindAllString(text, -1) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

// DeliverableImages 截取前 max 个
func DeliverableImages(urls []string, max int) []string {
	if max <= 0 {
		max = DefaultMaxImages
	}
	if len(urls) > max {
		return urls[:max]
	}
	return urls
}

// StripImages 去掉 markdown 图片语法以及只包含图片链接的行
func StripImages(text string) string {
	text = markdownImagePattern.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if bareImageLinePattern.MatchString(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
