package crawlers

import (
	"net/url"
	"strings"
)

// Canonicalize 去掉查询串和片段,返回可用于去重比较的URL
// 无法解析的输入原样返回; 对已规范化的URL幂等
func Canonicalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// LinkCanonicalizer 把页面中的href解析为站点前缀内的规范URL
type LinkCanonicalizer struct {
	BasePrefix string
}

// NewLinkCanonicalizer 创建链接规范化器
func NewLinkCanonicalizer(basePrefix string) LinkCanonicalizer {
	return LinkCanonicalizer{BasePrefix: basePrefix}
}

// Resolve 相对pageURL解析href
// href缺失、无法解析或结果不在站点前缀内时返回 ok=false
func (c LinkCanonicalizer) Resolve(pageURL string, href *string) (string, bool) {
	if href == nil {
		return "", false
	}
	return ResolveLink(pageURL, *href, c.BasePrefix)
}

// ResolveLink 解析并规范化单个链接
func ResolveLink(pageURL, href, basePrefix string) (string, bool) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}

	abs := Canonicalize(base.ResolveReference(ref).String())
	if !strings.HasPrefix(abs, basePrefix) {
		return "", false
	}
	return abs, true
}
