package models

// CrawlTarget 一个待爬取链接及其必须保持在内的站点前缀
// 值类型,可直接作为map键; 同一URL在不同前缀下视为不同目标
type CrawlTarget struct {
	// URL 规范化后的绝对URL(无查询串和片段)
	URL string

	// BasePrefix 站点边界,发现的链接必须以此开头
	BasePrefix string
}

// NewCrawlTarget 创建爬取目标
func NewCrawlTarget(url, basePrefix string) CrawlTarget {
	return CrawlTarget{URL: url, BasePrefix: basePrefix}
}

// FailedLink 已认领但抓取或解析失败的链接
type FailedLink struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}
