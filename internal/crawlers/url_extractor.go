package crawlers

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/rs/zerolog/log"
)

// URLExtractor 从渲染后的HTML中提取站点前缀内的链接
type URLExtractor struct {
	canonicalizer LinkCanonicalizer
}

// NewURLExtractor 创建URL提取器实例
func NewURLExtractor(basePrefix string) *URLExtractor {
	return &URLExtractor{canonicalizer: NewLinkCanonicalizer(basePrefix)}
}

// Extract 提取页面中所有 <a> 的链接
// 相对pageURL解析并规范化; 前缀外的链接静默丢弃; 结果按出现顺序去重
func (e *URLExtractor) Extract(htmlContent, pageURL string) ([]models.CrawlTarget, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	seen := make(map[string]struct{})
	targets := make([]models.CrawlTarget, 0)
	dropped := 0

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		var href *string
		if v, ok := s.Attr("href"); ok {
			href = &v
		}

		link, ok := e.canonicalizer.Resolve(pageURL, href)
		if !ok {
			dropped++
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		targets = append(targets, models.NewCrawlTarget(link, e.canonicalizer.BasePrefix))
	})

	log.Debug().Str("url", pageURL).Int("links", len(targets)).Int("dropped", dropped).Msg("链接提取完成")
	return targets, nil
}
