package output

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/RecoveryAshes/SiteHarvest/internal/models"
)

// newMarkdownConverter 转换器可在多个goroutine间复用
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
}

// ToMarkdown 将页面HTML转换为Markdown
// 相对链接按来源URL的站点补全为绝对链接
func ToMarkdown(conv *converter.Converter, htmlContent, sourceURL string) (string, error) {
	return conv.ConvertString(htmlContent, converter.WithDomain(models.SchemeHost(sourceURL)))
}
