package crawlers

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// StaticFetcher 静态抓取器(使用Colly)
// 不执行JavaScript,也不处理拦截页; 跟随HTTP重定向并报告最终URL
type StaticFetcher struct {
	collector      *colly.Collector
	headerProvider models.HeaderProvider
}

// NewStaticFetcher 创建静态抓取器
func NewStaticFetcher(config models.CrawlConfig, headerProvider models.HeaderProvider) *StaticFetcher {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // 允许访问自签名、过期或主机名不匹配的HTTPS站点
			},
		},
		Timeout: config.PageTimeout,
	}

	// 同一URL可能在恢复后再次抓取,关闭Colly自带的去重
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.SetClient(httpClient)
	utils.Debugf("静态抓取器: TLS证书验证已禁用, HTTP超时 %s", config.PageTimeout)

	return &StaticFetcher{
		collector:      c,
		headerProvider: headerProvider,
	}
}

// Fetch 抓取单个页面
func (sf *StaticFetcher) Fetch(ctx context.Context, rawURL string, _ func(string) bool) (*Document, error) {
	c := sf.collector.Clone()
	c.Context = ctx

	var (
		doc     *Document
		bodyErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if sf.headerProvider == nil {
			return
		}
		headers, err := sf.headerProvider.GetHeaders()
		if err != nil {
			utils.Warnf("获取HTTP头部失败: %v", err)
			return
		}
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		body, err := decompressResponse(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			bodyErr = err
			return
		}
		doc = &Document{
			RequestURL: rawURL,
			URL:        Canonicalize(r.Request.URL.String()),
			HTML:       string(body),
		}
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, Stage: StageNavigate, Err: err}
	}
	if bodyErr != nil {
		return nil, &FetchError{URL: rawURL, Stage: StageExtract, Err: bodyErr}
	}
	if doc == nil || strings.TrimSpace(doc.HTML) == "" {
		return nil, &FetchError{URL: rawURL, Stage: StageExtract, Err: ErrEmptyDocument}
	}
	return doc, nil
}

// decompressResponse 根据Content-Encoding解压响应体
// gzip 已由Colly处理,这里只处理 deflate 和 br
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "gzip", "identity":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
