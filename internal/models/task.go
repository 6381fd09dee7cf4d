package models

import (
	"fmt"
	"strings"
	"time"
)

// CrawlStatus 爬取运行状态
type CrawlStatus string

const (
	StatusRunning     CrawlStatus = "running"     // 执行中
	StatusCompleted   CrawlStatus = "completed"   // 正常完成(待访问集合为空)
	StatusInterrupted CrawlStatus = "interrupted" // 被外部取消,已写检查点
	StatusFailed      CrawlStatus = "failed"      // 启动或持久化失败
)

// Engine 页面渲染引擎
type Engine string

const (
	EngineBrowser Engine = "browser" // go-rod 浏览器渲染
	EngineStatic  Engine = "static"  // colly 静态抓取,不执行JS
)

// TaskStats 任务统计
type TaskStats struct {
	Batches        int     `json:"batches"`         // 已完成批次数
	VisitedURLs    int     `json:"visited_urls"`    // 已认领URL数
	ProcessedPages int     `json:"processed_pages"` // 成功处理页面数
	FailedPages    int     `json:"failed_pages"`    // 失败页面数
	PendingURLs    int     `json:"pending_urls"`    // 剩余待访问URL数
	Duration       float64 `json:"duration"`        // 总耗时(秒)
}

// CrawlConfig 爬取配置
type CrawlConfig struct {
	StartURL   string `mapstructure:"start_url" json:"start_url"`     // 起始URL
	BasePrefix string `mapstructure:"base_prefix" json:"base_prefix"` // 站点前缀 (为空时取起始URL)
	Cap        int    `mapstructure:"cap" json:"cap"`                 // 并发上限,同时也是标签页数量 (默认:10)
	Resume     bool   `mapstructure:"resume" json:"resume"`           // 是否从进度文件恢复
	Engine     Engine `mapstructure:"engine" json:"engine"`           // browser|static

	// 产物开关
	SaveHTML     bool `mapstructure:"save_html" json:"save_html"`         // 美化后的HTML (默认:false)
	SaveText     bool `mapstructure:"save_text" json:"save_text"`         // 纯文本 (默认:false)
	SaveJSON     bool `mapstructure:"save_json" json:"save_json"`         // {text, source} (默认:true)
	SaveMarkdown bool `mapstructure:"save_markdown" json:"save_markdown"` // Markdown (默认:false)

	// 页面处理
	PageTimeout        time.Duration `mapstructure:"page_timeout" json:"page_timeout"`               // 单页抓取墙钟上限 (默认:90s)
	ScrollInterval     time.Duration `mapstructure:"scroll_interval" json:"scroll_interval"`         // 滚动间隔 (默认:2s)
	MaxScrolls         int           `mapstructure:"max_scrolls" json:"max_scrolls"`                 // 滚动次数上限, 0为不限
	InterstitialWait   time.Duration `mapstructure:"interstitial_wait" json:"interstitial_wait"`     // 点击拦截页后的等待 (默认:1s)
	InterstitialLabels []string      `mapstructure:"interstitial_labels" json:"interstitial_labels"` // 拦截页按钮文字
	MaxRedirectHops    int           `mapstructure:"max_redirect_hops" json:"max_redirect_hops"`     // 拦截页跳转次数上限 (默认:3)
	RateLimit          float64       `mapstructure:"rate_limit" json:"rate_limit"`                   // 每秒抓取页面数, 0为不限
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if err := ValidateURL(c.StartURL); err != nil {
		return fmt.Errorf("起始URL无效: %w", err)
	}
	if c.BasePrefix == "" {
		return fmt.Errorf("站点前缀不能为空")
	}
	if !strings.HasPrefix(c.StartURL, c.BasePrefix) {
		return fmt.Errorf("起始URL %s 不在站点前缀 %s 内", c.StartURL, c.BasePrefix)
	}
	if c.Cap < 1 || c.Cap > 64 {
		return fmt.Errorf("并发上限必须在1-64之间,当前值: %d", c.Cap)
	}
	if c.Engine != EngineBrowser && c.Engine != EngineStatic {
		return fmt.Errorf("无效的渲染引擎: %s (有效值: browser, static)", c.Engine)
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("单页超时必须大于0")
	}
	if c.ScrollInterval < 0 || c.InterstitialWait < 0 {
		return fmt.Errorf("等待时间不能为负数")
	}
	if c.MaxScrolls < 0 {
		return fmt.Errorf("滚动次数上限不能为负数")
	}
	if c.MaxRedirectHops < 1 || c.MaxRedirectHops > 10 {
		return fmt.Errorf("拦截页跳转上限必须在1-10之间,当前值: %d", c.MaxRedirectHops)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("速率限制不能为负数")
	}
	return nil
}

// StartTarget 返回起始爬取目标
func (c *CrawlConfig) StartTarget() CrawlTarget {
	return NewCrawlTarget(c.StartURL, c.BasePrefix)
}

// CrawlState 可持久化的爬取状态
// Visited 为已认领URL, Frontier 为待访问目标, Failed 为失败记录
type CrawlState struct {
	Visited  []string
	Frontier []CrawlTarget
	Failed   []FailedLink
}

// NewFreshState 全新开始: frontier={start}, visited={}
func NewFreshState(start CrawlTarget) *CrawlState {
	return &CrawlState{
		Visited:  []string{},
		Frontier: []CrawlTarget{start},
		Failed:   []FailedLink{},
	}
}

// FrontierURLs 返回待访问URL列表(不含前缀)
func (s *CrawlState) FrontierURLs() []string {
	urls := make([]string, 0, len(s.Frontier))
	for _, t := range s.Frontier {
		urls = append(urls, t.URL)
	}
	return urls
}
