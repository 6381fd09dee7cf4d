package crawlers

import (
	"context"
	"errors"
	"fmt"
)

// 抓取错误
var (
	ErrBrowserCrashed    = errors.New("浏览器崩溃")
	ErrTooManyRedirects  = errors.New("拦截页跳转次数超过上限")
	ErrEmptyDocument     = errors.New("页面内容为空")
	ErrUnsupportedEngine = errors.New("不支持的渲染引擎")

	// ErrPageTimeout 单页墙钟超时, 作为超时context的cause
	ErrPageTimeout = errors.New("页面抓取超时")
)

// FetchStage 抓取失败所处阶段
type FetchStage string

const (
	StageNavigate     FetchStage = "navigate"     // 导航/加载
	StageStabilize    FetchStage = "stabilize"    // 滚动等待内容稳定
	StageInterstitial FetchStage = "interstitial" // 拦截页点击与跳转
	StageExtract      FetchStage = "extract"      // 读取渲染后的HTML
)

// FetchError 单个页面抓取失败
type FetchError struct {
	URL   string
	Stage FetchStage
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("抓取失败 [%s] (%s): %v", e.URL, e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Document 渲染完成的页面
type Document struct {
	// RequestURL 请求时的URL
	RequestURL string

	// URL 实际返回内容对应的规范URL (经过拦截页跳转时与RequestURL不同)
	URL string

	// HTML 渲染后的完整HTML
	HTML string
}

// Fetcher 页面抓取器
// seen 用于判断拦截页跳转目标是否已被访问,可为nil
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, seen func(string) bool) (*Document, error)
}

// InterruptReporter 可报告被中断时各标签页当前URL的抓取器
type InterruptReporter interface {
	InterruptedURLs() []string
}

// FetcherFunc 函数适配为Fetcher
type FetcherFunc func(ctx context.Context, rawURL string, seen func(string) bool) (*Document, error)

func (f FetcherFunc) Fetch(ctx context.Context, rawURL string, seen func(string) bool) (*Document, error) {
	return f(ctx, rawURL, seen)
}
