package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/SiteHarvest/internal/crawlers"
	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
)

// Engine 已打开的渲染引擎
type Engine struct {
	// Fetcher 爬取时使用,浏览器引擎会处理拦截页
	Fetcher crawlers.Fetcher

	render      func(ctx context.Context, rawURL string) (*crawlers.Document, error)
	close       func() error
	pageTimeout time.Duration
}

// Render 只渲染单个页面,不处理拦截页; 受单页超时约束
func (e *Engine) Render(ctx context.Context, rawURL string) (*crawlers.Document, error) {
	if e.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, e.pageTimeout, crawlers.ErrPageTimeout)
		defer cancel()
	}
	doc, err := e.render(ctx, rawURL)
	if err != nil && errors.Is(context.Cause(ctx), crawlers.ErrPageTimeout) && !errors.Is(err, crawlers.ErrPageTimeout) {
		err = fmt.Errorf("%w: %w", crawlers.ErrPageTimeout, err)
	}
	return doc, err
}

// Close 释放浏览器等资源
func (e *Engine) Close() error {
	if e.close == nil {
		return nil
	}
	return e.close()
}

// OpenEngine 按配置打开浏览器或静态抓取引擎
func OpenEngine(config *Config, headerProvider models.HeaderProvider) (*Engine, error) {
	switch config.Crawl.Engine {
	case models.EngineStatic:
		utils.Infof("🔍 静态抓取引擎 (不执行JavaScript)")
		sf := crawlers.NewStaticFetcher(config.Crawl, headerProvider)
		return &Engine{
			Fetcher: sf,
			render: func(ctx context.Context, rawURL string) (*crawlers.Document, error) {
				return sf.Fetch(ctx, rawURL, nil)
			},
			pageTimeout: config.Crawl.PageTimeout,
		}, nil

	case models.EngineBrowser, "":
		utils.Infof("🌐 浏览器渲染引擎 (headless=%t, stealth=%t)", config.Browser.Headless, config.Browser.Stealth)
		browser, err := crawlers.LaunchBrowser(config.Browser.Headless)
		if err != nil {
			return nil, err
		}
		session, err := crawlers.NewBrowserSession(browser, config.Crawl, config.Browser.Stealth, headerProvider)
		if err != nil {
			_ = browser.Close()
			return nil, err
		}
		return &Engine{
			Fetcher:     session,
			render:      session.Render,
			close:       session.Close,
			pageTimeout: config.Crawl.PageTimeout,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", crawlers.ErrUnsupportedEngine, config.Crawl.Engine)
	}
}
