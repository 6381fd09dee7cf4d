package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"
)

const (
	// scrollJS 滚动到底部并返回当前内容高度
	scrollJS = `() => {
		const body = document.body;
		if (!body) { return 0; }
		window.scrollTo(0, body.scrollHeight);
		return body.scrollHeight;
	}`

	outerHTMLJS = `() => document.documentElement ? document.documentElement.outerHTML : ""`
)

// LaunchBrowser 启动本地浏览器并连接
func LaunchBrowser(headless bool) (*rod.Browser, error) {
	l := launcher.New().Headless(headless)

	// 允许访问自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")
	utils.Debugf("浏览器启动参数: --ignore-certificate-errors (跳过TLS证书验证)")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	return browser, nil
}

// BrowserSession 一次爬取的浏览器会话
// 持有浏览器与标签页池,在爬取开始时创建,结束或中断时关闭
type BrowserSession struct {
	browser   *rod.Browser
	pool      *PagePool[*rod.Page]
	config    models.CrawlConfig
	detectors []InterstitialDetector
	stealth   bool

	userAgent    string
	extraHeaders map[string]string

	// 被运行取消打断时各标签页所在的URL
	mu          sync.Mutex
	interrupted map[string]struct{}
}

// NewBrowserSession 创建浏览器会话
// 标签页数量上限等于并发上限
func NewBrowserSession(browser *rod.Browser, config models.CrawlConfig, useStealth bool, headerProvider models.HeaderProvider) (*BrowserSession, error) {
	s := &BrowserSession{
		browser:     browser,
		config:      config,
		detectors:   []InterstitialDetector{NewLabelDetector(config.InterstitialLabels)},
		stealth:     useStealth,
		interrupted: make(map[string]struct{}),
	}

	if headerProvider != nil {
		headers, err := headerProvider.GetHeaders()
		if err != nil {
			return nil, fmt.Errorf("获取HTTP头部失败: %w", err)
		}
		s.userAgent, s.extraHeaders = models.SplitUserAgent(headers)
	}

	s.pool = NewPagePool(config.Cap, s.newPage)
	return s, nil
}

// AddDetector 追加拦截页识别器
func (s *BrowserSession) AddDetector(d InterstitialDetector) {
	s.detectors = append(s.detectors, d)
}

// newPage 创建并初始化一个标签页
func (s *BrowserSession) newPage(ctx context.Context) (*rod.Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}

	if s.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.userAgent}); err != nil {
			log.Warn().Err(err).Msg("设置User-Agent失败")
		}
	}
	if len(s.extraHeaders) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(s.extraHeaders)}).Call(page); err != nil {
			log.Warn().Err(err).Msg("设置额外请求头失败")
		}
	}
	if s.stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			log.Warn().Err(err).Msg("stealth注入失败,继续以普通模式运行")
		}
	}
	return page, nil
}

// Fetch 从标签页池取一个标签页抓取页面
func (s *BrowserSession) Fetch(ctx context.Context, rawURL string, seen func(string) bool) (*Document, error) {
	page, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Stage: StageNavigate, Err: err}
	}
	return s.fetchOn(ctx, page, rawURL, seen, true)
}

// Render 只做导航与滚动等待,不处理拦截页
func (s *BrowserSession) Render(ctx context.Context, rawURL string) (*Document, error) {
	page, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Stage: StageNavigate, Err: err}
	}
	return s.fetchOn(ctx, page, rawURL, nil, false)
}

// fetchOn 在指定标签页上抓取
// 拦截页跳转在同一个标签页上继续,不重新从池中获取
func (s *BrowserSession) fetchOn(ctx context.Context, page *rod.Page, rawURL string, seen func(string) bool, interstitial bool) (doc *Document, err error) {
	current := rawURL
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("浏览器操作panic: URL=%s, 错误=%v", current, r)
			doc = nil
			err = &FetchError{URL: current, Stage: StageNavigate, Err: fmt.Errorf("%w: %v", ErrBrowserCrashed, r)}
		}
		if err != nil {
			s.noteInterrupted(ctx, page)
		}
	}()

	for hop := 0; ; hop++ {
		p := page.Context(ctx)

		if err := navigate(p, current); err != nil {
			return nil, &FetchError{URL: current, Stage: StageNavigate, Err: err}
		}
		if err := s.stabilize(ctx, p); err != nil {
			return nil, &FetchError{URL: current, Stage: StageStabilize, Err: err}
		}

		if interstitial {
			next, err := s.passInterstitial(ctx, p, current)
			if err != nil {
				return nil, &FetchError{URL: current, Stage: StageInterstitial, Err: err}
			}
			if next != "" && (seen == nil || !seen(next)) {
				if hop+1 > s.config.MaxRedirectHops {
					return nil, &FetchError{URL: rawURL, Stage: StageInterstitial, Err: ErrTooManyRedirects}
				}
				utils.Debugf("拦截页跳转: %s -> %s", current, next)
				current = next
				continue
			}
		}

		res, err := p.Eval(outerHTMLJS)
		if err != nil {
			return nil, &FetchError{URL: current, Stage: StageExtract, Err: err}
		}
		html := res.Value.Str()
		if html == "" {
			return nil, &FetchError{URL: current, Stage: StageExtract, Err: ErrEmptyDocument}
		}

		return &Document{
			RequestURL: rawURL,
			URL:        Canonicalize(current),
			HTML:       html,
		}, nil
	}
}

// navigate 导航并等待DOMContentLoaded
func navigate(p *rod.Page, url string) error {
	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(url); err != nil {
		return err
	}
	wait()
	return nil
}

// stabilize 反复等待并滚动到底部,直到两次测得的内容高度相同
// 本身没有总时长上限,由调用方的超时context约束; max_scrolls>0时额外限制次数
func (s *BrowserSession) stabilize(ctx context.Context, p *rod.Page) error {
	prev := 0
	for i := 0; s.config.MaxScrolls == 0 || i < s.config.MaxScrolls; i++ {
		if err := utils.SleepContext(ctx, s.config.ScrollInterval); err != nil {
			return err
		}
		res, err := p.Eval(scrollJS)
		if err != nil {
			return err
		}
		height := res.Value.Int()
		if height == prev {
			return nil
		}
		prev = height
	}
	return nil
}

// passInterstitial 识别并点击拦截页控件
// 点击后URL发生变化时返回新的规范URL,否则返回空串
func (s *BrowserSession) passInterstitial(ctx context.Context, p *rod.Page, current string) (string, error) {
	for _, d := range s.detectors {
		el, err := d.Detect(p)
		if err != nil {
			return "", err
		}
		if el == nil {
			continue
		}

		log.Debug().Str("detector", d.Name()).Str("url", current).Msg("发现拦截页")
		if err := dismiss(el); err != nil {
			return "", err
		}
		if err := utils.SleepContext(ctx, s.config.InterstitialWait); err != nil {
			return "", err
		}

		info, err := p.Info()
		if err != nil {
			return "", fmt.Errorf("读取当前URL失败: %w", err)
		}
		next := Canonicalize(info.URL)
		if next != Canonicalize(current) {
			return next, nil
		}
		return "", nil
	}
	return "", nil
}

// noteInterrupted 运行被取消时记录标签页当前所在的URL
// 单页超时不算中断
func (s *BrowserSession) noteInterrupted(ctx context.Context, page *rod.Page) {
	if ctx.Err() == nil || errors.Is(context.Cause(ctx), ErrPageTimeout) {
		return
	}
	info, err := page.Info()
	if err != nil || info.URL == "" || info.URL == "about:blank" {
		return
	}
	s.mu.Lock()
	s.interrupted[info.URL] = struct{}{}
	s.mu.Unlock()
}

// InterruptedURLs 返回被中断标签页所在的URL
func (s *BrowserSession) InterruptedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.interrupted)
}

// Close 关闭所有标签页和浏览器
func (s *BrowserSession) Close() error {
	poolErr := s.pool.Close(func(p *rod.Page) error { return p.Close() })
	var browserErr error
	if s.browser != nil {
		browserErr = s.browser.Close()
		utils.Debugf("浏览器已关闭")
	}
	return errors.Join(poolErr, browserErr)
}

// toHeadersMap 转换为 NetworkSetExtraHTTPHeaders 需要的类型
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
