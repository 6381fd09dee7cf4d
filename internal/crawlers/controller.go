package crawlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Outcome 一次运行的结束方式
type Outcome string

const (
	OutcomeDone        Outcome = "done"        // frontier 为空
	OutcomeInterrupted Outcome = "interrupted" // 外部取消
)

// ArtifactWriter 页面产物写入器
type ArtifactWriter interface {
	Write(html, sourceURL string) error
}

// PageResult 单个目标的处理结果
type PageResult struct {
	Target   models.CrawlTarget
	URL      string // 实际内容对应的URL
	Links    int    // 新发现的链接数
	Err      error
	Duration time.Duration
}

// BatchReport 一个批次结束后的统计
type BatchReport struct {
	Batch      int
	Claimed    int
	Processed  int
	Failed     int
	Discovered int
	Visited    int
	Frontier   int
	Duration   time.Duration
}

// ControllerConfig 控制器配置
type ControllerConfig struct {
	Cap         int
	PageTimeout time.Duration
	RateLimit   float64 // 每秒页面数, 0为不限
}

// Controller 批次循环: 取批次 → 并发处理 → 等待整批结束 → 合并新链接
type Controller struct {
	tracker     *Tracker
	fetcher     Fetcher
	writer      ArtifactWriter
	cap         int
	pageTimeout time.Duration
	limiter     *rate.Limiter

	// OnPage 每个目标处理结束后调用,可能被并发调用
	OnPage func(PageResult)
	// OnBatch 每个批次合并完成后调用
	OnBatch func(BatchReport)

	batches   int
	processed atomic.Int64
	failed    atomic.Int64

	prefixMu sync.Mutex
	prefixes map[string]struct{}
}

// NewController 创建爬取控制器
func NewController(tracker *Tracker, fetcher Fetcher, writer ArtifactWriter, config ControllerConfig) *Controller {
	if config.Cap < 1 {
		config.Cap = 1
	}
	c := &Controller{
		tracker:     tracker,
		fetcher:     fetcher,
		writer:      writer,
		cap:         config.Cap,
		pageTimeout: config.PageTimeout,
		prefixes:    make(map[string]struct{}),
	}
	if config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return c
}

// Run 循环直到frontier为空或ctx被取消
// 批次之间是严格的屏障: 上一批全部结束前不会认领下一批的目标
func (c *Controller) Run(ctx context.Context) (Outcome, error) {
	if c.fetcher == nil {
		return OutcomeDone, errors.New("未配置页面抓取器")
	}

	for c.tracker.FrontierSize() > 0 {
		if ctx.Err() != nil {
			c.interrupt()
			return OutcomeInterrupted, nil
		}

		batch := c.tracker.ClaimBatch(c.cap)
		if len(batch) == 0 {
			continue
		}
		c.rememberPrefixes(batch)

		start := time.Now()
		processedBefore, failedBefore := c.processed.Load(), c.failed.Load()
		results := make([][]models.CrawlTarget, len(batch))

		var g errgroup.Group
		g.SetLimit(c.cap)
		for i, target := range batch {
			g.Go(func() error {
				results[i] = c.process(ctx, target)
				return nil
			})
		}
		_ = g.Wait()

		discovered := 0
		for _, links := range results {
			for _, t := range links {
				if c.tracker.AddTarget(t) {
					discovered++
				}
			}
		}

		c.batches++
		report := BatchReport{
			Batch:      c.batches,
			Claimed:    len(batch),
			Processed:  int(c.processed.Load() - processedBefore),
			Failed:     int(c.failed.Load() - failedBefore),
			Discovered: discovered,
			Visited:    c.tracker.VisitedCount(),
			Frontier:   c.tracker.FrontierSize(),
			Duration:   time.Since(start),
		}
		utils.Debugf("批次 %d 完成: 认领 %d, 成功 %d, 失败 %d, 新链接 %d, 待访问 %d",
			report.Batch, report.Claimed, report.Processed, report.Failed, report.Discovered, report.Frontier)
		if c.OnBatch != nil {
			c.OnBatch(report)
		}

		if ctx.Err() != nil {
			c.interrupt()
			return OutcomeInterrupted, nil
		}
	}

	return OutcomeDone, nil
}

// process 处理单个已认领的目标,返回新发现的链接
// 抓取或解析失败记入失败集合,不会中止整个运行
func (c *Controller) process(ctx context.Context, target models.CrawlTarget) []models.CrawlTarget {
	start := time.Now()
	result := PageResult{Target: target, URL: target.URL}
	defer func() {
		result.Duration = time.Since(start)
		if c.OnPage != nil {
			c.OnPage(result)
		}
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			// 运行被取消: 保持在途状态,中断时折回frontier
			result.Err = err
			return nil
		}
	}

	fetchCtx, cancel := c.fetchContext(ctx)
	defer cancel()

	doc, err := c.fetcher.Fetch(fetchCtx, target.URL, c.tracker.IsVisited)
	if err != nil {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return nil
		}
		if errors.Is(context.Cause(fetchCtx), ErrPageTimeout) && !errors.Is(err, ErrPageTimeout) {
			err = fmt.Errorf("%w: %w", ErrPageTimeout, err)
		}
		result.Err = err
		c.fail(target.URL, err)
		return nil
	}
	defer c.tracker.Complete(target.URL)

	// 拦截页跳转: 真实内容的URL也要认领
	if doc.URL != "" && doc.URL != target.URL {
		if !strings.HasPrefix(doc.URL, target.BasePrefix) {
			utils.Warnf("跳转到站点前缀之外,跳过: %s -> %s", target.URL, doc.URL)
			result.URL = doc.URL
			return nil
		}
		final := models.NewCrawlTarget(doc.URL, target.BasePrefix)
		if !c.tracker.Claim(final) {
			utils.Debugf("跳转目标已被认领,跳过: %s -> %s", target.URL, doc.URL)
			result.URL = doc.URL
			return nil
		}
		defer c.tracker.Complete(doc.URL)
		result.URL = doc.URL
	} else {
		doc.URL = target.URL
	}

	links, err := NewURLExtractor(target.BasePrefix).Extract(doc.HTML, doc.URL)
	if err != nil {
		result.Err = err
		c.fail(doc.URL, err)
		return nil
	}

	if c.writer != nil {
		if err := c.writer.Write(doc.HTML, doc.URL); err != nil {
			result.Err = err
			c.fail(doc.URL, fmt.Errorf("写入产物失败: %w", err))
			return nil
		}
	}
	c.processed.Add(1)

	fresh := make([]models.CrawlTarget, 0, len(links))
	for _, l := range links {
		if !c.tracker.IsVisited(l.URL) {
			fresh = append(fresh, l)
		}
	}
	result.Links = len(fresh)
	return fresh
}

// fetchContext 为单次抓取加上墙钟超时
func (c *Controller) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.pageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, c.pageTimeout, ErrPageTimeout)
}

func (c *Controller) fail(url string, err error) {
	c.failed.Add(1)
	c.tracker.RecordFailure(url, err)
	c.tracker.Complete(url)
	utils.Warnf("处理失败 [%s]: %v", url, err)
}

// interrupt 把未完成的目标和被中断标签页的当前URL折回frontier
func (c *Controller) interrupt() {
	inFlight := c.tracker.InFlight()
	for _, t := range inFlight {
		c.tracker.Requeue(t)
	}

	requeued := len(inFlight)
	if reporter, ok := c.fetcher.(InterruptReporter); ok {
		for _, raw := range reporter.InterruptedURLs() {
			u := Canonicalize(raw)
			if prefix, ok := c.matchPrefix(u); ok {
				c.tracker.Requeue(models.NewCrawlTarget(u, prefix))
				requeued++
			}
		}
	}
	if requeued > 0 {
		utils.Warnf("运行被中断, %d 个未完成的链接已放回待访问集合", requeued)
	}
}

func (c *Controller) rememberPrefixes(batch []models.CrawlTarget) {
	c.prefixMu.Lock()
	defer c.prefixMu.Unlock()
	for _, t := range batch {
		c.prefixes[t.BasePrefix] = struct{}{}
	}
}

func (c *Controller) matchPrefix(u string) (string, bool) {
	c.prefixMu.Lock()
	defer c.prefixMu.Unlock()
	for p := range c.prefixes {
		if strings.HasPrefix(u, p) {
			return p, true
		}
	}
	return "", false
}

// Batches 已完成的批次数
func (c *Controller) Batches() int {
	return c.batches
}

// Processed 成功处理的页面数
func (c *Controller) Processed() int {
	return int(c.processed.Load())
}

// FailedPages 本次运行失败的页面数
func (c *Controller) FailedPages() int {
	return int(c.failed.Load())
}
