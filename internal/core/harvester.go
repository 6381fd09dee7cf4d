package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/SiteHarvest/internal/crawlers"
	"github.com/RecoveryAshes/SiteHarvest/internal/metrics"
	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/RecoveryAshes/SiteHarvest/internal/output"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
)

// ConfirmFunc 询问用户, 返回true表示继续
type ConfirmFunc func(prompt string) bool

// resourceSampleInterval 爬取期间资源采样间隔
const resourceSampleInterval = 5 * time.Second

// FreshModePrompt 全新模式清空产物目录前的确认提示
const FreshModePrompt = "全新模式会清空已有的产物目录, 输入 yes 继续, 其他任意输入切换为恢复模式: "

// Harvester 爬取任务协调器
type Harvester struct {
	config  *Config
	headers *HeaderManager

	// Confirm 全新模式的确认方式, 为nil时直接继续
	Confirm ConfirmFunc

	// Fetcher 非nil时替代按引擎配置打开的抓取器
	Fetcher crawlers.Fetcher

	collector *metrics.Collector

	mu    sync.RWMutex
	stats models.TaskStats
}

// NewHarvester 创建爬取任务协调器
func NewHarvester(config *Config, headers *HeaderManager) *Harvester {
	return &Harvester{
		config:    config,
		headers:   headers,
		collector: metrics.NewCollector(),
	}
}

// Metrics 返回本次运行的指标
func (h *Harvester) Metrics() *metrics.Collector {
	return h.collector
}

// Run 执行爬取任务
// 执行流程:
//  1. 验证配置, 准备产物写入器
//  2. 全新模式清空产物目录, 恢复模式读取进度文件
//  3. 按批次抓取直到待访问集合为空或ctx被取消
//  4. 写检查点并生成报告
//
// 中断不是错误: 返回的报告状态为 interrupted
func (h *Harvester) Run(ctx context.Context) (*models.CrawlReport, error) {
	startTime := time.Now()
	cfg := h.config.Crawl

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	utils.Infof("🚀 开始爬取任务")
	utils.Infof("起始URL: %s", cfg.StartURL)
	utils.Infof("站点前缀: %s", cfg.BasePrefix)
	utils.Infof("输出目录: %s", h.config.Output.BaseDir)

	writer, closeIndex, err := h.setupWriter()
	if err != nil {
		return nil, err
	}
	defer closeIndex()

	checkpoint := models.NewCheckpoint(h.config.Output.ProgressDir())
	state, resumed, err := h.initialState(checkpoint, writer)
	if err != nil {
		return nil, err
	}
	tracker := crawlers.NewTracker(state)
	utils.Infof("已访问 %d 个, 待访问 %d 个", tracker.VisitedCount(), tracker.FrontierSize())

	monitor := crawlers.NewResourceMonitor(h.config.Resource.MonitorConfig(cfg.Cap))
	cfg.Cap = h.adviseCap(monitor, cfg.Cap)
	monitor.StartMonitoring(resourceSampleInterval)
	defer monitor.StopMonitoring()

	fetcher := h.Fetcher
	if fetcher == nil {
		runConfig := *h.config
		runConfig.Crawl = cfg
		engine, err := OpenEngine(&runConfig, h.headerProvider())
		if err != nil {
			return nil, fmt.Errorf("启动渲染引擎失败: %w", err)
		}
		defer func() {
			if err := engine.Close(); err != nil {
				utils.Warnf("关闭渲染引擎失败: %v", err)
			}
		}()
		fetcher = engine.Fetcher
	}

	if listen := h.config.Metrics.Listen; listen != "" {
		srv := h.collector.Serve(listen)
		utils.Infof("📈 指标服务: http://%s/metrics", listen)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	controller := crawlers.NewController(tracker, fetcher, writer, crawlers.ControllerConfig{
		Cap:         cfg.Cap,
		PageTimeout: cfg.PageTimeout,
		RateLimit:   cfg.RateLimit,
	})

	bar := utils.NewProgressBar(-1, "抓取页面")
	controller.OnPage = func(r crawlers.PageResult) {
		if r.Err != nil && ctx.Err() != nil && errors.Is(r.Err, ctx.Err()) {
			return
		}
		h.collector.ObservePage(r.Duration, failureReason(r.Err))
		_ = bar.Add(1)
	}
	controller.OnBatch = func(b crawlers.BatchReport) {
		h.collector.ObserveBatch(b.Duration, b.Visited, b.Frontier)
		utils.Infof("📦 批次 %d: 成功 %d, 失败 %d, 新链接 %d, 待访问 %d",
			b.Batch, b.Processed, b.Failed, b.Discovered, b.Frontier)
		if ok, reason := monitor.CheckResourceAvailability(); !ok {
			utils.Warnf("资源紧张: %s", reason)
		}
	}

	outcome, runErr := controller.Run(ctx)
	_ = bar.Finish()

	status := models.StatusCompleted
	if outcome == crawlers.OutcomeInterrupted {
		status = models.StatusInterrupted
	}
	if runErr != nil {
		status = models.StatusFailed
	}

	snapshot := tracker.Snapshot()
	cpErr := checkpoint.Save(snapshot)
	if cpErr == nil && status == models.StatusCompleted {
		cpErr = checkpoint.SaveAllVisited(tracker.Visited())
	}
	if cpErr != nil {
		utils.Errorf("保存进度失败: %v", cpErr)
		status = models.StatusFailed
	} else {
		utils.Infof("💾 进度已保存: %s", checkpoint.Dir)
	}

	h.mu.Lock()
	h.stats = models.TaskStats{
		Batches:        controller.Batches(),
		VisitedURLs:    len(snapshot.Visited),
		ProcessedPages: controller.Processed(),
		FailedPages:    controller.FailedPages(),
		PendingURLs:    len(snapshot.Frontier),
		Duration:       time.Since(startTime).Seconds(),
	}
	stats := h.stats
	h.mu.Unlock()

	report := &models.CrawlReport{
		RunID:       models.NewRunID(),
		StartURL:    cfg.StartURL,
		BasePrefix:  cfg.BasePrefix,
		Status:      status,
		Resumed:     resumed,
		StartTime:   startTime,
		EndTime:     time.Now(),
		Duration:    stats.Duration,
		Stats:       stats,
		FailedLinks: snapshot.Failed,
		OutputDir:   h.config.Output.BaseDir,
		ProgressDir: checkpoint.Dir,
		Config:      cfg,
	}
	if err := utils.NewReporter(h.config.Output.ReportsDir()).GenerateReport(report); err != nil {
		utils.Warnf("生成报告失败: %v", err)
	}

	switch status {
	case models.StatusInterrupted:
		utils.Warnf("⚠️ 爬取已中断, 剩余 %d 个待访问链接, 使用 --resume 继续", stats.PendingURLs)
	case models.StatusCompleted:
		utils.Infof("✅ 爬取任务完成")
	}
	utils.Infof("成功页面: %d, 失败页面: %d", stats.ProcessedPages, stats.FailedPages)
	utils.Infof("总耗时: %.2f秒", stats.Duration)

	if err := errors.Join(runErr, cpErr); err != nil {
		return report, err
	}
	return report, nil
}

// setupWriter 创建产物写入器, 配置了索引路径时同时打开索引
func (h *Harvester) setupWriter() (*output.Writer, func(), error) {
	cfg := h.config.Crawl
	writer, err := output.NewWriter(output.Options{
		BaseDir:  h.config.Output.BaseDir,
		HTML:     cfg.SaveHTML,
		Text:     cfg.SaveText,
		JSON:     cfg.SaveJSON,
		Markdown: cfg.SaveMarkdown,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(writer.Kinds()) == 0 {
		utils.Warnf("未开启任何产物类型, 只记录链接")
	}

	if h.config.Output.IndexDB == "" {
		return writer, func() {}, nil
	}
	index, err := output.OpenIndex(h.config.Output.IndexDB)
	if err != nil {
		return nil, nil, err
	}
	writer.SetIndex(index)
	return writer, func() {
		if err := index.Close(); err != nil {
			utils.Warnf("关闭产物索引失败: %v", err)
		}
	}, nil
}

// initialState 全新模式先确认再清空产物目录; 未确认时切换为恢复模式
func (h *Harvester) initialState(checkpoint *models.Checkpoint, writer *output.Writer) (*models.CrawlState, bool, error) {
	cfg := h.config.Crawl
	resume := cfg.Resume

	if !resume && h.Confirm != nil && !h.Confirm(FreshModePrompt) {
		utils.Infof("未确认, 切换为恢复模式")
		resume = true
	}

	if resume {
		state, err := checkpoint.Load(cfg.BasePrefix)
		if err != nil {
			return nil, true, fmt.Errorf("读取进度失败: %w", err)
		}
		utils.Infof("🔄 从进度文件恢复: %s", checkpoint.Dir)
		return state, true, nil
	}

	if err := writer.ClearDirs(); err != nil {
		return nil, false, fmt.Errorf("清空产物目录失败: %w", err)
	}
	utils.Debugf("产物目录已清空")
	return models.NewFreshState(cfg.StartTarget()), false, nil
}

// adviseCap 按系统资源检查并发上限
func (h *Harvester) adviseCap(rm *crawlers.ResourceMonitor, requested int) int {
	rm.Sample()

	advised, advice := rm.AdviseCap(requested, h.config.Resource.Enforce)
	if advice != "" {
		utils.Warnf("资源检查: %s", advice)
	}
	if status := rm.GetMemoryStatus(); status.MemoryPressure != "normal" {
		utils.Warnf("内存压力: %s (可用 %dMB)", status.MemoryPressure, status.AvailableMemory/(1024*1024))
	}
	return advised
}

func (h *Harvester) headerProvider() models.HeaderProvider {
	if h.headers == nil {
		return nil
	}
	return h.headers
}

// GetStats 获取统计信息
func (h *Harvester) GetStats() models.TaskStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// failureReason 失败原因标签, 成功时为空
func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, crawlers.ErrPageTimeout):
		return "timeout"
	default:
		var fe *crawlers.FetchError
		if errors.As(err, &fe) {
			return string(fe.Stage)
		}
		return "process"
	}
}
