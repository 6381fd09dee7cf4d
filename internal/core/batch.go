package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/RecoveryAshes/SiteHarvest/internal/crawlers"
	"github.com/RecoveryAshes/SiteHarvest/internal/output"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
)

// RenderFunc 渲染单个页面
type RenderFunc func(ctx context.Context, rawURL string) (*crawlers.Document, error)

// ScrapePage 渲染单个页面并提取纯文本
func ScrapePage(ctx context.Context, render RenderFunc, rawURL string) (string, error) {
	if err := utils.ValidateURL(rawURL); err != nil {
		return "", err
	}
	doc, err := render(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return output.ExtractText(doc.HTML)
}

// ContextCollector 把一组关键页面抓取为 {名称: 文本} 的上下文文件
type ContextCollector struct {
	render RenderFunc
	delay  time.Duration
}

// BatchResult 单个页面的抓取结果
type BatchResult struct {
	Name     string
	URL      string
	Success  bool
	Error    error
	Chars    int
	Duration float64
}

// BatchSummary 批量抓取摘要
type BatchSummary struct {
	TotalURLs     int
	SuccessCount  int
	FailCount     int
	TotalDuration float64
	Results       []BatchResult
}

// NewContextCollector 创建上下文收集器, delay 为相邻两个页面之间的等待
func NewContextCollector(render RenderFunc, delay time.Duration) *ContextCollector {
	return &ContextCollector{render: render, delay: delay}
}

// Collect 按名称顺序逐个抓取, 单个页面失败不影响其他页面
// ctx 被取消时停止, 已抓取的内容仍然返回
func (cc *ContextCollector) Collect(ctx context.Context, keyURLs map[string]string) (map[string]string, *BatchSummary, error) {
	names := make([]string, 0, len(keyURLs))
	for name := range keyURLs {
		names = append(names, name)
	}
	sort.Strings(names)

	summary := &BatchSummary{
		TotalURLs: len(names),
		Results:   make([]BatchResult, 0, len(names)),
	}
	contents := make(map[string]string, len(names))

	if len(names) == 0 {
		utils.Warnf("关键页面列表为空")
		return contents, summary, nil
	}

	utils.Infof("🚀 开始抓取关键页面: %d个", len(names))
	startTime := time.Now()
	var stopErr error

	for i, name := range names {
		targetURL := keyURLs[name]
		utils.Infof("[%d/%d] %s: %s", i+1, len(names), name, targetURL)

		start := time.Now()
		text, err := ScrapePage(ctx, cc.render, targetURL)
		result := BatchResult{
			Name:     name,
			URL:      targetURL,
			Error:    err,
			Duration: time.Since(start).Seconds(),
		}
		if err != nil {
			summary.FailCount++
			utils.Errorf("❌ 抓取失败 [%s]: %v", name, err)
		} else {
			result.Success = true
			result.Chars = len([]rune(text))
			contents[name] = text
			summary.SuccessCount++
		}
		summary.Results = append(summary.Results, result)

		if ctx.Err() != nil {
			stopErr = ctx.Err()
			break
		}
		if i < len(names)-1 && cc.delay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一个页面...", cc.delay.Seconds())
			if err := utils.SleepContext(ctx, cc.delay); err != nil {
				stopErr = err
				break
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()
	printSummary(summary)

	if stopErr != nil {
		return contents, summary, fmt.Errorf("抓取被中断: %w", stopErr)
	}
	return contents, summary, nil
}

// CollectFile 读取 {名称: URL} JSON 文件, 抓取后写入 {名称: 文本} JSON 文件
func (cc *ContextCollector) CollectFile(ctx context.Context, keyURLsFile, outputFile string) (*BatchSummary, error) {
	var keyURLs map[string]string
	if err := utils.ReadJSONFile(keyURLsFile, &keyURLs); err != nil {
		return nil, err
	}

	contents, summary, collectErr := cc.Collect(ctx, keyURLs)
	if err := utils.WriteJSONFile(outputFile, contents); err != nil {
		return summary, errors.Join(collectErr, err)
	}
	utils.Infof("✅ 上下文已保存: %s (%d个页面)", outputFile, len(contents))
	return summary, collectErr
}

// printSummary 打印批量抓取摘要
func printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 关键页面抓取摘要")
	utils.Info("==================================================")
	utils.Infof("总页面数: %d", summary.TotalURLs)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的页面:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s (%s): %v", result.Name, result.URL, result.Error)
			}
		}
	}
}
