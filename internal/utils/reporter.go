package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/nao1215/markdown"
	"github.com/schollz/progressbar/v3"
)

const (
	JSONReportFile     = "crawl_report.json"
	MarkdownReportFile = "crawl_report.md"

	// maxReportFailures Markdown报告中最多列出的失败链接
	maxReportFailures = 50
)

// Reporter 报告生成器
type Reporter struct {
	reportsDir string
}

// NewReporter 创建报告生成器
func NewReporter(reportsDir string) *Reporter {
	return &Reporter{reportsDir: reportsDir}
}

// GenerateReport 生成JSON与Markdown两份爬取报告
func (r *Reporter) GenerateReport(report *models.CrawlReport) error {
	if err := os.MkdirAll(r.reportsDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}

	if err := r.saveJSONReport(report); err != nil {
		return err
	}

	path := filepath.Join(r.reportsDir, MarkdownReportFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建Markdown报告失败: %w", err)
	}
	defer f.Close()

	if err := WriteMarkdownReport(f, report); err != nil {
		return fmt.Errorf("写入Markdown报告失败: %w", err)
	}

	Infof("✅ 报告已生成: %s", r.reportsDir)
	return nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(report *models.CrawlReport) error {
	path := filepath.Join(r.reportsDir, JSONReportFile)

	jsonData, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// WriteMarkdownReport 以Markdown格式输出报告
func WriteMarkdownReport(w io.Writer, report *models.CrawlReport) error {
	md := markdown.NewMarkdown(w)

	md.H1("SiteHarvest 爬取报告")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"项目", "值"},
		Rows: [][]string{
			{"运行ID", "`" + report.RunID + "`"},
			{"起始URL", report.StartURL},
			{"站点前缀", report.BasePrefix},
			{"状态", statusText(report.Status)},
			{"恢复模式", strconv.FormatBool(report.Resumed)},
			{"开始时间", report.StartTime.Format("2006-01-02 15:04:05 MST")},
			{"耗时", fmt.Sprintf("%.2f 秒", report.Duration)},
		},
	})
	md.PlainText("")

	md.H2("统计")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"指标", "数量"},
		Rows: [][]string{
			{"批次", strconv.Itoa(report.Stats.Batches)},
			{"已访问URL", strconv.Itoa(report.Stats.VisitedURLs)},
			{"成功页面", strconv.Itoa(report.Stats.ProcessedPages)},
			{"失败页面", strconv.Itoa(report.Stats.FailedPages)},
			{"剩余待访问", strconv.Itoa(report.Stats.PendingURLs)},
		},
	})
	md.PlainText("")

	switch {
	case report.Status == models.StatusInterrupted:
		md.Warningf("运行被中断, %d 个链接待下次恢复时继续。", report.Stats.PendingURLs)
	case len(report.FailedLinks) > 0:
		md.Importantf("%d 个链接处理失败, 详见下表。", len(report.FailedLinks))
	default:
		md.Tip("全部页面处理成功。")
	}
	md.PlainText("")

	md.H2("失败链接")
	md.PlainText("")
	if len(report.FailedLinks) == 0 {
		md.PlainText("无")
	} else {
		failures := report.FailedLinks
		if len(failures) > maxReportFailures {
			failures = failures[:maxReportFailures]
		}
		rows := make([][]string, 0, len(failures))
		for _, f := range failures {
			rows = append(rows, []string{f.URL, f.Error})
		}
		md.Table(markdown.TableSet{
			Header: []string{"URL", "错误"},
			Rows:   rows,
		})
		if len(report.FailedLinks) > maxReportFailures {
			md.PlainTextf("另有 %d 条未列出, 完整列表见 %s", len(report.FailedLinks)-maxReportFailures, JSONReportFile)
		}
	}
	md.PlainText("")

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*输出目录: `%s`, 进度目录: `%s`*", report.OutputDir, report.ProgressDir)

	return md.Build()
}

func statusText(s models.CrawlStatus) string {
	switch s {
	case models.StatusCompleted:
		return "✅ 完成"
	case models.StatusInterrupted:
		return "⚠️ 已中断"
	case models.StatusFailed:
		return "❌ 失败"
	default:
		return string(s)
	}
}

// NewProgressBar 创建进度条, max<0 时为不定长度
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
