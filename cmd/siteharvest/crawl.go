package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RecoveryAshes/SiteHarvest/internal/core"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
	"github.com/spf13/cobra"
)

// crawl 参数
var (
	startURL    string
	basePrefix  string
	concurrency int
	resume      bool
	engine      string
	headless    bool
	stealthMode bool
	saveHTML    bool
	saveText    bool
	saveJSON    bool
	saveMD      bool
	pageTimeout time.Duration
	outputDir   string
	indexDB     string
	metricsAddr string
	assumeYes   bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "从起始URL抓取站点前缀内的全部页面",
	Long: `按批次抓取站点: 每批最多 --cap 个页面并发, 整批结束后再合并新发现的链接。

全新模式会先清空产物目录 (需要输入 yes 确认, 或使用 --yes);
Ctrl+C 中断后进度写入 progress/ 目录, 使用 --resume 继续。`,
	RunE: runCrawl,
}

func init() {
	f := crawlCmd.Flags()
	f.StringVarP(&startURL, "url", "u", "", "起始URL")
	f.StringVarP(&basePrefix, "prefix", "p", "", "站点前缀, 只抓取以此开头的链接 (默认取起始URL)")
	f.IntVar(&concurrency, "cap", 0, "并发上限, 同时也是标签页数量 (1-64)")
	f.BoolVar(&resume, "resume", false, "从进度文件恢复")
	f.StringVarP(&engine, "engine", "e", "", "渲染引擎 (browser|static)")
	f.BoolVar(&headless, "headless", true, "无头浏览器模式")
	f.BoolVar(&stealthMode, "stealth", false, "注入 stealth 脚本")
	f.BoolVar(&saveHTML, "save-html", false, "保存美化后的HTML")
	f.BoolVar(&saveText, "save-text", false, "保存纯文本")
	f.BoolVar(&saveJSON, "save-json", true, "保存 {text, source} JSON")
	f.BoolVar(&saveMD, "save-md", false, "保存Markdown")
	f.DurationVar(&pageTimeout, "timeout", 0, "单页抓取超时 (如 90s)")
	f.StringVarP(&outputDir, "output", "o", "", "输出根目录")
	f.StringVar(&indexDB, "index-db", "", "产物索引SQLite路径")
	f.StringVar(&metricsAddr, "metrics", "", "Prometheus指标监听地址 (如 127.0.0.1:9100)")
	f.BoolVarP(&assumeYes, "yes", "y", false, "全新模式不再确认")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	flags := core.CLIFlags{
		StartURL:   startURL,
		BasePrefix: basePrefix,
		Cap:        concurrency,
		Resume:     resume,
		Engine:     engine,
		Stealth:    stealthMode,
		SaveHTML:   saveHTML,
		SaveText:   saveText,
		SaveMD:     saveMD,
		Timeout:    pageTimeout,
		OutputDir:  outputDir,
		IndexDB:    indexDB,
		Metrics:    metricsAddr,
	}
	if cmd.Flags().Changed("headless") {
		flags.Headless = &headless
	}
	if cmd.Flags().Changed("save-json") {
		flags.SaveJSON = &saveJSON
	}
	if err := ValidateCrawlFlags(flags); err != nil {
		return err
	}
	appConfig.MergeCLIFlags(flags)

	if appConfig.Crawl.StartURL == "" {
		return cmd.Help()
	}

	hm, err := core.NewHeaderManager(headersFile, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if _, err := hm.GetHeaders(); err != nil {
		return err
	}
	utils.Debugf("HTTP头部: %v", hm.GetSafeHeaders())

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	harvester := core.NewHarvester(appConfig, hm)
	if !assumeYes && !appConfig.Crawl.Resume {
		harvester.Confirm = stdinConfirm(cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	report, err := harvester.Run(ctx)
	if err != nil {
		return fmt.Errorf("爬取失败: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "==================================================")
	fmt.Fprintln(out, "📊 爬取统计")
	fmt.Fprintln(out, "==================================================")
	fmt.Fprintf(out, "状态: %s\n", report.Status)
	fmt.Fprintf(out, "✅ 已访问URL: %d\n", report.Stats.VisitedURLs)
	fmt.Fprintf(out, "✅ 成功页面: %d\n", report.Stats.ProcessedPages)
	fmt.Fprintf(out, "❌ 失败页面: %d\n", report.Stats.FailedPages)
	fmt.Fprintf(out, "⏳ 剩余待访问: %d\n", report.Stats.PendingURLs)
	fmt.Fprintf(out, "⏱️  总耗时: %.2f秒\n", report.Duration)
	fmt.Fprintln(out, "==================================================")
	return nil
}

// stdinConfirm 读取一行输入, 只有 yes 表示确认
func stdinConfirm(in io.Reader, out io.Writer) core.ConfirmFunc {
	return func(prompt string) bool {
		fmt.Fprint(out, prompt)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(line), "yes")
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
