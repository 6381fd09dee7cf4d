package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RecoveryAshes/SiteHarvest/internal/core"
	"github.com/spf13/cobra"
)

var (
	keyURLsFile   string
	contextOutput string
	contextDelay  time.Duration
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "把关键页面抓取为一个 {名称: 文本} JSON 文件",
	Long: `读取 {名称: URL} JSON 文件, 依次渲染每个页面并提取纯文本,
写入 {名称: 文本} JSON 文件。单个页面失败不影响其他页面。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input := firstNonEmpty(keyURLsFile, appConfig.Context.KeyURLsFile)
		output := firstNonEmpty(contextOutput, appConfig.Context.OutputFile)
		delay := appConfig.Context.Delay
		if cmd.Flags().Changed("delay") {
			delay = contextDelay
		}

		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := core.NewContextCollector(engine.Render, delay).CollectFile(ctx, input, output)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "成功 %d / %d, 已写入 %s\n", summary.SuccessCount, summary.TotalURLs, output)
		return nil
	},
}

func init() {
	contextCmd.Flags().StringVarP(&keyURLsFile, "input", "i", "", "关键页面JSON文件 (默认 data/context/key_urls.json)")
	contextCmd.Flags().StringVarP(&contextOutput, "output", "o", "", "输出JSON文件 (默认 data/context/big_context.json)")
	contextCmd.Flags().DurationVar(&contextDelay, "delay", 0, "相邻页面之间的等待")
	contextCmd.Flags().StringVarP(&pageEngine, "engine", "e", "", "渲染引擎 (browser|static)")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
