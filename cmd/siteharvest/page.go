package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/SiteHarvest/internal/core"
	"github.com/spf13/cobra"
)

var pageCmd = &cobra.Command{
	Use:   "page <url>",
	Short: "渲染单个页面并输出纯文本",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := NormalizeURL(args[0])
		if err != nil {
			return fmt.Errorf("无效的URL: %w", err)
		}

		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		text, err := core.ScrapePage(ctx, engine.Render, target)
		if err != nil {
			return fmt.Errorf("抓取失败: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

// pageEngine page 与 context 命令共用的 --engine 参数
var pageEngine string

func init() {
	pageCmd.Flags().StringVarP(&pageEngine, "engine", "e", "", "渲染引擎 (browser|static)")
}

// openEngine 按配置与 --engine 打开渲染引擎, 单页抓取只用一个标签页
func openEngine(cmd *cobra.Command) (*core.Engine, error) {
	if pageEngine != "" {
		if err := ValidateEngine(pageEngine); err != nil {
			return nil, err
		}
		appConfig.MergeCLIFlags(core.CLIFlags{Engine: pageEngine})
	}
	appConfig.Crawl.Cap = 1

	hm, err := core.NewHeaderManager(headersFile, headers)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if _, err := hm.GetHeaders(); err != nil {
		return nil, err
	}
	return core.OpenEngine(appConfig, hm)
}
