package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/RecoveryAshes/SiteHarvest/internal/core"
	"github.com/spf13/cobra"
)

var (
	disjointOutput string
	compareJSON    bool
)

var compareCmd = &cobra.Command{
	Use:   "compare <old.csv> <new.csv>",
	Short: "对比两次运行导出的全部已访问链接",
	Long: `读取两个 all_links_visited.csv, 输出数量、差异与交集,
并把只出现在一侧的链接按每行5个写入CSV。`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := core.CompareLinkFiles(args[0], args[1], disjointOutput)
		if err != nil {
			return err
		}
		return printComparison(cmd.OutOrStdout(), result, compareJSON)
	},
}

func init() {
	compareCmd.Flags().StringVarP(&disjointOutput, "output", "o", "disjoint_links.csv", "差异链接输出文件, 为空时不写")
	compareCmd.Flags().BoolVarP(&compareJSON, "json", "j", false, "以JSON输出对比结果")
}

func printComparison(w io.Writer, result *core.LinkComparison, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(w, "旧链接: %d\n", result.OldCount)
	fmt.Fprintf(w, "新链接: %d\n", result.NewCount)
	fmt.Fprintf(w, "差异: %d (仅旧 %d, 仅新 %d)\n", len(result.OnlyOld)+len(result.OnlyNew), len(result.OnlyOld), len(result.OnlyNew))
	fmt.Fprintf(w, "交集: %d\n", result.Intersection)
	return nil
}
