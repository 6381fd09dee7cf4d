package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
)

// DisjointPerRow 差异文件每行的URL数量
const DisjointPerRow = 5

// LinkComparison 两次运行导出的链接集合对比
type LinkComparison struct {
	OldCount     int      `json:"old_count"`
	NewCount     int      `json:"new_count"`
	OnlyOld      []string `json:"only_old"`
	OnlyNew      []string `json:"only_new"`
	Intersection int      `json:"intersection"`
}

// Disjoint 只出现在一侧的链接 (对称差)
func (c *LinkComparison) Disjoint() []string {
	out := make([]string, 0, len(c.OnlyOld)+len(c.OnlyNew))
	out = append(out, c.OnlyOld...)
	out = append(out, c.OnlyNew...)
	sort.Strings(out)
	return out
}

// CompareLinks 对比两个链接集合
func CompareLinks(oldLinks, newLinks []string) *LinkComparison {
	oldSet := toSet(oldLinks)
	newSet := toSet(newLinks)

	result := &LinkComparison{
		OldCount: len(oldSet),
		NewCount: len(newSet),
		OnlyOld:  []string{},
		OnlyNew:  []string{},
	}
	for u := range oldSet {
		if _, ok := newSet[u]; ok {
			result.Intersection++
		} else {
			result.OnlyOld = append(result.OnlyOld, u)
		}
	}
	for u := range newSet {
		if _, ok := oldSet[u]; !ok {
			result.OnlyNew = append(result.OnlyNew, u)
		}
	}
	sort.Strings(result.OnlyOld)
	sort.Strings(result.OnlyNew)
	return result
}

// CompareLinkFiles 读取两个链接CSV文件进行对比
// outputFile 非空时把对称差按每行5个写入CSV
func CompareLinkFiles(oldFile, newFile, outputFile string) (*LinkComparison, error) {
	oldLinks, err := models.ReadURLRows(oldFile)
	if err != nil {
		return nil, fmt.Errorf("读取旧链接文件失败: %w", err)
	}
	newLinks, err := models.ReadURLRows(newFile)
	if err != nil {
		return nil, fmt.Errorf("读取新链接文件失败: %w", err)
	}

	result := CompareLinks(oldLinks, newLinks)
	utils.Debugf("链接对比: 旧 %d, 新 %d, 差异 %d, 交集 %d",
		result.OldCount, result.NewCount, len(result.OnlyOld)+len(result.OnlyNew), result.Intersection)

	if outputFile != "" {
		if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
			return result, fmt.Errorf("创建目录失败: %w", err)
		}
		if err := models.WriteURLRows(outputFile, result.Disjoint(), DisjointPerRow); err != nil {
			return result, fmt.Errorf("写入差异文件失败: %w", err)
		}
	}
	return result, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
