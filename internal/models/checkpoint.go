package models

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	VisitedLinksFile = "progress_links.csv"
	ToVisitLinksFile = "progress_to_visit.csv"
	FailedLinksFile  = "progress_failed_links.csv"
	AllLinksFile     = "all_links_visited.csv"

	// MaxValuesPerRow 每行最多写入的URL数量
	MaxValuesPerRow = 10
)

// ErrProgressMissing 恢复模式下进度文件不存在
var ErrProgressMissing = errors.New("进度文件不存在")

// Checkpoint 进度存储,以分行CSV文件保存 visited / frontier / failed
type Checkpoint struct {
	Dir string
}

// NewCheckpoint 创建进度存储
func NewCheckpoint(dir string) *Checkpoint {
	return &Checkpoint{Dir: dir}
}

// Path 返回进度目录下的文件路径
func (c *Checkpoint) Path(name string) string {
	return filepath.Join(c.Dir, name)
}

// Save 保存进度文件 (visited, to-visit, failed)
// 每个文件整体重写; 写入失败不会影响内存中的状态
func (c *Checkpoint) Save(state *CrawlState) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("创建进度目录失败: %w", err)
	}

	if err := WriteURLRows(c.Path(VisitedLinksFile), state.Visited, MaxValuesPerRow); err != nil {
		return fmt.Errorf("保存已访问链接失败: %w", err)
	}
	if err := WriteURLRows(c.Path(ToVisitLinksFile), state.FrontierURLs(), MaxValuesPerRow); err != nil {
		return fmt.Errorf("保存待访问链接失败: %w", err)
	}
	if err := c.SaveFailed(state.Failed); err != nil {
		return err
	}
	return nil
}

// SaveFailed 保存失败链接,每行一个 (url, 错误信息)
func (c *Checkpoint) SaveFailed(failed []FailedLink) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("创建进度目录失败: %w", err)
	}

	sorted := make([]FailedLink, len(failed))
	copy(sorted, failed)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].URL < sorted[j].URL })

	rows := make([][]string, 0, len(sorted))
	for _, f := range sorted {
		rows = append(rows, []string{f.URL, CollapseNewlines(f.Error)})
	}
	if err := writeRowsAtomic(c.Path(FailedLinksFile), rows); err != nil {
		return fmt.Errorf("保存失败链接失败: %w", err)
	}
	return nil
}

// SaveAllVisited 正常完成时导出全部已访问链接
func (c *Checkpoint) SaveAllVisited(visited []string) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("创建进度目录失败: %w", err)
	}
	if err := WriteURLRows(c.Path(AllLinksFile), dedupe(visited), MaxValuesPerRow); err != nil {
		return fmt.Errorf("导出全部链接失败: %w", err)
	}
	return nil
}

// Load 从进度文件恢复状态
// 已访问与待访问文件必须存在; 失败文件可选
// 待访问URL统一配对本次运行的站点前缀
func (c *Checkpoint) Load(basePrefix string) (*CrawlState, error) {
	visited, err := ReadURLRows(c.Path(VisitedLinksFile))
	if err != nil {
		return nil, err
	}
	toVisit, err := ReadURLRows(c.Path(ToVisitLinksFile))
	if err != nil {
		return nil, err
	}

	state := &CrawlState{
		Visited:  dedupe(visited),
		Frontier: make([]CrawlTarget, 0, len(toVisit)),
	}
	for _, u := range dedupe(toVisit) {
		state.Frontier = append(state.Frontier, NewCrawlTarget(u, basePrefix))
	}

	failed, err := c.loadFailed()
	if err != nil {
		return nil, err
	}
	state.Failed = failed

	return state, nil
}

// loadFailed 读取失败链接文件,不存在时返回空列表
func (c *Checkpoint) loadFailed() ([]FailedLink, error) {
	f, err := os.Open(c.Path(FailedLinksFile))
	if errors.Is(err, os.ErrNotExist) {
		return []FailedLink{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("打开失败链接文件失败: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	failed := make([]FailedLink, 0)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("解析失败链接文件失败: %w", err)
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}
		link := FailedLink{URL: row[0]}
		if len(row) > 1 {
			link.Error = row[1]
		}
		failed = append(failed, link)
	}
	return failed, nil
}

// ReadURLRows 读取分行CSV中的全部URL
func ReadURLRows(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrProgressMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("打开进度文件失败 [%s]: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	urls := make([]string, 0)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("解析进度文件失败 [%s]: %w", path, err)
		}
		for _, u := range row {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls, nil
}

// WriteURLRows 将URL按每行perRow个写入CSV
func WriteURLRows(path string, urls []string, perRow int) error {
	if perRow < 1 {
		perRow = MaxValuesPerRow
	}

	sorted := make([]string, len(urls))
	copy(sorted, urls)
	sort.Strings(sorted)

	rows := make([][]string, 0, len(sorted)/perRow+1)
	for i := 0; i < len(sorted); i += perRow {
		end := min(i+perRow, len(sorted))
		rows = append(rows, sorted[i:end])
	}
	return writeRowsAtomic(path, rows)
}

// writeRowsAtomic 先写临时文件再重命名,避免中断时留下半个文件
func writeRowsAtomic(path string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	writer := csv.NewWriter(tmp)
	if err := writer.WriteAll(rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// CollapseNewlines 把换行折叠为空格,保证每条记录占一行
func CollapseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
