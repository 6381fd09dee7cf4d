package models

import (
	"encoding/json"
	"time"
)

// CrawlReport 爬取报告
type CrawlReport struct {
	// 运行信息
	RunID      string      `json:"run_id"`
	StartURL   string      `json:"start_url"`
	BasePrefix string      `json:"base_prefix"`
	Status     CrawlStatus `json:"status"`
	Resumed    bool        `json:"resumed"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Stats TaskStats `json:"stats"`

	// 失败链接
	FailedLinks []FailedLink `json:"failed_links"`

	// 输出路径
	OutputDir   string `json:"output_dir"`   // 产物根目录
	ProgressDir string `json:"progress_dir"` // 进度文件目录

	// 配置快照
	Config CrawlConfig `json:"config"`
}

// ToJSON 序列化为JSON
func (r *CrawlReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *CrawlReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
