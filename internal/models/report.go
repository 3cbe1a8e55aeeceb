package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DumpReport 转储报告
type DumpReport struct {
	// 任务信息
	RunID     string    `json:"run_id"`
	TargetURL string    `json:"target_url"`
	Site      Site      `json:"site"`
	Mode      FetchMode `json:"mode"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	TotalPages  int               `json:"total_pages"`
	HomeAssets  int               `json:"home_assets"`
	Tournaments []TournamentStats `json:"tournaments"`
	FailedURLs  []string          `json:"failed_urls"`

	// 输出路径
	OutputDir string `json:"output_dir"`

	// 配置快照
	Config CrawlConfig `json:"config"`
}

// NewDumpReport 创建报告,分配唯一的运行ID
func NewDumpReport(targetURL string, site Site, config CrawlConfig, outputDir string) *DumpReport {
	return &DumpReport{
		RunID:       uuid.New().String(),
		TargetURL:   targetURL,
		Site:        site,
		Mode:        config.Mode,
		StartTime:   time.Now(),
		Tournaments: make([]TournamentStats, 0),
		FailedURLs:  make([]string, 0),
		OutputDir:   outputDir,
		Config:      config,
	}
}

// AddTournament 记录一个赛事的结果
func (r *DumpReport) AddTournament(stats TournamentStats) {
	r.Tournaments = append(r.Tournaments, stats)
	r.TotalPages += stats.TotalPages()
	r.FailedURLs = append(r.FailedURLs, stats.FailedURLs...)
}

// Finish 写入结束时间
func (r *DumpReport) Finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime).Seconds()
}

// ToJSON 序列化为JSON
func (r *DumpReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *DumpReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
