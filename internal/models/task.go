package models

import (
	"fmt"
	"net/url"
	"time"
)

// FetchMode 抓取模式
type FetchMode string

const (
	ModeStatic  FetchMode = "static"  // HTTP直接抓取(Colly)
	ModeDynamic FetchMode = "dynamic" // 页面经浏览器渲染(go-rod),静态资源仍走HTTP
)

// DefaultMaxActive 默认最大并发请求数
const DefaultMaxActive = 5

// Site 目标站点,整个运行期间不变
type Site struct {
	Protocol string `json:"protocol"` // "http://" 或 "https://"
	Host     string `json:"host"`     // 主机名(可带端口)
}

// BaseURL 返回 protocol+host
func (s Site) BaseURL() string {
	return s.Protocol + s.Host
}

// URL 拼接站内路径为完整URL
func (s Site) URL(path string) string {
	return s.Protocol + s.Host + path
}

// ValidateURL 验证完整的站点URL(批量文件中的条目必须带协议)
// 令牌通过参数或环境变量传入,URL里不允许带用户信息
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	if parsed.User != nil {
		return fmt.Errorf("URL不能包含用户信息,请通过令牌参数认证")
	}
	return nil
}

// Tournament 一个赛事
type Tournament struct {
	Slug string `json:"slug"`
}

// IndexPath 赛事首页路径
// 带尾斜杠: 站点会把 /slug 重定向到 /slug/,两者落盘位置相同
func (t Tournament) IndexPath() string {
	return "/" + t.Slug + "/"
}

// CrawlConfig 爬取配置
type CrawlConfig struct {
	Mode                  FetchMode `mapstructure:"mode" json:"mode"`                                     // 抓取模式 (默认:static)
	IncludeStatic         bool      `mapstructure:"include_static" json:"include_static"`                 // 站点模式下赛事首页是否同时转储静态资源
	TournamentConcurrency int       `mapstructure:"tournament_concurrency" json:"tournament_concurrency"` // 同时转储的赛事数 (默认:1,即顺序执行)
	PageConcurrency       int       `mapstructure:"page_concurrency" json:"page_concurrency"`             // 单批页面的goroutine上限 (0:不限,由请求管理器限流)
	ContinueOnError       bool      `mapstructure:"continue_on_error" json:"continue_on_error"`           // 批内单个失败是否继续 (默认:true)
	ParticipantMarker     string    `mapstructure:"participant_marker" json:"participant_marker"`         // 内嵌表格数据的脚本标记 (默认:vueData)
	ParticipantSuffixes   []string  `mapstructure:"participant_suffixes" json:"participant_suffixes"`     // 参赛者数据来源页路径后缀
	ExcludedSlugs         []string  `mapstructure:"excluded_slugs" json:"excluded_slugs"`                 // 首页列表中需要跳过的条目
	ShowProgress          bool      `mapstructure:"show_progress" json:"show_progress"`                   // 是否显示进度条
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.Mode != ModeStatic && c.Mode != ModeDynamic {
		return fmt.Errorf("无效的抓取模式: %q (可选 static|dynamic)", c.Mode)
	}
	if c.TournamentConcurrency < 1 || c.TournamentConcurrency > 16 {
		return fmt.Errorf("赛事并发数必须在1-16之间")
	}
	if c.PageConcurrency < 0 || c.PageConcurrency > 1000 {
		return fmt.Errorf("页面并发数必须在0-1000之间")
	}
	if c.ParticipantMarker == "" {
		return fmt.Errorf("参赛者数据标记不能为空")
	}
	return nil
}

// BatchResult 一批并发转储的结果
type BatchResult struct {
	Attempted int          `json:"attempted"`
	Succeeded int          `json:"succeeded"`
	Failed    []*DumpError `json:"-"`
}

// FailedURLs 返回失败的URL列表
func (r BatchResult) FailedURLs() []string {
	urls := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		urls = append(urls, f.URL)
	}
	return urls
}

// TournamentStats 单个赛事的转储统计
type TournamentStats struct {
	Slug             string        `json:"slug"`
	IndexPages       int           `json:"index_pages"`
	StaticAssets     int           `json:"static_assets"`
	CorePages        int           `json:"core_pages"`
	ParticipantPages int           `json:"participant_pages"`
	ParticipantFound bool          `json:"participant_found"`
	FailedURLs       []string      `json:"failed_urls,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// TotalPages 汇总: 首页 + 静态资源 + 核心页 + 参赛者页
func (s TournamentStats) TotalPages() int {
	return s.IndexPages + s.StaticAssets + s.CorePages + s.ParticipantPages
}

// SiteStats 整站转储统计
type SiteStats struct {
	Site         Site              `json:"site"`
	HomeAssets   int               `json:"home_assets"`
	Tournaments  []TournamentStats `json:"tournaments"`
	SkippedSlugs []string          `json:"skipped_slugs,omitempty"`
	FailedURLs   []string          `json:"failed_urls,omitempty"`
	Duration     time.Duration     `json:"duration"`
}

// TotalPages 整站已转储页面数(含首页)
func (s SiteStats) TotalPages() int {
	total := 1 + s.HomeAssets
	for _, t := range s.Tournaments {
		total += t.TotalPages()
	}
	return total
}
