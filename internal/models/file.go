package models

import (
	"fmt"
	"regexp"
)

const (
	// MaxBodySize 单个资源最大大小 50MB
	MaxBodySize = 50 * 1024 * 1024
)

// extPattern 路径最后一段带扩展名即视为文件,否则视为页面
// 扩展名2-5个字符且以字母开头: .woff2 是文件,v1.2 是页面
var extPattern = regexp.MustCompile(`(?i)\.[a-z][a-z0-9]{1,4}$`)

// HasFileExtension 判断路径最后一段是否带扩展名
func HasFileExtension(p string) bool {
	return extPattern.MatchString(p)
}

// PageResult 一次抓取的结果,交给解析器后即丢弃
type PageResult struct {
	SourceURL   string `json:"source_url"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"-"`
}

// Text 以字符串形式返回响应体
func (p *PageResult) Text() string {
	if p == nil {
		return ""
	}
	return string(p.Body)
}

// DumpTarget 由URL唯一推导出的落盘位置
type DumpTarget struct {
	// FilesystemPath 写入文件的完整路径
	FilesystemPath string `json:"filesystem_path"`

	// Dir 写入前需要创建的目录
	Dir string `json:"dir"`

	// IsPage 无扩展名的页面,落盘为 <dir>/index.html
	IsPage bool `json:"is_page"`
}

// ParticipantLink 从内嵌表格中提取的参赛者页面链接
type ParticipantLink struct {
	URL string `json:"url"`
}

// DumpStage 转储失败所在阶段
type DumpStage string

const (
	StageMap   DumpStage = "map"
	StageFetch DumpStage = "fetch"
	StageMkdir DumpStage = "mkdir"
	StageWrite DumpStage = "write"
)

// DumpError 单个资源转储失败
type DumpError struct {
	URL   string
	Stage DumpStage
	Cause error
}

// Error 实现error接口
func (e *DumpError) Error() string {
	return fmt.Sprintf("转储失败 [%s] (%s): %v", e.URL, e.Stage, e.Cause)
}

// Unwrap 支持errors.Is/As
func (e *DumpError) Unwrap() error {
	return e.Cause
}
