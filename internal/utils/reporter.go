package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/schollz/progressbar/v3"
)

// ReportsDirName 报告目录名,与站点目录并列
const ReportsDirName = "reports"

// Reporter 报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
// 报告写入 <outputDir>/reports/,不会混进站点镜像目录
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// SaveReport 保存转储报告,返回报告文件路径
func (r *Reporter) SaveReport(report *models.DumpReport) (string, error) {
	reportsDir := filepath.Join(r.outputDir, ReportsDirName)
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	data, err := report.ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", sanitizeHost(report.Site.Host), report.RunID)
	path := filepath.Join(reportsDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	Infof("📄 报告已生成: %s", path)
	return path, nil
}

// LoadReport 读取已保存的报告
func LoadReport(path string) (*models.DumpReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取报告文件失败: %w", err)
	}
	var report models.DumpReport
	if err := report.FromJSON(data); err != nil {
		return nil, fmt.Errorf("解析报告文件失败: %w", err)
	}
	return &report, nil
}

// sanitizeHost 主机名中的端口分隔符在部分文件系统上不合法
func sanitizeHost(host string) string {
	if host == "" {
		return "unknown"
	}
	return strings.NewReplacer(":", "_", "/", "_").Replace(host)
}

// NewProgressBar 创建进度条
// visible为false时输出丢弃,但仍记录进度和完成状态,调用方无需判空
func NewProgressBar(max int, description string, visible bool) *progressbar.ProgressBar {
	var w io.Writer = os.Stderr
	if !visible {
		w = io.Discard
	}
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
