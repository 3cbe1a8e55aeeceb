package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/tabbydump/internal/crawlers"
	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
)

const (
	// PageFileName 无扩展名页面的落盘文件名
	PageFileName = "index.html"

	// queryMarker 查询串并入文件名时使用的分隔符("?"的百分号编码)
	queryMarker = "%3F"
)

// Dumper 抓取单个资源并写入镜像目录
// 自身不保存状态,可被多个goroutine同时使用
type Dumper struct {
	fetcher crawlers.Fetcher
	root    string
}

// NewDumper 创建转储器
// fetcher通常是全局的RequestManager;root是站点镜像根目录(<output>/<host>)
func NewDumper(fetcher crawlers.Fetcher, root string) *Dumper {
	return &Dumper{
		fetcher: fetcher,
		root:    root,
	}
}

// Root 镜像根目录
func (d *Dumper) Root() string {
	return d.root
}

// Dump 抓取sourceURL并写入由URL推导出的路径
// 成功时返回抓取结果供调用方继续解析;失败时返回 *models.DumpError
func (d *Dumper) Dump(ctx context.Context, sourceURL string) (*models.PageResult, error) {
	target, err := MapPath(d.root, sourceURL)
	if err != nil {
		return nil, d.fail(sourceURL, models.StageMap, err)
	}

	result, err := d.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, d.fail(sourceURL, models.StageFetch, err)
	}

	if _, err := EnsureDir(target.Dir); err != nil {
		return nil, d.fail(sourceURL, models.StageMkdir, err)
	}

	if err := writeFileAtomic(target.FilesystemPath, result.Body); err != nil {
		return nil, d.fail(sourceURL, models.StageWrite, err)
	}

	utils.Infof("📥 转储成功: %s → %s", sourceURL, target.FilesystemPath)
	return result, nil
}

// fail 记录并包装转储错误
func (d *Dumper) fail(sourceURL string, stage models.DumpStage, cause error) error {
	dumpErr := &models.DumpError{URL: sourceURL, Stage: stage, Cause: cause}
	utils.Errorf("❌ 转储失败: %s (%s): %v", sourceURL, stage, cause)
	return dumpErr
}

// MapPath 由URL推导落盘位置,只依赖URL和root
//
// 规则:
//   - 最后一段带扩展名(见 models.HasFileExtension): 文件,写入 <root>/<path>
//   - 否则: 页面,写入 <root>/<path>/index.html
//   - 站点根 "/" 写入 <root>/index.html
//   - 查询串以 %3F<query> 的形式并入最后一段
//
// 每一段先解码再重新编码: "%"→%25, "/"→%2F, 反斜杠→%5C, "?"→%3F%3F,
// 因此 a%2Fb 与 a/b、路径中的"?"与查询串标记都不会落到同一路径。
// 尾斜杠不区分(/wudc 与 /wudc/ 是同一页面)。路径先做清理,".."不能越出root
func MapPath(root, rawURL string) (models.DumpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.DumpTarget{}, fmt.Errorf("无效的URL: %w", err)
	}

	clean := path.Clean("/" + u.EscapedPath())
	segments := make([]string, 0, strings.Count(clean, "/"))
	last := ""
	for _, raw := range strings.Split(clean, "/") {
		if raw == "" {
			continue
		}
		decoded, err := url.PathUnescape(raw)
		if err != nil {
			return models.DumpTarget{}, fmt.Errorf("无效的URL路径: %w", err)
		}
		last = decoded
		segments = append(segments, escapeSegment(decoded))
	}
	isPage := !models.HasFileExtension(last)

	// 文件 /a/index.html 与页面 /a 不能共用 a/index.html
	if !isPage && last == PageFileName {
		segments[len(segments)-1] = strings.ReplaceAll(PageFileName, ".", "%2E")
	}

	if u.RawQuery != "" {
		folded := queryMarker + queryEscaper.Replace(u.RawQuery)
		if len(segments) == 0 {
			segments = append(segments, folded)
		} else {
			segments[len(segments)-1] += folded
		}
	}

	full := filepath.Join(append([]string{root}, segments...)...)
	if isPage {
		return models.DumpTarget{
			FilesystemPath: filepath.Join(full, PageFileName),
			Dir:            full,
			IsPage:         true,
		}, nil
	}

	return models.DumpTarget{
		FilesystemPath: full,
		Dir:            filepath.Dir(full),
		IsPage:         false,
	}, nil
}

var (
	segmentEscaper = strings.NewReplacer("%", "%25", "/", "%2F", "\\", "%5C", "?", "%3F%3F")
	queryEscaper   = strings.NewReplacer("%", "%25", "/", "%2F", "\\", "%5C")
)

// escapeSegment 编码解码后的一段路径
// 输出中的"%"只出现在编码序列里,单独的%3F只可能是查询串标记
func escapeSegment(s string) string {
	if s == "." || s == ".." {
		return strings.Repeat("%2E", len(s))
	}
	return segmentEscaper.Replace(s)
}

// EnsureDir 递归创建目录
// 目录已存在视为成功(created=false);路径被普通文件占用或其他创建失败返回错误
func EnsureDir(dir string) (created bool, err error) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("路径已存在且不是目录: %s", dir)
		}
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("检查目录失败: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("创建目录失败: %w", err)
	}
	utils.Debugf("创建目录: %s", dir)
	return true, nil
}

// writeFileAtomic 先写临时文件再重命名
// 同一资源被并发转储两次时,读者只会看到完整的文件
func writeFileAtomic(filePath string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".tabbydump-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("重命名文件失败: %w", err)
	}
	return nil
}
