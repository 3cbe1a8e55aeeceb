package main

import (
	"fmt"
	"os"

	"github.com/RecoveryAshes/tabbydump/internal/core"
	"github.com/RecoveryAshes/tabbydump/internal/models"
)

// ValidateSiteURL 验证URL文件中的条目
// 条目必须带协议,且能分解出主机
func ValidateSiteURL(urlStr string) error {
	if err := models.ValidateURL(urlStr); err != nil {
		return err
	}
	if _, err := core.ParseTarget(urlStr); err != nil {
		return err
	}
	return nil
}

// ValidateURLFile 验证URL文件路径
func ValidateURLFile(path string) error {
	if path == "" {
		return fmt.Errorf("URL文件路径不能为空")
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("无法访问URL文件: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("URL文件路径是目录: %s", path)
	}
	return nil
}
