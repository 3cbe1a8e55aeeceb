package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadURLsFromFile 从文件中读取URL列表
// 跳过空行和#开头的注释行;validate不为nil时,校验失败的行记录警告后跳过
func ReadURLsFromFile(path string, validate func(string) error) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开URL文件失败: %w", err)
	}
	defer file.Close()

	urls := make([]string, 0)
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if validate != nil {
			if err := validate(line); err != nil {
				Warnf("跳过无效URL (行 %d): %s - %v", lineNum, line, err)
				continue
			}
		}

		if seen[line] {
			Debugf("跳过重复URL (行 %d): %s", lineNum, line)
			continue
		}
		seen[line] = true
		urls = append(urls, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取URL文件失败: %w", err)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("URL文件中没有有效的URL")
	}

	Infof("从文件加载了 %d 个URL", len(urls))
	return urls, nil
}
