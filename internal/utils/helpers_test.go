package utils

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestReadURLsFromFile(t *testing.T) {
	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "urls.txt")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("写入URL文件失败: %v", err)
		}
		return path
	}

	requireHTTP := func(s string) error {
		if !strings.HasPrefix(s, "http") {
			return errors.New("缺少协议")
		}
		return nil
	}

	t.Run("跳过注释、空行、重复和无效行", func(t *testing.T) {
		path := write(t, `
# 站点列表
https://a.example.com/

ftp://bad.example.com/
https://b.example.com/wudc
https://a.example.com/
`)
		got, err := ReadURLsFromFile(path, requireHTTP)
		if err != nil {
			t.Fatalf("ReadURLsFromFile() error = %v", err)
		}
		want := []string{"https://a.example.com/", "https://b.example.com/wudc"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ReadURLsFromFile() = %v, want %v", got, want)
		}
	})

	t.Run("不校验时保留所有非空行", func(t *testing.T) {
		got, err := ReadURLsFromFile(write(t, "a.example.com\nb.example.com/x\n"), nil)
		if err != nil {
			t.Fatalf("ReadURLsFromFile() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("得到 %v", got)
		}
	})

	t.Run("没有有效URL", func(t *testing.T) {
		if _, err := ReadURLsFromFile(write(t, "# 只有注释\n\n"), nil); err == nil {
			t.Error("空文件应该报错")
		}
	})

	t.Run("文件不存在", func(t *testing.T) {
		if _, err := ReadURLsFromFile(filepath.Join(t.TempDir(), "missing.txt"), nil); err == nil {
			t.Error("文件不存在应该报错")
		}
	})
}
