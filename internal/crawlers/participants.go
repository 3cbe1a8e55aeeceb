package crawlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/RecoveryAshes/tabbydump/internal/models"
)

// DefaultParticipantMarker 内嵌表格数据所在脚本的标记
const DefaultParticipantMarker = "vueData"

// ErrNoParticipantData 页面中没有可用的参赛者表格
var ErrNoParticipantData = errors.New("未找到参赛者表格数据")

// participantTable 内嵌的表格
type participantTable struct {
	Data [][]json.RawMessage `json:"data"`
}

// participantCell 表格单元格,只关心popover注解
type participantCell struct {
	Popover *struct {
		Content []map[string]json.RawMessage `json:"content"`
	} `json:"popover"`
}

// ExtractParticipantLinks 从页面的内嵌表格中提取参赛者页面链接
// ok=false 表示页面上没有可解码的表格;结构缺失或损坏都按"未找到"处理
func ExtractParticipantLinks(page *Page, marker string) ([]models.ParticipantLink, bool) {
	script, found := page.ScriptContaining(marker)
	if !found {
		return nil, false
	}

	raw, err := ParseParticipantTable(script, marker)
	if err != nil {
		return nil, false
	}

	links := make([]models.ParticipantLink, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, link := range raw {
		path, ok := page.resolvePath(link)
		if !ok || seen[path] {
			continue
		}
		seen[path] = true
		links = append(links, models.ParticipantLink{URL: path})
	}
	return links, true
}

// ParseParticipantTable 解码script文本中marker之后的第一个JSON数组
// 每一行取最后一个带link的popover单元格;结果按首次出现顺序去重
func ParseParticipantTable(script, marker string) ([]string, error) {
	idx := strings.Index(script, marker)
	if idx < 0 {
		return nil, ErrNoParticipantData
	}
	rest := script[idx+len(marker):]

	start := strings.IndexByte(rest, '[')
	if start < 0 {
		return nil, ErrNoParticipantData
	}

	var tables []participantTable
	dec := json.NewDecoder(strings.NewReader(rest[start:]))
	if err := dec.Decode(&tables); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoParticipantData, err)
	}

	links := make([]string, 0)
	for _, table := range tables {
		for _, row := range table.Data {
			if link := rowLink(row); link != "" {
				links = append(links, link)
			}
		}
	}
	return dedupLinks(links), nil
}

// rowLink 一行中最后一个带link行的popover单元格决定该行的链接
func rowLink(row []json.RawMessage) string {
	var link string
	for _, rawCell := range row {
		var cell participantCell
		// 纯文本或数字单元格没有popover
		if err := json.Unmarshal(rawCell, &cell); err != nil || cell.Popover == nil {
			continue
		}
		for _, line := range cell.Popover.Content {
			rawLink, ok := line["link"]
			if !ok {
				continue
			}
			var value string
			if err := json.Unmarshal(rawLink, &value); err != nil {
				value = ""
			}
			link = value
			break
		}
	}
	return link
}

// dedupLinks 按完全相等去重,保留首次出现顺序
func dedupLinks(links []string) []string {
	seen := make(map[string]bool, len(links))
	result := make([]string, 0, len(links))
	for _, link := range links {
		if seen[link] {
			continue
		}
		seen[link] = true
		result = append(result, link)
	}
	return result
}
