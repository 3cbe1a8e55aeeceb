package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/RecoveryAshes/tabbydump/internal/models"
)

// DefaultProtocol URL未带协议时使用
const DefaultProtocol = "http://"

var (
	// ErrNoURL 未指定URL
	ErrNoURL = errors.New("未指定URL")

	// ErrInvalidURL URL中无法识别出主机
	ErrInvalidURL = errors.New("无效的URL")
)

// targetPattern (protocol://)?host(:port)?(/tournamentSlug)?
var targetPattern = regexp.MustCompile(`(?i)^(https?://)?([\w.-]{2,}(?::\d+)?)(?:/([^/\s?#]+))?`)

// Target 从输入URL分解出的转储目标
type Target struct {
	Site       models.Site
	Tournament *models.Tournament
	Raw        string
}

// HasTournament URL中是否指定了赛事
func (t Target) HasTournament() bool {
	return t.Tournament != nil
}

// ParseTarget 分解输入URL
// 协议缺省为 http://;识别不出主机时返回 ErrInvalidURL
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, ErrNoURL
	}

	m := targetPattern.FindStringSubmatch(raw)
	if m == nil {
		return Target{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	// 主机(或slug)之后只能是路径、查询串或片段,排除 ftp://... 之类的输入
	if rest := raw[len(m[0]):]; rest != "" && !strings.ContainsAny(rest[:1], "/?#") {
		return Target{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}

	protocol := strings.ToLower(m[1])
	if protocol == "" {
		protocol = DefaultProtocol
	}

	target := Target{
		Site: models.Site{
			Protocol: protocol,
			Host:     strings.ToLower(m[2]),
		},
		Raw: raw,
	}

	if err := models.ValidateURL(target.Site.BaseURL()); err != nil {
		return Target{}, fmt.Errorf("%w: %s: %v", ErrInvalidURL, raw, err)
	}

	if slug := m[3]; slug != "" {
		target.Tournament = &models.Tournament{Slug: slug}
	}
	return target, nil
}
