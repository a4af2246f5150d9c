package collector

import (
	"strings"
	"time"
)

const (
	clockLayout = "15:04"

	titleMaxRunes  = 100
	titleKeepRunes = 97
	descMaxRunes   = 50
	descKeepRunes  = 47

	ellipsis       = "..."
	titleSeparator = ": "
)

// publishTimeLayouts 覆盖 ISO-8601 的常见写法；不带时区的按 now 所在时区解释
var publishTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Normalize 把一个原始条目解析为 Record；title 或 url 无法确定时返回 false，该条目被丢弃。
// now 同时提供默认时间和“本地时区”。
func Normalize(item RawItem, now time.Time) (Record, bool) {
	title := resolveTitle(item)
	url := resolveURL(item)
	if title == "" || url == "" {
		return Record{}, false
	}
	return Record{
		Title: title,
		Time:  resolveTime(item, now),
		URL:   url,
	}, true
}

func resolveTime(item RawItem, now time.Time) string {
	if item.IndustryNews != nil {
		if t, ok := parsePublishTime(item.IndustryNews.PublishTime, now.Location()); ok {
			return t.In(now.Location()).Format(clockLayout)
		}
	}
	return now.Format(clockLayout)
}

// parsePublishTime 尝试解析发布时间，末尾的 Z 视为 +00:00；失败返回 false，由调用方回退到当前时间
func parsePublishTime(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	s = strings.ReplaceAll(s, "Z", "+00:00")
	for _, layout := range publishTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func resolveTitle(item RawItem) string {
	var title string
	switch {
	case item.IndustryNews != nil && item.IndustryNews.Title != "":
		title = item.IndustryNews.Title
	case item.ProjectInfo != nil && item.ProjectInfo.Name != "":
		title = item.ProjectInfo.Name
		if desc := item.ProjectInfo.Description; desc != "" {
			title += titleSeparator + truncateRunes(desc, descMaxRunes, descKeepRunes)
		}
	}
	return truncateRunes(title, titleMaxRunes, titleKeepRunes)
}

func resolveURL(item RawItem) string {
	if item.ProjectInfo == nil {
		return ""
	}
	return item.ProjectInfo.WebURL
}

// truncateRunes 超过 limit 个字符时保留前 keep 个字符并追加省略号，按 rune 计数避免截断半个汉字
func truncateRunes(s string, limit, keep int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:keep]) + ellipsis
}
