package collector

import "encoding/json"

// IndustryNews 对应条目中的 industry_news 子结构
type IndustryNews struct {
	Title       string
	PublishTime string
}

// ProjectInfo 对应条目中的 project_info 子结构
type ProjectInfo struct {
	Name        string
	Description string
	WebURL      string
}

// RawItem 上游 content 列表中的一项；两个子结构都可能缺失，字段也各自可选
type RawItem struct {
	IndustryNews *IndustryNews
	ProjectInfo  *ProjectInfo
}

// parseRawItem 在解析边界把松散的 JSON 收敛成 RawItem：
// 子结构缺失、为 null 或不是对象时置为 nil；字段缺失或不是字符串时为空串。
func parseRawItem(data json.RawMessage) RawItem {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return RawItem{}
	}

	var item RawItem
	if sub, ok := subObject(fields, "industry_news"); ok {
		item.IndustryNews = &IndustryNews{
			Title:       stringField(sub, "title"),
			PublishTime: stringField(sub, "publish_time"),
		}
	}
	if sub, ok := subObject(fields, "project_info"); ok {
		item.ProjectInfo = &ProjectInfo{
			Name:        stringField(sub, "name"),
			Description: stringField(sub, "description"),
			WebURL:      stringField(sub, "web_url"),
		}
	}
	return item
}

func subObject(fields map[string]json.RawMessage, key string) (map[string]json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok {
		return nil, false
	}
	var sub map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sub); err != nil || sub == nil {
		return nil, false
	}
	return sub, true
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
