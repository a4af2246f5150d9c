package collector

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// mockMaxMinutesAgo 兜底数据的时间在 [now-120min, now] 内随机，仅作为“新鲜度”展示
const mockMaxMinutesAgo = 120

var mockProjects = []struct {
	Name string
	Desc string
}{
	{"youtube-music", "个性化音乐播放器，畅享自由！"},
	{"Ventoy", "一键打造多系统启动U盘，高效安全！"},
	{"nvm", "Node.js版本管理工具"},
	{"dockge", "Docker Compose管理工具"},
	{"nest-admin", "基于NestJS的后台管理系统"},
	{"highway", "高性能SIMD库"},
	{"cvat", "图像标注与数据管理工具"},
	{"NSMusicS", "在线音乐播放与管理"},
	{"OpenEmu", "复古游戏模拟器"},
	{"ffmpeg-commander", "FFmpeg命令生成工具"},
}

// MockResultSet 在上游不可用时生成固定结构的兜底数据（10 条）。
// rnd 为 nil 时使用全局随机源；传入固定种子的 rand.Rand 可得到确定的结果。
func MockResultSet(now time.Time, rnd *rand.Rand) ResultSet {
	out := make(ResultSet, 0, len(mockProjects))
	for _, p := range mockProjects {
		minutesAgo := randIntN(rnd, mockMaxMinutesAgo+1)
		out = append(out, Record{
			Title: fmt.Sprintf("🔥%s：%s全网新增星标！", p.Name, p.Desc),
			Time:  now.Add(-time.Duration(minutesAgo) * time.Minute).Format(clockLayout),
			URL:   MockURL(p.Name),
		})
	}
	return out
}

// MockURL 按固定模板由项目名生成兜底链接
func MockURL(project string) string {
	slug := strings.ToLower(project)
	return fmt.Sprintf("https://gitcode.com/gh_mirrors/%s/%s", slug, slug)
}

func randIntN(rnd *rand.Rand, n int) int {
	if rnd == nil {
		return rand.IntN(n)
	}
	return rnd.IntN(n)
}
