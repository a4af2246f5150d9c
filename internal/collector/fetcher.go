package collector

// Record 统一后的单条资讯：标题、本地时间（HH:MM）与链接，是唯一需要落盘的结构
type Record struct {
	Title string `json:"title"`
	Time  string `json:"time"`
	URL   string `json:"url"`
}

// ResultSet 一次采集得到的记录，顺序与上游返回顺序一致
type ResultSet []Record

// Snapshot 按来源标签归档的结果，落盘格式为 {"GitCode": [...]}
type Snapshot map[string]ResultSet

// Count 返回快照内全部来源的记录总数
func (s Snapshot) Count() int {
	n := 0
	for _, rs := range s {
		n += len(rs)
	}
	return n
}

// Mode 标记一次采集结果来自线上接口还是兜底数据
type Mode string

const (
	ModeLive     Mode = "live"
	ModeFallback Mode = "fallback"
)

// Outcome 带标记的采集结果；对外契约只暴露 Records，Mode/Attempts/Err 用于日志与入库
type Outcome struct {
	Label    string
	Mode     Mode
	Records  ResultSet
	Attempts int
	// Err 为最后一次失败原因，线上成功时为 nil
	Err error
}

// Fetcher 抽象每一个数据源
type Fetcher interface {
	Name() string
	Label() string
	Fetch() (Outcome, error)
}
