package queue

// 主题命名规范：cv.<域>.<动作>[.<状态>]，发布后保持稳定、只做向后兼容的扩展.
// 域：file(文件生命周期)、scan(安全扫描)、share(分享访问)、quota(配额对账)
// 状态：请求(requested)、完成(ed)

const (
	// 文件生命周期.
	TopicFileStored   = "cv.file.stored"   // 文件写入对象存储且元数据已落库
	TopicFileDeleted  = "cv.file.deleted"  // 文件被用户删除（记录软删除，对象尽力删除）
	TopicFileInfected = "cv.file.infected" // 复扫判定感染，对象已删除或待清理

	// 安全扫描.
	TopicScanRescanRequested = "cv.scan.rescan.requested" // 请求延迟复扫，携带 not_before

	// 分享访问.
	TopicShareAccessed = "cv.share.accessed" // 分享链接下载授权成功

	// 配额对账.
	TopicQuotaReconciled = "cv.quota.reconciled" // 对账任务修正了用户已用空间
)

// 主题分组，用于批量订阅或运维查看.
var (
	FileTopics  = []string{TopicFileStored, TopicFileDeleted, TopicFileInfected}
	ScanTopics  = []string{TopicScanRescanRequested}
	ShareTopics = []string{TopicShareAccessed}
	QuotaTopics = []string{TopicQuotaReconciled}
)

// AllTopics 返回全部主题.
func AllTopics() []string {
	out := make([]string, 0, len(FileTopics)+len(ScanTopics)+len(ShareTopics)+len(QuotaTopics))
	out = append(out, FileTopics...)
	out = append(out, ScanTopics...)
	out = append(out, ShareTopics...)
	out = append(out, QuotaTopics...)

	return out
}
