package constants

// TargetKind 部署目标类型
const (
	TargetKindStatic   = "static"   // 静态资源目标(CDN/桶)
	TargetKindWorkload = "workload" // 工作负载目标(helm release)
	TargetKindMock     = "mock"     // 测试用
)

// SlotName 槽位名称, 每个目标固定两个
const (
	SlotBlue  = "blue"
	SlotGreen = "green"
)

// 环境类型
const (
	EnvTypeDev  = "dev"
	EnvTypeTest = "test"
	EnvTypePre  = "pre"
	EnvTypeProd = "prod"
)

// ApprovalState 审批状态
const (
	ApprovalStatePending  = "pending"   // 待审批
	ApprovalStateApproved = "approved"  // 已通过
	ApprovalStateDenied   = "denied"    // 已拒绝
	ApprovalStateTimedOut = "timed_out" // 超时, 与拒绝等同处理
	ApprovalStateSkipped  = "skipped"   // 免审批目标
)

// 流量权重边界
const (
	WeightNone = 0
	WeightFull = 100
)

// CLI 退出码
const (
	ExitSuccess      = 0 // 发布成功
	ExitFatal        = 1 // 流量切换前失败, 无需回滚
	ExitRolledBack   = 2 // 流量部分切换后回滚
)

// 状态
const (
	StatusEnabled  int8 = 1
	StatusDisabled int8 = 0
)

// JWT 相关
const (
	JWTContextKey  = "jwt_operator"
	JWTTypeAccess  = "access"
	JWTTypeRefresh = "refresh"
)

// HTTP Header
const (
	HeaderAuthorization = "Authorization"
	HeaderBearerPrefix  = "Bearer "
)

// 缓存类别, 静态制品清单中使用
const (
	CacheClassImmutable = "immutable" // 指纹化资源, 长缓存
	CacheClassEntry     = "entry"     // 入口文档, 禁止缓存
)

const (
	CacheControlImmutable = "public, max-age=31536000, immutable"
	CacheControlEntry     = "no-cache, no-store, must-revalidate"
)
