package config

import (
	"fmt"

	"github.com/spf13/viper"
)

var GlobalConfig *Config

// Config 全局配置
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Crypto       CryptoConfig       `mapstructure:"crypto"`
	Log          LogConfig          `mapstructure:"log"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Driver       DriverConfig       `mapstructure:"driver"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Notification NotificationConfig `mapstructure:"notification"`
	Janitor      JanitorConfig      `mapstructure:"janitor"`
	DB           interface{}        // 数据库连接,运行时注入
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	LogLevel        string `mapstructure:"log_level"`         // SQL日志级别: silent/error/warn/info
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置, 审批API的操作员Token
type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	AccessTokenExpire  int    `mapstructure:"access_token_expire"`  // 秒
	RefreshTokenExpire int    `mapstructure:"refresh_token_expire"` // 秒
}

// CryptoConfig 加密配置
type CryptoConfig struct {
	AESKey string `mapstructure:"aes_key"` // 32字节
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `mapstructure:"level"`  // debug, info, warn, error
	Format   string `mapstructure:"format"` // json, console
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

// OrchestratorConfig 蓝绿编排配置
type OrchestratorConfig struct {
	// 流量切换步长, 严格递增, 以0开始100结束
	Steps []int `mapstructure:"steps" validate:"required,min=2"`

	// 每步切换后的稳定等待(覆盖边缘缓存/DNS传播)
	SettleInterval string `mapstructure:"settle_interval"`

	Propagation PollConfig        `mapstructure:"propagation"`
	Approval    PollConfig        `mapstructure:"approval"`
	Deploy      DeployRetryConfig `mapstructure:"deploy"`

	// 目标租约TTL, 覆盖一次完整发布的时间预算
	LeaseTTL string `mapstructure:"lease_ttl"`

	// 免审批直接放行(dev/test环境)
	SkipApproval bool `mapstructure:"skip_approval"`
}

// PollConfig 轮询配置
type PollConfig struct {
	Timeout  string `mapstructure:"timeout"`
	Interval string `mapstructure:"interval"`
}

// DeployRetryConfig 部署重试配置
type DeployRetryConfig struct {
	MaxRetries     int    `mapstructure:"max_retries"`     // 可重试错误的最大重试次数
	InitialBackoff string `mapstructure:"initial_backoff"` // 首次退避
}

// DriverConfig 槽位驱动配置
type DriverConfig struct {
	// 驱动种类覆盖: mock 时所有目标走内存驱动(本地联调)
	Override string `mapstructure:"override"`

	Bucket BucketConfig `mapstructure:"bucket"`
	Helm   HelmConfig   `mapstructure:"helm"`
}

// BucketConfig 静态资源桶驱动(S3兼容)
type BucketConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"` // AES加密存储
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// HelmConfig 工作负载helm驱动
type HelmConfig struct {
	Kubeconfig   string `mapstructure:"kubeconfig"`
	Namespace    string `mapstructure:"namespace"`
	ChartRepoURL string `mapstructure:"chart_repo_url"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"` // AES加密存储
}

// MetricsConfig 健康指标后端配置
type MetricsConfig struct {
	Backend string `mapstructure:"backend"` // prometheus/mock
	Address string `mapstructure:"address"`
	Window  string `mapstructure:"window"` // 滑动窗口, 如 5m

	// 硬门槛
	ErrorRateThreshold float64 `mapstructure:"error_rate_threshold"` // 如 0.01
	LatencyP95MsMax    float64 `mapstructure:"latency_p95_ms_max"`

	// 软门槛, 仅记录不阻断
	CacheHitRateFloor float64 `mapstructure:"cache_hit_rate_floor"`
}

// NotificationConfig 通知配置
type NotificationConfig struct {
	Enabled     bool   `mapstructure:"enabled"`      // 是否启用
	Provider    string `mapstructure:"provider"`     // 通知渠道
	LarkWebhook string `mapstructure:"lark_webhook"` // Lark Webhook
}

// JanitorConfig 后台清理任务配置
type JanitorConfig struct {
	Cron       string `mapstructure:"cron"`        // Cron表达式, 秒级
	StaleAfter string `mapstructure:"stale_after"` // 超过该时长未到终态的发布视为疑似中断
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// 读取环境变量
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 设置全局配置
	GlobalConfig = config

	return config, nil
}

// GetDSN 获取数据库DSN
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}
