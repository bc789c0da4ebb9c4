// Package config 提供应用配置管理功能
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	globalConfig *Config
	once         sync.Once
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Baserow   BaserowConfig   `mapstructure:"baserow"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Business  BusinessConfig  `mapstructure:"business"`
}

// ServerConfig HTTP 服务配置（webhook、健康检查、指标）
type ServerConfig struct {
	Name            string `mapstructure:"name"`
	Mode            string `mapstructure:"mode"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Name            string `mapstructure:"name"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	Path            string `mapstructure:"path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogMode         bool   `mapstructure:"log_mode"`
	SlowThreshold   int    `mapstructure:"slow_threshold"`
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode, d.Timezone,
	)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  int    `mapstructure:"dial_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// Addr 返回 Redis 地址
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// 表格存储后端
const (
	StorageBaserow  = "baserow"
	StorageDatabase = "database"
)

// StorageConfig 表格存储选择
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// BaserowConfig Baserow 配置
type BaserowConfig struct {
	URL        string `mapstructure:"url"`
	JWT        string `mapstructure:"jwt"`
	Token      string `mapstructure:"token"`
	DatabaseID int64  `mapstructure:"database_id"`
	PageSize   int    `mapstructure:"page_size"`
	Timeout    int    `mapstructure:"timeout"`
}

// 更新接收方式
const (
	TelegramModePolling = "polling"
	TelegramModeWebhook = "webhook"
)

// TelegramConfig Telegram 机器人配置
type TelegramConfig struct {
	Token         string `mapstructure:"token"`
	APIURL        string `mapstructure:"api_url"`
	Mode          string `mapstructure:"mode"`
	WebhookURL    string `mapstructure:"webhook_url"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	PollTimeout   int    `mapstructure:"poll_timeout"`
	ManagerID     int64  `mapstructure:"manager_id"`
}

// LLMConfig 大模型配置（OpenAI 兼容接口）
type LLMConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Timeout        int    `mapstructure:"timeout"`
	PolicyMaxChars int    `mapstructure:"policy_max_chars"`
}

// MemoryConfig 对话记忆配置
type MemoryConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
	TTLHours   int `mapstructure:"ttl_hours"`
}

// TTL 返回记忆保留时长
func (m *MemoryConfig) TTL() time.Duration {
	return time.Duration(m.TTLHours) * time.Hour
}

// PolicyConfig 规章文档配置
type PolicyConfig struct {
	DocxPath string `mapstructure:"docx_path"`
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DailyReportTime string `mapstructure:"daily_report_time"`
	Timezone        string `mapstructure:"timezone"`
	LockTTL         int    `mapstructure:"lock_ttl"`
}

// Location 返回调度时区，解析失败时回退到本地时区
func (s *SchedulerConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DailyReportClock 解析 "HH:MM" 形式的每日执行时间
func (s *SchedulerConfig) DailyReportClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", s.DailyReportTime)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid daily_report_time %q: %w", s.DailyReportTime, err)
	}
	return t.Hour(), t.Minute(), nil
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Caller     bool   `mapstructure:"caller"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// BusinessConfig 业务配置
type BusinessConfig struct {
	Tables         TablesConfig `mapstructure:"tables"`
	FineType       string       `mapstructure:"fine_type"`
	FetchLimit     int          `mapstructure:"fetch_limit"`
	PendingTTL     int          `mapstructure:"pending_ttl"`
	DetailsTTL     int          `mapstructure:"details_ttl"`
	PreviewRows    int          `mapstructure:"preview_rows"`
	TableListLimit int          `mapstructure:"table_list_limit"`
}

// PendingTTLDuration 待确认报告的有效期
func (b *BusinessConfig) PendingTTLDuration() time.Duration {
	return time.Duration(b.PendingTTL) * time.Second
}

// DetailsTTLDuration 等待用户补充信息的有效期
func (b *BusinessConfig) DetailsTTLDuration() time.Duration {
	return time.Duration(b.DetailsTTL) * time.Second
}

// TablesConfig CRM 表名
type TablesConfig struct {
	Deals      string `mapstructure:"deals"`
	CashPool   string `mapstructure:"cash_pool"`
	ProcessLog string `mapstructure:"process_log"`
	Tasks      string `mapstructure:"tasks"`
	Objects    string `mapstructure:"objects"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		// .env 文件可选，不存在时忽略
		_ = godotenv.Load()

		v := viper.New()

		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./configs")
			v.AddConfigPath(".")
		}

		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		setDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		globalConfig = &Config{}
		if err = v.Unmarshal(globalConfig); err != nil {
			return
		}
	})

	return globalConfig, err
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		globalConfig = &Config{}
		v := viper.New()
		setDefaults(v)
		_ = v.Unmarshal(globalConfig)
	}
	return globalConfig
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.name", "realty-crm-bot")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.shutdown_timeout", 10)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "realty_crm")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "Europe/Moscow")
	v.SetDefault("database.path", "./data/crm.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_mode", false)
	v.SetDefault("database.slow_threshold", 200)

	// Redis defaults
	v.SetDefault("redis.host", "redis")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	// Storage defaults
	v.SetDefault("storage.backend", StorageBaserow)

	// Baserow defaults
	v.SetDefault("baserow.url", "http://baserow:80")
	v.SetDefault("baserow.database_id", 1)
	v.SetDefault("baserow.page_size", 200)
	v.SetDefault("baserow.timeout", 30)

	// Telegram defaults
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.mode", TelegramModePolling)
	v.SetDefault("telegram.poll_timeout", 30)
	v.SetDefault("telegram.manager_id", 0)

	// LLM defaults
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.base_url", "http://g4f:1337/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 60)
	v.SetDefault("llm.policy_max_chars", 6000)

	// Memory defaults
	v.SetDefault("memory.max_entries", 50)
	v.SetDefault("memory.ttl_hours", 720)

	// Policy defaults
	v.SetDefault("policy.docx_path", "/app/policy/rules.docx")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.daily_report_time", "23:59")
	v.SetDefault("scheduler.timezone", "Europe/Moscow")
	v.SetDefault("scheduler.lock_ttl", 300)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "./logs/bot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.caller", true)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "realty_crm")
	v.SetDefault("metrics.path", "/metrics")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "realty-crm-bot")
	v.SetDefault("tracing.sample_rate", 1.0)

	// Business defaults
	v.SetDefault("business.tables.deals", "Успешные Сделки")
	v.SetDefault("business.tables.cash_pool", "Общак")
	v.SetDefault("business.tables.process_log", "Собрание, рабочие процессы")
	v.SetDefault("business.tables.tasks", "Задачи")
	v.SetDefault("business.tables.objects", "Объекты")
	v.SetDefault("business.fine_type", "Штраф")
	v.SetDefault("business.fetch_limit", 1000)
	v.SetDefault("business.pending_ttl", 3600)
	v.SetDefault("business.details_ttl", 600)
	v.SetDefault("business.preview_rows", 20)
	v.SetDefault("business.table_list_limit", 100)
}

// Validate 启动时校验必需配置
func (c *Config) Validate() error {
	token := strings.TrimSpace(c.Telegram.Token)
	if token == "" || strings.HasPrefix(token, "YOUR_") {
		return fmt.Errorf("telegram.token is missing or placeholder")
	}
	switch c.Storage.Backend {
	case StorageBaserow, StorageDatabase:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Telegram.Mode {
	case TelegramModePolling:
	case TelegramModeWebhook:
		if c.Telegram.WebhookURL == "" {
			return fmt.Errorf("telegram.webhook_url is required in webhook mode")
		}
	default:
		return fmt.Errorf("unknown telegram.mode %q", c.Telegram.Mode)
	}
	if _, _, err := c.Scheduler.DailyReportClock(); err != nil {
		return err
	}
	return nil
}

// IsRelease 是否为发布模式
func (c *Config) IsRelease() bool {
	return c.Server.Mode == "release" || c.Server.Mode == "production"
}
