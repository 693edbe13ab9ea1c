package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Tools    ToolsConfig    `mapstructure:"tools"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// ToolsConfig 外部工具配置
type ToolsConfig struct {
	JavaPath       string `mapstructure:"java_path"`
	BaksmaliPath   string `mapstructure:"baksmali_path"` // baksmali.jar 路径
	KeytoolPath    string `mapstructure:"keytool_path"`
	DisasmTimeout  int    `mapstructure:"disasm_timeout"`  // seconds
	KeytoolTimeout int    `mapstructure:"keytool_timeout"` // seconds
}

// CacheConfig 缓存目录配置
type CacheConfig struct {
	WorkDir string `mapstructure:"work_dir"` // <work_dir>/<sha1>/cache, <work_dir>/<sha1>/unzipped
}

// AnalysisConfig 分析配置
type AnalysisConfig struct {
	SignatureSuffixes []string `mapstructure:"signature_suffixes"`
	DefaultExclusions bool     `mapstructure:"default_exclusions"` // 启动时加载内置排除规则
	SaveReports       bool     `mapstructure:"save_reports"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`      // debug, release
	APIToken string `mapstructure:"api_token"` // 非空时 /api 需要 Bearer token
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // mysql, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Path     string `mapstructure:"path"` // sqlite 文件路径
}

type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
}

// WatcherConfig 目录监控配置
type WatcherConfig struct {
	InboxDir   string `mapstructure:"inbox_dir"`
	Pattern    string `mapstructure:"pattern"`
	DebounceMs int    `mapstructure:"debounce_ms"` // 同一文件事件合并窗口
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"` // Worker 数量
	QueueSize   int `mapstructure:"queue_size"`  // 任务队列大小
}

// MetricsConfig Prometheus 配置
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// setDefaults 默认值（没有配置文件时也能运行）
func setDefaults(v *viper.Viper) {
	v.SetDefault("tools.java_path", "java")
	v.SetDefault("tools.baksmali_path", "./bin/baksmali.jar")
	v.SetDefault("tools.keytool_path", "keytool")
	v.SetDefault("tools.disasm_timeout", 600)
	v.SetDefault("tools.keytool_timeout", 30)

	v.SetDefault("cache.work_dir", ".")

	v.SetDefault("analysis.signature_suffixes", []string{".RSA", ".DSA", ".EC"})
	v.SetDefault("analysis.default_exclusions", false)
	v.SetDefault("analysis.save_reports", false)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.api_token", "")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./data/droidcarve.db")

	v.SetDefault("rabbitmq.enabled", false)
	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")
	v.SetDefault("rabbitmq.queue", "droidcarve_tasks")

	v.SetDefault("watcher.inbox_dir", "./inbound_apks")
	v.SetDefault("watcher.pattern", "*.apk")
	v.SetDefault("watcher.debounce_ms", 2000)

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_size", 100)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "droidcarve")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load 加载配置；path 为空时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("DROIDCARVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// RabbitMQ
	v.BindEnv("rabbitmq.host", "RABBITMQ_HOST")
	v.BindEnv("rabbitmq.port", "RABBITMQ_PORT")
	v.BindEnv("rabbitmq.user", "RABBITMQ_USER")
	v.BindEnv("rabbitmq.password", "RABBITMQ_PASS")

	// Database
	v.BindEnv("database.host", "MYSQL_HOST")
	v.BindEnv("database.port", "MYSQL_PORT")
	v.BindEnv("database.user", "MYSQL_USER")
	v.BindEnv("database.password", "MYSQL_PASS")
	v.BindEnv("database.db_name", "MYSQL_DB")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
