// Package config 负责加载和管理应用程序的配置
// 使用 viper 库支持 YAML 配置文件和环境变量覆盖
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是应用程序的根配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // 服务器配置
	Database DatabaseConfig `mapstructure:"database"` // 数据库配置
	Redis    RedisConfig    `mapstructure:"redis"`    // Redis 配置
	JWT      JWTConfig      `mapstructure:"jwt"`      // JWT 配置
	Log      LogConfig      `mapstructure:"log"`      // 日志配置
	AI       AIConfig       `mapstructure:"ai"`       // 对话推理配置
}

// ServerConfig 服务器相关配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`          // 监听端口，默认 8080
	Mode         string        `mapstructure:"mode"`          // 运行模式: debug / release
	CORS         []string      `mapstructure:"cors"`          // CORS 允许的域名
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // 读超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 写超时，流式接口需要足够长
}

// DatabaseConfig 数据库连接配置
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`         // mysql / sqlite
	Host         string `mapstructure:"host"`           // 数据库主机地址
	Port         int    `mapstructure:"port"`           // 数据库端口
	Username     string `mapstructure:"username"`       // 数据库用户名
	Password     string `mapstructure:"password"`       // 数据库密码
	Database     string `mapstructure:"database"`       // 数据库名称
	Charset      string `mapstructure:"charset"`        // 字符集
	SQLitePath   string `mapstructure:"sqlite_path"`    // sqlite 文件路径
	MaxIdleConns int    `mapstructure:"max_idle_conns"` // 最大空闲连接数
	MaxOpenConns int    `mapstructure:"max_open_conns"` // 最大打开连接数
	MaxLifetime  int    `mapstructure:"max_lifetime"`   // 连接最大生命周期（秒）
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`      // Redis 主机地址
	Port     int    `mapstructure:"port"`      // Redis 端口
	Username string `mapstructure:"username"`  // Redis 用户名
	Password string `mapstructure:"password"`  // Redis 密码
	DB       int    `mapstructure:"db"`        // 数据库索引 (0-15)
	PoolSize int    `mapstructure:"pool_size"` // 连接池大小
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Secret        string        `mapstructure:"secret"`         // JWT 签名密钥，至少32字符
	AccessExpire  time.Duration `mapstructure:"access_expire"`  // Access Token 过期时间
	RefreshExpire time.Duration `mapstructure:"refresh_expire"` // Refresh Token 过期时间
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug/info/warn/error
	Format string `mapstructure:"format"` // 日志格式: json/text
}

// AIConfig 对话推理配置
type AIConfig struct {
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`       // 阻塞调用超时
	StreamTimeout       time.Duration `mapstructure:"stream_timeout"`        // 流式调用超时，同时作为对话锁 TTL
	DefaultMaxContexts  int           `mapstructure:"default_max_contexts"`  // 对话和模型都未设置时的上下文条数
	DefaultTemperature  float64       `mapstructure:"default_temperature"`   // 新建对话的默认温度
	DefaultMaxTokens    int           `mapstructure:"default_max_tokens"`    // 新建对话的默认最大 Token
	HistoryRebuildLimit int           `mapstructure:"history_rebuild_limit"` // 历史缓存重建时最多读取的消息数
	DefaultLanguage     string        `mapstructure:"default_language"`      // remember 接口的默认回答语言
	RateLimitRPS        float64       `mapstructure:"rate_limit_rps"`        // 每用户发送频率，0 表示不限
	RateLimitBurst      int           `mapstructure:"rate_limit_burst"`      // 突发容量
}

// Load 从指定路径加载配置文件
// 支持 .env 与环境变量覆盖配置项
// 参数:
//   - configPath: 配置文件目录路径 (如 "./configs")
//
// 返回:
//   - *Config: 配置对象
//   - error: 如果加载失败则返回错误
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	// 例如: DATABASE_HOST -> database.host
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVariables(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindEnvVariables 绑定环境变量到配置项
func bindEnvVariables(v *viper.Viper) {
	// 服务器配置
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// 数据库配置
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "MYSQL_HOST")
	v.BindEnv("database.port", "MYSQL_PORT")
	v.BindEnv("database.username", "MYSQL_USERNAME")
	v.BindEnv("database.password", "MYSQL_PASSWORD")
	v.BindEnv("database.database", "MYSQL_DATABASE")
	v.BindEnv("database.sqlite_path", "SQLITE_PATH")

	// Redis 配置
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.username", "REDIS_USERNAME")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// JWT 配置
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// 日志配置
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
}

// setDefaults 设置配置项的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "5m")

	// 数据库默认配置
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.sqlite_path", "chat.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.max_lifetime", 3600)

	// Redis 默认配置
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)

	// JWT 默认配置
	v.SetDefault("jwt.access_expire", "24h")
	v.SetDefault("jwt.refresh_expire", "168h")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// 推理默认配置
	v.SetDefault("ai.request_timeout", "120s")
	v.SetDefault("ai.stream_timeout", "5m")
	v.SetDefault("ai.default_max_contexts", 20)
	v.SetDefault("ai.default_temperature", 0.7)
	v.SetDefault("ai.default_max_tokens", 2048)
	v.SetDefault("ai.history_rebuild_limit", 50)
	v.SetDefault("ai.default_language", "中文")
	v.SetDefault("ai.rate_limit_rps", 1.0)
	v.SetDefault("ai.rate_limit_burst", 5)
}
