package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 客户端可选的自建后端类型
const (
	BackendMemory = "memory"
	BackendEdge   = "edge"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 3001
}

// MailboxConfig 定义邮箱存储的业务配置
type MailboxConfig struct {
	Capacity       int           // 内存存储中单个邮箱保留的最大邮件数，默认 50
	Retention      time.Duration // 键值存储中邮件的保留时长，默认 24 小时
	AllowedDomains []string      // 接收邮件的域名列表，为空表示接收任意域名
}

// SMTPConfig 定义 SMTP 邮件接收服务器的配置
type SMTPConfig struct {
	BindAddr        string        // SMTP 服务监听地址，格式 "host:port"，默认 ":2525"
	Domain          string        // SMTP 服务器域名，用于 HELO/EHLO 响应
	MaxMessageBytes int64         // 单封邮件最大字节数，默认 10MB
	MaxRecipients   int           // 单封邮件最多收件人数，默认 50
	MaxConnections  int           // 最大并发连接数，默认 100
	MaxConnRate     float64       // 每秒允许建立的新连接数，默认 20
	ReadTimeout     time.Duration // 读超时，默认 30 秒
	WriteTimeout    time.Duration // 写超时，默认 30 秒
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
}

// RedisConfig 定义 Redis 存储配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// EdgeConfig 定义边缘投递入口配置
type EdgeConfig struct {
	InboundToken    string // 投递触发器携带的 Bearer 令牌，留空表示不校验
	MaxMessageBytes int64  // 单封邮件最大字节数，默认 10MB
}

// ClientConfig 定义命令行客户端配置
type ClientConfig struct {
	PublicURL      string        // 公共临时邮箱 API 地址
	SelfHostedURL  string        // 自建后端地址
	CustomDomain   string        // 由自建后端接收的域名
	Backend        string        // 自建后端类型: memory 或 edge
	Domains        []string      // 公共服务支持的域名
	PollInterval   time.Duration // 收件箱轮询间隔，默认 10 秒
	StatusInterval time.Duration // 自建后端状态探测间隔，默认 30 秒
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server  ServerConfig  // HTTP 服务器配置
	Mailbox MailboxConfig // 邮箱存储配置
	SMTP    SMTPConfig    // SMTP 服务配置
	CORS    CORSConfig    // 跨域配置
	Log     LogConfig     // 日志配置
	Redis   RedisConfig   // Redis 配置
	Edge    EdgeConfig    // 边缘投递配置
	Client  ClientConfig  // 客户端配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//   1. 系统环境变量（最高优先级）
//   2. .env 文件（如果存在）
//   3. 默认值
//
// 环境变量前缀: XINICI_
// 例如: XINICI_SERVER_PORT, XINICI_SMTP_BIND_ADDR
func Load() (*Config, error) {
	// .env 文件是可选的
	loadEnvFile()

	viper.SetEnvPrefix("xinici")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 3001)
	viper.SetDefault("mailbox.capacity", 50)
	viper.SetDefault("mailbox.retention", "24h")
	viper.SetDefault("mailbox.allowed_domains", "")
	viper.SetDefault("smtp.bind_addr", ":2525")
	viper.SetDefault("smtp.domain", "localhost")
	viper.SetDefault("smtp.max_message_bytes", 10*1024*1024)
	viper.SetDefault("smtp.max_recipients", 50)
	viper.SetDefault("smtp.max_connections", 100)
	viper.SetDefault("smtp.max_conn_rate", 20)
	viper.SetDefault("smtp.read_timeout", "30s")
	viper.SetDefault("smtp.write_timeout", "30s")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("edge.inbound_token", "")
	viper.SetDefault("edge.max_message_bytes", 10*1024*1024)
	viper.SetDefault("client.public_url", "https://www.1secmail.com/api/v1/")
	viper.SetDefault("client.self_hosted_url", "http://localhost:3001")
	viper.SetDefault("client.custom_domain", "your-domain.com")
	viper.SetDefault("client.backend", BackendMemory)
	viper.SetDefault("client.domains", "1secmail.com,1secmail.net")
	viper.SetDefault("client.poll_interval", "10s")
	viper.SetDefault("client.status_interval", "30s")

	serverPort := viper.GetInt("server.port")
	if serverPort <= 0 || serverPort > 65535 {
		return nil, fmt.Errorf("invalid server.port: %d", serverPort)
	}

	capacity := viper.GetInt("mailbox.capacity")
	if capacity <= 0 {
		return nil, fmt.Errorf("mailbox.capacity must be positive, got %d", capacity)
	}

	retention, err := parseDuration("mailbox.retention")
	if err != nil {
		return nil, err
	}
	readTimeout, err := parseDuration("smtp.read_timeout")
	if err != nil {
		return nil, err
	}
	writeTimeout, err := parseDuration("smtp.write_timeout")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("client.poll_interval")
	if err != nil {
		return nil, err
	}
	statusInterval, err := parseDuration("client.status_interval")
	if err != nil {
		return nil, err
	}

	maxRecipients := viper.GetInt("smtp.max_recipients")
	if maxRecipients <= 0 {
		maxRecipients = 50
	}

	backend := strings.ToLower(viper.GetString("client.backend"))
	if backend != BackendMemory && backend != BackendEdge {
		return nil, fmt.Errorf("client.backend must be %q or %q, got %q", BackendMemory, BackendEdge, backend)
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: serverPort,
		},
		Mailbox: MailboxConfig{
			Capacity:       capacity,
			Retention:      retention,
			AllowedDomains: parseDomains(viper.GetString("mailbox.allowed_domains")),
		},
		SMTP: SMTPConfig{
			BindAddr:        viper.GetString("smtp.bind_addr"),
			Domain:          viper.GetString("smtp.domain"),
			MaxMessageBytes: viper.GetInt64("smtp.max_message_bytes"),
			MaxRecipients:   maxRecipients,
			MaxConnections:  viper.GetInt("smtp.max_connections"),
			MaxConnRate:     viper.GetFloat64("smtp.max_conn_rate"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Edge: EdgeConfig{
			InboundToken:    viper.GetString("edge.inbound_token"),
			MaxMessageBytes: viper.GetInt64("edge.max_message_bytes"),
		},
		Client: ClientConfig{
			PublicURL:      viper.GetString("client.public_url"),
			SelfHostedURL:  strings.TrimRight(viper.GetString("client.self_hosted_url"), "/"),
			CustomDomain:   strings.ToLower(strings.TrimSpace(viper.GetString("client.custom_domain"))),
			Backend:        backend,
			Domains:        parseDomains(viper.GetString("client.domains")),
			PollInterval:   pollInterval,
			StatusInterval: statusInterval,
		},
	}

	return cfg, nil
}

// Addr 返回 HTTP 监听地址
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func parseDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//   1. 当前目录的 .env
//   2. 父目录的 .env
//
// 文件不存在时静默跳过；已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
