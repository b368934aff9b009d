package config

import (
	"os"
	"strconv"
	"time"
)

// Config 服务完整配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	DB       DBConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	MQ       MQConfig       `yaml:"mq"`
	JWT      JWTConfig      `yaml:"jwt"`
	Insights InsightsConfig `yaml:"insights"`
	Admin    AdminConfig    `yaml:"admin"`
	OTel     OTelConfig     `yaml:"otel"`
}

// DBConfig 数据库配置
type DBConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Name        string `yaml:"name"`
	MaxConns    int32  `yaml:"max_conns"`
	MinConns    int32  `yaml:"min_conns"`
	SlowQueryMS int    `yaml:"slow_query_ms"`
}

// MQConfig 消息队列配置，URL 为空时使用进程内总线
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig Redis配置，Addr 为空时不启用
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	TTLHours int    `yaml:"ttl_hours"`
}

// TTL 返回 token 有效期
func (c JWTConfig) TTL() time.Duration {
	if c.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TTLHours) * time.Hour
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `yaml:"port"`
}

// InsightsConfig 外部指标源配置
type InsightsConfig struct {
	Mode               string `yaml:"mode"` // simulated | http
	BaseURL            string `yaml:"base_url"`
	AccessToken        string `yaml:"access_token"`
	TimeoutMS          int    `yaml:"timeout_ms"`
	RefreshDelayMS     int    `yaml:"refresh_delay_ms"`
	AutoRefreshMinutes int    `yaml:"auto_refresh_minutes"`
}

// Timeout 单次外部调用超时
func (c InsightsConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// RefreshDelay 批量刷新时两次调用之间的间隔，不允许关闭
func (c InsightsConfig) RefreshDelay() time.Duration {
	if c.RefreshDelayMS <= 0 {
		return time.Second
	}
	return time.Duration(c.RefreshDelayMS) * time.Millisecond
}

// AutoRefreshInterval 自动刷新周期，0 表示关闭
func (c InsightsConfig) AutoRefreshInterval() time.Duration {
	if c.AutoRefreshMinutes <= 0 {
		return 0
	}
	return time.Duration(c.AutoRefreshMinutes) * time.Minute
}

// AdminConfig 初始管理员账号
type AdminConfig struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
}

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Defaults 返回未配置时使用的默认值
func Defaults() Config {
	return Config{
		Server: ServerConfig{Port: ":5000"},
		DB: DBConfig{
			Host:        "localhost",
			Port:        5432,
			User:        "postgres",
			Name:        "instapulse",
			MaxConns:    10,
			MinConns:    2,
			SlowQueryMS: 100,
		},
		JWT: JWTConfig{TTLHours: 24},
		Insights: InsightsConfig{
			Mode:           "simulated",
			TimeoutMS:      5000,
			RefreshDelayMS: 1000,
		},
		Admin: AdminConfig{
			Email:     "admin@company.com",
			Password:  "admin123",
			FirstName: "Admin",
			LastName:  "User",
		},
		OTel: OTelConfig{ServiceName: "instapulse"},
	}
}

// OverrideFromEnv 用环境变量覆盖全部配置段
func OverrideFromEnv(cfg *Config) {
	OverrideDBFromEnv(&cfg.DB)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideJWTFromEnv(&cfg.JWT)
	OverrideServerFromEnv(&cfg.Server)
	OverrideInsightsFromEnv(&cfg.Insights)
	OverrideAdminFromEnv(&cfg.Admin)
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideJWTFromEnv 从环境变量覆盖JWT配置
func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideInsightsFromEnv 从环境变量覆盖指标源配置
func OverrideInsightsFromEnv(cfg *InsightsConfig) {
	if mode := os.Getenv("INSIGHTS_MODE"); mode != "" {
		cfg.Mode = mode
	}
	if baseURL := os.Getenv("INSIGHTS_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if token := os.Getenv("INSIGHTS_ACCESS_TOKEN"); token != "" {
		cfg.AccessToken = token
	}
	if delay := os.Getenv("INSIGHTS_REFRESH_DELAY_MS"); delay != "" {
		if d, err := strconv.Atoi(delay); err == nil {
			cfg.RefreshDelayMS = d
		}
	}
}

// OverrideAdminFromEnv 从环境变量覆盖初始管理员
func OverrideAdminFromEnv(cfg *AdminConfig) {
	if email := os.Getenv("ADMIN_EMAIL"); email != "" {
		cfg.Email = email
	}
	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		cfg.Password = password
	}
}
