// Package config 提供配置管理
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Solver   SolverConfig   `yaml:"solver"`
	Policy   PolicyConfig   `yaml:"policy"`
	API      APIConfig      `yaml:"api"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name      string `yaml:"name" env:"APP_NAME"`
	Env       string `yaml:"env" env:"APP_ENV"`
	Port      int    `yaml:"port" env:"APP_PORT"`
	LogLevel  string `yaml:"log_level" env:"APP_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"APP_LOG_FORMAT"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	URL             string        `yaml:"url" env:"DATABASE_URL"`
	Host            string        `yaml:"host" env:"DB_HOST"`
	Port            int           `yaml:"port" env:"DB_PORT"`
	Name            string        `yaml:"name" env:"DB_NAME"`
	User            string        `yaml:"user" env:"DB_USER"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	SSLMode         string        `yaml:"ssl_mode" env:"DB_SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`

	// SlowQueryThreshold 超过该耗时的SQL与事务记录告警
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" env:"DB_SLOW_QUERY_THRESHOLD"`
}

// DSN 返回数据库连接字符串，DATABASE_URL 优先
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// SolverConfig 求解引擎配置
type SolverConfig struct {
	URL            string `yaml:"url" env:"SOLVER_URL"`
	Debug          bool   `yaml:"debug" env:"DEBUG_SOLVER"`
	DebugDir       string `yaml:"debug_dir" env:"SOLVER_DEBUG_DIR"`
	FullBudgetMs   int    `yaml:"full_budget_ms" env:"SOLVER_FULL_BUDGET_MS"`
	RepairBudgetMs int    `yaml:"repair_budget_ms" env:"SOLVER_REPAIR_BUDGET_MS"`
	StubEngineAddr string `yaml:"stub_engine_addr" env:"STUB_ENGINE_ADDR"`
}

// PolicyConfig 策略解析配置
type PolicyConfig struct {
	HierarchyEnabled bool `yaml:"hierarchy_enabled" env:"POLICY_HIERARCHY_ENABLED"`
}

// APIConfig API配置
type APIConfig struct {
	RateLimit   int      `yaml:"rate_limit" env:"API_RATE_LIMIT"`
	CORSOrigins []string `yaml:"cors_origins" env:"API_CORS_ORIGINS" envSeparator:","`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `yaml:"path" env:"METRICS_PATH"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:      "rota",
			Env:       "development",
			Port:      7012,
			LogLevel:  "info",
			LogFormat: "console",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "rota",
			User:            "rota",
			Password:        "rota",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,

			SlowQueryThreshold: 100 * time.Millisecond,
		},
		Solver: SolverConfig{
			URL:            "http://localhost:8090",
			DebugDir:       "debug",
			FullBudgetMs:   300000,
			RepairBudgetMs: 60000,
			StubEngineAddr: ":8090",
		},
		API: APIConfig{
			RateLimit:   100,
			CORSOrigins: []string{"*"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load 加载配置：默认值 -> YAML 文件 -> .env -> 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Solver.URL == "" {
		return fmt.Errorf("SOLVER_URL 不能为空")
	}
	if c.Solver.FullBudgetMs <= 0 || c.Solver.RepairBudgetMs <= 0 {
		return fmt.Errorf("求解时间预算必须为正数")
	}
	if c.App.Port <= 0 {
		return fmt.Errorf("APP_PORT 无效: %d", c.App.Port)
	}
	return nil
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
