package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "RECONLEDGER"

// ConfigLoader 配置加载器
type ConfigLoader struct {
	configPath string // 配置目录
	configFile string // 显式指定的配置文件，优先于目录搜索
	envPrefix  string
	viper      *viper.Viper
}

// NewConfigLoader 创建配置加载器
func NewConfigLoader(configPath, envPrefix string) *ConfigLoader {
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}

	return &ConfigLoader{
		configPath: configPath,
		envPrefix:  envPrefix,
		viper:      viper.New(),
	}
}

// NewFileConfigLoader 使用指定配置文件创建加载器
func NewFileConfigLoader(configFile string) *ConfigLoader {
	cl := NewConfigLoader("", DefaultEnvPrefix)
	cl.configFile = configFile
	return cl
}

// LoadConfig 加载配置
// 优先级: 环境变量 > 配置文件 > 默认值；配置文件不存在时只使用默认值和环境变量
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	// .env 文件中的变量先注入进程环境
	if err := NewEnvLoader().Load(); err != nil {
		return nil, err
	}

	cl.viper.SetConfigType("yaml")

	// 设置环境变量前缀
	cl.viper.SetEnvPrefix(cl.envPrefix)
	cl.viper.AutomaticEnv()
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	cl.setDefaults()

	// 加载配置文件
	if err := cl.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	var config Config
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cl.validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadConfigFile 加载配置文件
func (cl *ConfigLoader) loadConfigFile() error {
	if cl.configFile != "" {
		cl.viper.SetConfigFile(cl.configFile)
		return cl.viper.ReadInConfig()
	}

	if cl.configPath == "" {
		if envPath := os.Getenv(cl.envPrefix + "_CONFIG_PATH"); envPath != "" {
			cl.configPath = envPath
		} else {
			cl.configPath = "./configs"
		}
	}

	cl.viper.AddConfigPath(cl.configPath)
	cl.viper.AddConfigPath(".")

	// 先尝试环境特定的配置文件 config.<env>.yaml
	cl.viper.SetConfigName(fmt.Sprintf("config.%s", cl.getEnvironment()))
	err := cl.viper.ReadInConfig()
	if err == nil {
		return nil
	}

	cl.viper.SetConfigName("config")
	err = cl.viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		// 没有配置文件也能运行
		return nil
	}
	return err
}

// getEnvironment 获取运行环境
func (cl *ConfigLoader) getEnvironment() string {
	env := os.Getenv(cl.envPrefix + "_ENV")
	if env == "" {
		env = os.Getenv("GO_ENV")
	}
	if env == "" {
		env = "development"
	}
	return env
}

// setDefaults 设置默认值
func (cl *ConfigLoader) setDefaults() {
	for key, value := range defaultValues() {
		cl.viper.SetDefault(key, value)
	}
}

// defaultValues 默认配置表
func defaultValues() map[string]interface{} {
	return map[string]interface{}{
		// App
		"app.name":        "reconledger",
		"app.environment": "development",
		"app.debug":       false,

		// 日志
		"log.level":       "info",
		"log.format":      "text",
		"log.output":      "stdout",
		"log.file_path":   "./logs/reconledger.log",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     28,
		"log.compress":    true,
		"log.caller":      false,

		// 扫描
		"scan.concurrency":      100,
		"scan.connect_timeout":  "1s",
		"scan.banner_timeout":   "2s",
		"scan.grace_period":     "3s",
		"scan.strict_port_spec": false,
		"scan.active_probe":     false,
		"scan.adaptive":         false,

		// 漏洞通告
		"advisory.enabled":     false,
		"advisory.base_url":    "https://cve.circl.lu/api",
		"advisory.timeout":     "5s",
		"advisory.concurrency": 4,

		// 证书
		"cert.timeout":      "5s",
		"cert.default_port": 443,

		// 账本
		"ledger.backend":        "file",
		"ledger.file_path":      "./data/ledger.jsonl",
		"ledger.verify_on_load": true,
		"ledger.redis.addr":     "127.0.0.1:6379",
		"ledger.redis.db":       0,
		"ledger.redis.key":      "reconledger:ledger",
		"ledger.sql.driver":     "sqlite",
		"ledger.sql.dsn":        "./data/ledger.db",

		// 代理
		"proxy.url": "",

		// API
		"server.host":             "127.0.0.1",
		"server.port":             8088,
		"server.mode":             "release",
		"server.api_key":          "",
		"server.rate_limit":       60,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "60s",
		"server.shutdown_timeout": "10s",
		"server.task_ttl":         "1h",
		"server.max_tasks":        1000,

		"fingerprint.rules_file": "",
		"profile.dir":            "./profiles",
	}
}

// validateConfig 验证配置
func (cl *ConfigLoader) validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Scan.Concurrency <= 0 {
		return fmt.Errorf("scan concurrency must be positive: %d", config.Scan.Concurrency)
	}
	if config.Cert.DefaultPort <= 0 || config.Cert.DefaultPort > 65535 {
		return fmt.Errorf("invalid cert default port: %d", config.Cert.DefaultPort)
	}

	switch strings.ToLower(config.Ledger.Backend) {
	case "memory", "file", "redis", "sql":
	default:
		return fmt.Errorf("unsupported ledger backend: %s", config.Ledger.Backend)
	}
	if strings.EqualFold(config.Ledger.Backend, "file") && config.Ledger.FilePath == "" {
		return fmt.Errorf("ledger file path is required for file backend")
	}

	return nil
}

// GetConfigPath 获取实际使用的配置文件路径
func (cl *ConfigLoader) GetConfigPath() string {
	return cl.viper.ConfigFileUsed()
}

// Viper 返回底层 viper 实例，CLI 用于绑定命令行参数
func (cl *ConfigLoader) Viper() *viper.Viper {
	return cl.viper
}

// LoadConfigFromFile 从指定文件加载配置
func LoadConfigFromFile(configFile string) (*Config, error) {
	return NewFileConfigLoader(configFile).LoadConfig()
}

// Default 返回仅由默认值组成的配置，不读取文件与环境变量
func Default() *Config {
	v := viper.New()
	for key, value := range defaultValues() {
		v.SetDefault(key, value)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// 默认值本身必然可解析
		panic(err)
	}
	return &cfg
}

// Load 指定文件时只读该文件，否则按目录与环境搜索
func Load(configFile string) (*Config, error) {
	if configFile != "" {
		return LoadConfigFromFile(configFile)
	}
	return NewConfigLoader("", DefaultEnvPrefix).LoadConfig()
}
