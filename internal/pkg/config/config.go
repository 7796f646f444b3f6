// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是整个服务的配置根结构，从 yaml 文件加载。
// 地址类配置允许被环境变量覆盖，方便容器化部署。
type Config struct {
	App struct {
		Name string `yaml:"name"`
		Port int    `yaml:"port"`
	} `yaml:"app"`

	Storage string `yaml:"storage"` // mysql | memory

	Order struct {
		Mode string `yaml:"mode"` // sync | async
	} `yaml:"order"`

	Lock struct {
		Backend string        `yaml:"backend"` // redis | zookeeper | local
		Wait    time.Duration `yaml:"wait"`    // 获取锁的最长等待时间
		Lease   time.Duration `yaml:"lease"`   // 锁的最长持有时间
	} `yaml:"lock"`

	Infra struct {
		MySQL struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
			GroupID string   `yaml:"groupId"`
		} `yaml:"kafka"`
		Zookeeper struct {
			Addrs []string `yaml:"addrs"`
		} `yaml:"zookeeper"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			Enabled     bool   `yaml:"enabled"`
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`
}

var (
	current *Config
	mu      sync.RWMutex
)

// Load 从指定路径加载配置文件并设置为全局当前配置。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyEnvOverrides()

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// Current 返回全局当前配置。在 Load 之前调用会返回默认配置。
func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return defaultConfig()
	}
	return current
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "commerce-service"
	cfg.App.Port = 8080
	cfg.Storage = "mysql"
	cfg.Order.Mode = "async"
	cfg.Lock.Backend = "redis"
	cfg.Lock.Wait = 30 * time.Second
	cfg.Lock.Lease = 10 * time.Second
	cfg.Infra.MySQL.DSN = "root:root@tcp(localhost:3306)/mall?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.GroupID = "commerce-service"
	cfg.Infra.Zookeeper.Addrs = []string{"localhost:2181"}
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	return cfg
}

// applyEnvOverrides 允许用环境变量覆盖部署相关的地址配置。
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.Infra.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Infra.Kafka.Brokers = []string{v}
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		c.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		c.Infra.Nacos.ServerAddrs = v
	}
}
