package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 汇总一个服务进程需要的全部配置。
// 来源优先级: 环境变量 > yaml 配置文件 > 默认值。
type Config struct {
	Service struct {
		Name string `yaml:"name"`
		Port int    `yaml:"port"`
	} `yaml:"service"`

	Infra struct {
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
	} `yaml:"infra"`

	Workflow struct {
		// 单次提交从接收到终态的总超时。
		ProcessingTimeout time.Duration `yaml:"processingTimeout"`
		// 单次远端调用的超时。
		RemoteCallTimeout time.Duration `yaml:"remoteCallTimeout"`
		// 发药阶段的并发上限。
		DispenseWorkers int `yaml:"dispenseWorkers"`
		// 重度急性营养不良时水肿程度必填的校验规则 (CEL 表达式)。
		EdemaRule string `yaml:"edemaRule"`
		// 扣减锁策略: local / redis / zookeeper。
		LockStrategy string `yaml:"lockStrategy"`
	} `yaml:"workflow"`
}

const defaultEdemaRule = `fact.weightForHeight != "Severe Acute Malnutrition" || fact.edemaSeverity != ""`

// Load 读取 yaml 配置并套用环境变量覆盖。path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Service.Name = "encounter-service"
	cfg.Service.Port = 8086
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.ServerAddrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/lingap?parseTime=true"
	cfg.Workflow.ProcessingTimeout = 30 * time.Second
	cfg.Workflow.RemoteCallTimeout = 5 * time.Second
	cfg.Workflow.DispenseWorkers = 4
	cfg.Workflow.EdemaRule = defaultEdemaRule
	cfg.Workflow.LockStrategy = "redis"

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Workflow.DispenseWorkers < 1 {
		cfg.Workflow.DispenseWorkers = 1
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Service.Name = getEnv("SERVICE_NAME", cfg.Service.Name)
	if port, err := strconv.Atoi(getEnv("SERVICE_PORT", "")); err == nil && port > 0 {
		cfg.Service.Port = port
	}
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	cfg.Infra.Mysql.DSN = getEnv("MYSQL_DSN", cfg.Infra.Mysql.DSN)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Infra.Kafka.Brokers = []string{brokers}
	}
	cfg.Workflow.LockStrategy = getEnv("LOCK_STRATEGY", cfg.Workflow.LockStrategy)
}

// getEnv 从环境变量读取配置，缺省时返回 fallback。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
