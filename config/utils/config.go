// Package config loads environment variables & the config.yaml file into
// typed config structs for both services.
package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type (
	// AppConfig aggregates every section both binaries read.
	AppConfig struct {
		App          *App               `mapstructure:"app"`
		Logger       *Logger            `mapstructure:"logger"`
		Redis        *Redis             `mapstructure:"redis"`
		DB           *DB                `mapstructure:"db"`
		AMQP         *AMQP              `mapstructure:"amqp"`
		Docker       *Docker            `mapstructure:"docker"`
		Orchestrator *Orchestrator      `mapstructure:"orchestrator"`
		Resources    *Resources         `mapstructure:"resources"`
		Agents       []Agent            `mapstructure:"agents"`
		Strategies   map[string][]Phase `mapstructure:"strategies"`
		Priorities   map[string]int     `mapstructure:"priorities"`
	}

	// App identifies the running service.
	App struct {
		Name  string `mapstructure:"name"`
		Env   string `mapstructure:"env"`
		Owner string `mapstructure:"owner"`
	}

	// Redis holds the shared state store connection settings.
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	}

	// DB holds the task archive database settings.
	DB struct {
		Connection string `mapstructure:"connection"`
		Host       string `mapstructure:"host"`
		Port       string `mapstructure:"port"`
		User       string `mapstructure:"user"`
		Password   string `mapstructure:"password"`
		Name       string `mapstructure:"name"`
	}

	// AMQP holds the task intake queue settings. Disabled when Host is empty.
	AMQP struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		VHost    string `mapstructure:"vhost"`
	}

	// Docker holds container runtime placement settings.
	Docker struct {
		Network string   `mapstructure:"network"`
		Binds   []string `mapstructure:"binds"`
	}

	// Orchestrator tunes task execution and its HTTP listener.
	Orchestrator struct {
		Addr                string `mapstructure:"addr"`
		MaxParallelAgents   int    `mapstructure:"maxParallelAgents"`
		PollIntervalSeconds int    `mapstructure:"pollIntervalSeconds"`
		ResourceManagerURL  string `mapstructure:"resourceManagerUrl"`
	}

	// Resources holds the global compute budget and sampling settings.
	Resources struct {
		Addr                 string   `mapstructure:"addr"`
		MaxTotalMemory       string   `mapstructure:"maxTotalMemory"` // K/M/G suffixed
		MaxTotalCPU          int      `mapstructure:"maxTotalCpu"`    // cores
		CheckIntervalSeconds int      `mapstructure:"checkIntervalSeconds"`
		ManagedPrefixes      []string `mapstructure:"managedPrefixes"`
	}

	// Agent mirrors one agent descriptor in config.yaml.
	Agent struct {
		Name         string            `mapstructure:"name"`
		Image        string            `mapstructure:"image"`
		Role         string            `mapstructure:"role"`
		Environment  map[string]string `mapstructure:"environment"`
		Memory       string            `mapstructure:"memory"`
		CPUs         float64           `mapstructure:"cpus"`
		Dependencies []string          `mapstructure:"dependencies"`
	}

	// Phase mirrors one strategy phase in config.yaml.
	Phase struct {
		Name     string   `mapstructure:"name"`
		Agents   []string `mapstructure:"agents"`
		Parallel bool     `mapstructure:"parallel"`
	}

	// Logger contains all the environment variables for the logger.
	Logger struct {
		Level             string                `mapstructure:"level"`
		Development       bool                  `mapstructure:"development"`
		DisableStacktrace bool                  `mapstructure:"disableStacktrace"`
		Encoding          string                `mapstructure:"encoding"`
		EncoderConfig     zapcore.EncoderConfig `mapstructure:"encoderConfig"`
	}
)

// PollInterval returns the container poll cadence with a 1s default.
func (o *Orchestrator) PollInterval() time.Duration {
	if o == nil || o.PollIntervalSeconds <= 0 {
		return time.Second
	}
	return time.Duration(o.PollIntervalSeconds) * time.Second
}

// CheckInterval returns the sampling cadence with a 30s default.
func (r *Resources) CheckInterval() time.Duration {
	if r == nil || r.CheckIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.CheckIntervalSeconds) * time.Second
}

// addZapEncoderConfig fills encoder config with zapcore types
func addZapEncoderConfig(cfg *zapcore.EncoderConfig) {
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.SecondsDurationEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.EncodeName = func(s string, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString("[" + s + "]")
	}
}

// New creates a new AppConfig instance from config.yaml and the environment.
func New() *AppConfig {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/secrets/")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("env")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("error reading config file: %v", err)
		}
	}

	// Environment bindings recognized by the deployment
	viper.BindEnv("app.name", "APP_NAME")
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("db.host", "PG_HOST")
	viper.BindEnv("db.port", "PG_PORT")
	viper.BindEnv("db.user", "PG_USER")
	viper.BindEnv("db.password", "PG_PASS")
	viper.BindEnv("db.name", "PG_DB")
	viper.BindEnv("amqp.host", "MQ_HOST")
	viper.BindEnv("amqp.port", "MQ_PORT")
	viper.BindEnv("amqp.user", "MQ_USER")
	viper.BindEnv("amqp.password", "MQ_PASS")
	viper.BindEnv("resources.maxTotalMemory", "MAX_TOTAL_MEMORY")
	viper.BindEnv("resources.maxTotalCpu", "MAX_TOTAL_CPU")
	viper.BindEnv("resources.checkIntervalSeconds", "CHECK_INTERVAL")
	viper.BindEnv("orchestrator.maxParallelAgents", "MAX_PARALLEL_AGENTS")
	viper.BindEnv("orchestrator.resourceManagerUrl", "RESOURCE_MANAGER_URL")

	var config *AppConfig
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("unable to decode into struct: %v", err)
	}
	if config.Logger == nil {
		config.Logger = &Logger{Level: "info", Encoding: "json"}
	}
	addZapEncoderConfig(&config.Logger.EncoderConfig)

	return config
}

func setDefaults() {
	viper.SetDefault("app.name", "agent-orchestrator")
	viper.SetDefault("app.env", "development")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "json")
	viper.SetDefault("redis.addr", "redis:6379")
	viper.SetDefault("db.connection", "postgres")
	viper.SetDefault("db.host", "postgres")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("amqp.port", "5672")
	viper.SetDefault("amqp.vhost", "/")
	viper.SetDefault("docker.network", "agent-network")
	viper.SetDefault("docker.binds", []string{"/workspace:/workspace:rw", "/artifacts:/artifacts:rw"})
	viper.SetDefault("orchestrator.addr", ":8000")
	viper.SetDefault("orchestrator.maxParallelAgents", 4)
	viper.SetDefault("orchestrator.pollIntervalSeconds", 1)
	viper.SetDefault("resources.addr", ":8001")
	viper.SetDefault("resources.maxTotalMemory", "16G")
	viper.SetDefault("resources.maxTotalCpu", 8)
	viper.SetDefault("resources.checkIntervalSeconds", 30)
}
