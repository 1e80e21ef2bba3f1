package config

import (
	"database/sql"
	"errors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"io/fs"
	"path/filepath"
	"strings"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	StoreDriver string        `yaml:"store_driver"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	Redis       Redis         `yaml:"redis"`
	MQTT        MQTT          `yaml:"mqtt"`
	Kafka       Kafka         `yaml:"kafka"`
	Gemini      Gemini        `yaml:"gemini"`
	Pipeline    Pipeline      `yaml:"pipeline"`
	UseCases    UseCases      `yaml:"use_cases"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

// Enabled reports whether segmentation jobs travel through RabbitMQ rather than an in-process goroutine.
func (r *RabbitMQ) Enabled() bool {
	return r != nil && r.Host != ""
}

type Redis struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type Kafka struct {
	BootstrapServers string `yaml:"bootstrap_servers"`
	Topic            string `yaml:"topic"`
}

type Gemini struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"`
}

type Pipeline struct {
	ChunkDurationSeconds int    `yaml:"chunk_duration_seconds"`
	QueueSize            int    `yaml:"queue_size"`
	MailboxSize          int    `yaml:"mailbox_size"`
	DataDir              string `yaml:"data_dir"`
	UseCasesFile         string `yaml:"use_cases_file"`
}

func (p Pipeline) UploadDir() string {
	return filepath.Join(p.DataDir, "uploads")
}

func (p Pipeline) ChunksDir() string {
	return filepath.Join(p.DataDir, "chunks")
}

func setDefaults() {
	viper.SetDefault("app.environment", "develop")
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.workers", 1)
	viper.SetDefault("store.driver", StoreDriverPostgres)
	viper.SetDefault("rabbitmq_port", 5672)
	viper.SetDefault("rabbitmq_kind", "direct")
	viper.SetDefault("minio.bucket", "videos")
	viper.SetDefault("mqtt.client_id", "video-sentinel")
	viper.SetDefault("mqtt.topic", "sentinel/alerts")
	viper.SetDefault("kafka.topic", "sentinel-alerts")
	viper.SetDefault("gemini.model", "gemini-1.5-flash")
	viper.SetDefault("gemini.api_version", "v1beta")
	viper.SetDefault("pipeline.chunk_duration_seconds", 6)
	viper.SetDefault("pipeline.queue_size", 500)
	viper.SetDefault("pipeline.mailbox_size", 100)
	viper.SetDefault("pipeline.data_dir", "data")
}

func Load(path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	setDefaults()
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		StoreDriver: viper.GetString("store.driver"),
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Queue: &RabbitMQ{
			Host: viper.GetString("rabbitmq_host"),
			Port: viper.GetInt("rabbitmq_port"),
			User: viper.GetString("rabbitmq_user"),
			Pass: viper.GetString("rabbitmq_pass"),
			Kind: viper.GetString("rabbitmq_kind"),
		},
		Redis: Redis{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		MQTT: MQTT{
			Broker:   viper.GetString("mqtt.broker"),
			ClientID: viper.GetString("mqtt.client_id"),
			Topic:    viper.GetString("mqtt.topic"),
		},
		Kafka: Kafka{
			BootstrapServers: viper.GetString("kafka.bootstrap_servers"),
			Topic:            viper.GetString("kafka.topic"),
		},
		Gemini: Gemini{
			APIKey:     viper.GetString("gemini.api_key"),
			Model:      viper.GetString("gemini.model"),
			BaseURL:    viper.GetString("gemini.base_url"),
			APIVersion: viper.GetString("gemini.api_version"),
		},
		Pipeline: Pipeline{
			ChunkDurationSeconds: viper.GetInt("pipeline.chunk_duration_seconds"),
			QueueSize:            viper.GetInt("pipeline.queue_size"),
			MailboxSize:          viper.GetInt("pipeline.mailbox_size"),
			DataDir:              viper.GetString("pipeline.data_dir"),
			UseCasesFile:         viper.GetString("pipeline.use_cases_file"),
		},
	}

	cfg.UseCases, err = LoadUseCases(cfg.Pipeline.UseCasesFile)
	if err != nil {
		return nil, err
	}

	if cfg.StoreDriver == StoreDriverPostgres {
		cfg.DB, err = sql.Open("postgres", viper.GetString("postgresql_host"))
		if err != nil {
			return nil, err
		}
	}

	if url := viper.GetString("minio.url"); url != "" {
		cfg.Storage, err = minio.New(url, &minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: false,
		})
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
