package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MQTTConfig MQTT 连接配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// DatabaseConfig 归档数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Thresholds 静态阈值（即时报警）
type Thresholds struct {
	BPMHigh float64
	BPMLow  float64
	SpO2Low float64
}

// Config 服务配置（启动后只读）
type Config struct {
	MQTT     MQTTConfig
	Database DatabaseConfig
	Redis    RedisConfig

	// 模型运行器配置（endpoint 为空表示该模型未部署，对应检测器跳过）
	Classifier struct {
		BPMEndpoint     string
		SpO2Endpoint    string
		KeywordEndpoint string
		TimeoutSec      int
	}

	Thresholds Thresholds

	// 检测配置
	Detection struct {
		AnomalyCutoff float64  // 异常分数阈值
		KeywordCutoff float64  // 关键词置信度阈值
		Keywords      []string // 触发报警的关键词
	}

	// 每设备历史容量
	History struct {
		VitalsCapacity int
		AlertCapacity  int
		ImageCapacity  int
	}

	// 不活跃设备清理
	Cleanup struct {
		StalenessWindowSec int
		SweepIntervalSec   int
	}

	// 任务队列
	Queue struct {
		Size int
		// WorkerCount 默认 1，与单消费线程语义一致；调大后同一设备的
		// 任务可能被并发处理，不再保证设备内顺序
		WorkerCount int
	}

	HTTP struct {
		Port     int
		ImageDir string
		AudioDir string
	}

	// Redis 缓存键配置
	Cache struct {
		RealtimeKeyPrefix string
		RealtimeSuffix    string
		AlertKeyPrefix    string
		AlertSuffix       string
		TTLSec            int
	}

	// MQTT 主题
	Topics struct {
		Vitals            string
		Parameters        string
		Alerts            string
		ImageMetadata     string
		DetectedAnomalies string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "vitals-hub")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "vitalshub")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Classifier.BPMEndpoint = getEnv("MODEL_BPM_ENDPOINT", "")
	cfg.Classifier.SpO2Endpoint = getEnv("MODEL_SPO2_ENDPOINT", "")
	cfg.Classifier.KeywordEndpoint = getEnv("MODEL_KEYWORD_ENDPOINT", "")
	cfg.Classifier.TimeoutSec = getEnvInt("MODEL_TIMEOUT_SEC", 5)

	cfg.Thresholds.BPMHigh = getEnvFloat("THRESHOLD_BPM_HIGH", 120)
	cfg.Thresholds.BPMLow = getEnvFloat("THRESHOLD_BPM_LOW", 40)
	cfg.Thresholds.SpO2Low = getEnvFloat("THRESHOLD_SPO2_LOW", 90)

	cfg.Detection.AnomalyCutoff = getEnvFloat("ANOMALY_CUTOFF", 0.5)
	cfg.Detection.KeywordCutoff = getEnvFloat("KEYWORD_CUTOFF", 0.7)
	cfg.Detection.Keywords = getEnvList("ALERT_KEYWORDS", []string{"help", "ouch"})

	cfg.History.VitalsCapacity = getEnvInt("HISTORY_VITALS_CAPACITY", 100)
	cfg.History.AlertCapacity = getEnvInt("HISTORY_ALERT_CAPACITY", 20)
	cfg.History.ImageCapacity = getEnvInt("HISTORY_IMAGE_CAPACITY", 10)

	cfg.Cleanup.StalenessWindowSec = getEnvInt("STALENESS_WINDOW_SEC", 3600)
	cfg.Cleanup.SweepIntervalSec = getEnvInt("SWEEP_INTERVAL_SEC", 900)

	cfg.Queue.Size = getEnvInt("QUEUE_SIZE", 1024)
	cfg.Queue.WorkerCount = getEnvInt("WORKER_COUNT", 1)

	cfg.HTTP.Port = getEnvInt("HTTP_PORT", 5000)
	cfg.HTTP.ImageDir = getEnv("IMAGE_SAVE_PATH", "images")
	cfg.HTTP.AudioDir = getEnv("AUDIO_SAVE_PATH", "audio")

	cfg.Cache.RealtimeKeyPrefix = getEnv("CACHE_REALTIME_PREFIX", "vitals-hub:device:")
	cfg.Cache.RealtimeSuffix = ":realtime"
	cfg.Cache.AlertKeyPrefix = getEnv("CACHE_ALERT_PREFIX", "vitals-hub:device:")
	cfg.Cache.AlertSuffix = ":alerts"
	cfg.Cache.TTLSec = getEnvInt("CACHE_TTL_SEC", 30)

	cfg.Topics.Vitals = getEnv("TOPIC_VITALS", "health/vitals/#")
	cfg.Topics.Parameters = getEnv("TOPIC_PARAMETERS", "health/parameters/#")
	cfg.Topics.Alerts = getEnv("TOPIC_ALERTS", "health/alerts/#")
	cfg.Topics.ImageMetadata = getEnv("TOPIC_IMAGE_METADATA", "health/image_metadata/#")
	cfg.Topics.DetectedAnomalies = getEnv("TOPIC_DETECTED_ANOMALIES", "health/detected_anomalies")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
