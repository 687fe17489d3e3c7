package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Poller frequencies accepted by the poller, as schedule expressions.
const (
	FrequencySixHours    = "rate(6 hours)"
	FrequencyTwelveHours = "rate(12 hours)"
	FrequencyDaily       = "rate(24 hours)"
)

// Store backends.
const (
	StoreDynamoDB = "dynamodb"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Regions               []string       `yaml:"regions"`
	Services              []string       `yaml:"services"`
	Threshold             float64        `yaml:"threshold"`
	PollerFrequency       string         `yaml:"poller_frequency"`
	ReportOKNotifications bool           `yaml:"report_ok_notifications"`
	EventBus              string         `yaml:"event_bus"`
	MaxConcurrency        int            `yaml:"max_concurrency"`
	RequestTimeout        time.Duration  `yaml:"request_timeout"`
	Store                 StoreConfig    `yaml:"store"`
	Notifications         NotifyConfig   `yaml:"notifications"`
	Report                ReportConfig   `yaml:"report"`
	TrustedAdvisor        AdvisorConfig  `yaml:"trusted_advisor"`
	UsageCheck            UsageConfig    `yaml:"usage_check"`
	Schedule              ScheduleConfig `yaml:"schedule"`
	Server                ServerConfig   `yaml:"server"`
	Cache                 CacheConfig    `yaml:"cache"`
	Log                   LogConfig      `yaml:"log"`
}

type StoreConfig struct {
	Backend         string        `yaml:"backend"`
	ServiceTable    string        `yaml:"service_table"`
	QuotaTable      string        `yaml:"quota_table"`
	ReportTable     string        `yaml:"report_table"`
	SQLitePath      string        `yaml:"sqlite_path"`
	QuotaRetention  time.Duration `yaml:"quota_retention"`
	ReportRetention time.Duration `yaml:"report_retention"`
}

type NotifyConfig struct {
	MutingParameter    string `yaml:"muting_parameter"`
	SlackHookParameter string `yaml:"slack_hook_parameter"`
	SNSTopicARN        string `yaml:"sns_topic_arn"`
	// Direct makes the poller hand events to the notifiers itself in
	// addition to the event bus.
	Direct bool `yaml:"direct"`
}

type ReportConfig struct {
	QueueURL    string `yaml:"queue_url"`
	MaxLoops    int    `yaml:"max_loops"`
	MaxMessages int    `yaml:"max_messages"`
}

type AdvisorConfig struct {
	Services []string `yaml:"services"`
}

type UsageConfig struct {
	QuotaCodes []string `yaml:"quota_codes"`
}

type ScheduleConfig struct {
	CatalogSync    time.Duration `yaml:"catalog_sync"`
	Report         time.Duration `yaml:"report"`
	AdvisorRefresh time.Duration `yaml:"advisor_refresh"`
	JobTimeout     time.Duration `yaml:"job_timeout"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type CacheConfig struct {
	TTLMinutes int `yaml:"ttl_minutes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default configuration
func Default() *Config {
	return &Config{
		Regions:         []string{"us-east-1"},
		Services:        []string{"monitoring", "dynamodb", "ec2", "ecr", "firehose"},
		Threshold:       80,
		PollerFrequency: FrequencyDaily,
		EventBus:        "QuotaMonitorSpokeBus",
		MaxConcurrency:  10,
		RequestTimeout:  30 * time.Second,
		Store: StoreConfig{
			Backend:         StoreDynamoDB,
			ServiceTable:    "QuotaMonitorServiceTable",
			QuotaTable:      "QuotaMonitorQuotaTable",
			ReportTable:     "QuotaMonitorReportTable",
			SQLitePath:      "quota-monitor.db",
			QuotaRetention:  7 * 24 * time.Hour,
			ReportRetention: 15 * 24 * time.Hour,
		},
		Notifications: NotifyConfig{
			MutingParameter:    "/QuotaMonitor/NotificationConfiguration",
			SlackHookParameter: "/QuotaMonitor/SlackHook",
		},
		Report: ReportConfig{
			MaxLoops:    10,
			MaxMessages: 10,
		},
		TrustedAdvisor: AdvisorConfig{
			Services: []string{"AutoScaling", "CloudFormation", "DynamoDB", "EBS", "EC2", "ELB", "IAM", "Kinesis", "RDS", "Route53", "SES", "VPC"},
		},
		Schedule: ScheduleConfig{
			CatalogSync:    24 * time.Hour,
			Report:         5 * time.Minute,
			AdvisorRefresh: 24 * time.Hour,
			JobTimeout:     15 * time.Minute,
		},
		Server: ServerConfig{
			Port: "8080",
		},
		Cache: CacheConfig{
			TTLMinutes: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load configuration from file, then apply QM_* environment overrides.
func Load(filename string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// A missing file leaves the defaults in place
	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", filename, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", filename, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Regions = parseStringSlice("QM_REGIONS", c.Regions)
	c.Services = parseStringSlice("QM_SERVICES", c.Services)
	c.Threshold = parseFloat("QM_THRESHOLD", c.Threshold)
	c.PollerFrequency = envOrDefault("QM_POLLER_FREQUENCY", c.PollerFrequency)
	c.ReportOKNotifications = parseBool("QM_REPORT_OK_NOTIFICATIONS", c.ReportOKNotifications)
	c.EventBus = envOrDefault("QM_EVENT_BUS", c.EventBus)
	c.RequestTimeout = parseDuration("QM_REQUEST_TIMEOUT", c.RequestTimeout)
	c.Store.Backend = envOrDefault("QM_STORE_BACKEND", c.Store.Backend)
	c.Store.QuotaTable = envOrDefault("QM_QUOTA_TABLE", c.Store.QuotaTable)
	c.Store.ServiceTable = envOrDefault("QM_SERVICE_TABLE", c.Store.ServiceTable)
	c.Store.ReportTable = envOrDefault("QM_REPORT_TABLE", c.Store.ReportTable)
	c.Store.SQLitePath = envOrDefault("QM_SQLITE_PATH", c.Store.SQLitePath)
	c.Report.QueueURL = envOrDefault("QM_REPORT_QUEUE_URL", c.Report.QueueURL)
	c.Notifications.SNSTopicARN = envOrDefault("QM_SNS_TOPIC_ARN", c.Notifications.SNSTopicARN)
	c.Log.Level = envOrDefault("QM_LOG_LEVEL", c.Log.Level)
	c.Server.Port = envOrDefault("PORT", c.Server.Port)
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if len(c.Services) == 0 {
		return errors.New("config: at least one service must be configured")
	}
	if len(c.Regions) == 0 {
		return errors.New("config: at least one region must be configured")
	}
	if c.Threshold <= 0 || c.Threshold >= 100 {
		return fmt.Errorf("config: threshold must be between 0 and 100 exclusive, got %v", c.Threshold)
	}
	if _, err := WindowHours(c.PollerFrequency); err != nil {
		return err
	}
	switch c.Store.Backend {
	case StoreDynamoDB, StoreSQLite:
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("config: max_concurrency must be positive, got %d", c.MaxConcurrency)
	}
	return nil
}

// WindowHours maps a poller frequency to the metric window it covers.
func WindowHours(frequency string) (int, error) {
	switch frequency {
	case FrequencySixHours:
		return 6, nil
	case FrequencyTwelveHours:
		return 12, nil
	case FrequencyDaily, "":
		return 24, nil
	default:
		return 0, fmt.Errorf("config: unsupported poller frequency %q", frequency)
	}
}

// PollWindow returns the poller window as a duration.
func (c *Config) PollWindow() time.Duration {
	h, err := WindowHours(c.PollerFrequency)
	if err != nil {
		h = 24
	}
	return time.Duration(h) * time.Hour
}

// GetCacheTTL returns the cache TTL as a duration
func (c *Config) GetCacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// GetPort returns the server port
func (c *Config) GetPort() string {
	return c.Server.Port
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to treating
// the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// the CloudFormation parameters use Yes/No
	switch strings.ToLower(v) {
	case "yes":
		return true
	case "no":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func parseStringSlice(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var result []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}
