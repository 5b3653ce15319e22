package models

// MConfig Structure
type MConfig struct {
	Name        string         `yaml:"name"`
	Host        string         `yaml:"host"`
	Port        int            `yaml:"port"`
	LogLevel    string         `yaml:"log_level"`
	FrontendURL string         `yaml:"frontend_url"`
	Storage     MStorageConfig `yaml:"storage"`
	Broker      MBrokerConfig  `yaml:"broker"`
	Engine      MEngineConfig  `yaml:"engine"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MBrokerConfig struct {
	APIBaseURL      string   `yaml:"api_base_url"`
	LoginURL        string   `yaml:"login_url"`
	FeedURL         string   `yaml:"feed_url"`
	RequestTimeout  int      `yaml:"timeout"`
	MaxRetries      int      `yaml:"retries"`
	RateLimitPerSec int      `yaml:"rate_limit_per_sec"`
	Exchanges       []string `yaml:"exchanges"`
}

type MEngineConfig struct {
	BroadcastIntervalSeconds int `yaml:"broadcast_interval_seconds"`
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`
	RangeTTLHours            int `yaml:"range_ttl_hours"`
	FetchTimeoutMs           int `yaml:"fetch_timeout_ms"`
}
