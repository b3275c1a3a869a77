package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ndax_bridge/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when no -config flag is given.
	DefaultConfigPath = "configs/config.yaml"

	defaultShutdownGraceSec = 10
	defaultTickerInterval   = 60
	defaultBroadcastPort    = 8765
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name             string          `yaml:"name"`
		Live             bool            `yaml:"live"`
		TradingFee       decimal.Decimal `yaml:"trading_fee"`
		FiatID           int64           `yaml:"fiat_id"`
		InstrumentID     int64           `yaml:"instrument_id"`
		ShutdownGraceSec int             `yaml:"shutdown_grace_sec"`
		QueueCapacity    int             `yaml:"queue_capacity"`
	} `yaml:"app"`

	NDAX struct {
		WSURI             string `yaml:"ws_uri"`
		APIKey            string `yaml:"api_key"`
		Secret            string `yaml:"secret"`
		UserID            int64  `yaml:"user_id"`
		AccountID         int64  `yaml:"account_id"`
		OMSID             int64  `yaml:"oms_id"`
		InstrumentsFile   string `yaml:"instruments_file"`
		SubscribeTicker   bool   `yaml:"subscribe_ticker"`
		SubscribeLevel1   bool   `yaml:"subscribe_level1"`
		TickerIntervalSec int    `yaml:"ticker_interval_sec"`
	} `yaml:"ndax"`

	Broadcast struct {
		Port        int     `yaml:"port"`
		Instruments []int64 `yaml:"instruments"`
	} `yaml:"broadcast"`

	Database struct {
		Driver     string `yaml:"driver"` // "mysql" or "sqlite"
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		User       string `yaml:"user"`
		Password   string `yaml:"password"`
		Name       string `yaml:"name"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	Admin struct {
		Addr string `yaml:"addr"`
	} `yaml:"admin"`

	Strategy struct {
		ShortPeriod int             `yaml:"short_period"`
		LongPeriod  int             `yaml:"long_period"`
		OrderQty    decimal.Decimal `yaml:"order_qty"`
	} `yaml:"strategy"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrConfigNotFound)
		}
		return nil, err
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}

	// 보안 우선: 비밀 값은 환경 변수로 덮어쓴다
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ParseConfig decodes YAML and fills defaults. It does not validate.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.ShutdownGraceSec <= 0 {
		c.App.ShutdownGraceSec = defaultShutdownGraceSec
	}
	if c.App.QueueCapacity <= 0 {
		c.App.QueueCapacity = 5
	}
	if c.NDAX.TickerIntervalSec <= 0 {
		c.NDAX.TickerIntervalSec = defaultTickerInterval
	}
	if c.Broadcast.Port == 0 {
		c.Broadcast.Port = defaultBroadcastPort
	}
	if len(c.Broadcast.Instruments) == 0 {
		c.Broadcast.Instruments = []int64{3}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.NDAX.WSURI, "ws://") && !strings.HasPrefix(c.NDAX.WSURI, "wss://") {
		return &domain.ConfigError{Field: "ndax.ws_uri", Err: fmt.Errorf("must be a ws:// or wss:// URI, got %q", c.NDAX.WSURI)}
	}
	if c.NDAX.APIKey == "" {
		return &domain.ConfigError{Field: "ndax.api_key", Err: fmt.Errorf("required")}
	}
	if c.NDAX.Secret == "" {
		return &domain.ConfigError{Field: "ndax.secret", Err: fmt.Errorf("required")}
	}
	if c.NDAX.UserID <= 0 {
		return &domain.ConfigError{Field: "ndax.user_id", Err: fmt.Errorf("must be positive")}
	}
	if c.NDAX.InstrumentsFile == "" {
		return &domain.ConfigError{Field: "ndax.instruments_file", Err: fmt.Errorf("required")}
	}
	if c.App.TradingFee.IsNegative() || c.App.TradingFee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return &domain.ConfigError{Field: "app.trading_fee", Err: fmt.Errorf("must be in [0, 1), got %s", c.App.TradingFee)}
	}
	if c.Broadcast.Port <= 0 || c.Broadcast.Port > 65535 {
		return &domain.ConfigError{Field: "broadcast.port", Err: fmt.Errorf("out of range: %d", c.Broadcast.Port)}
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return &domain.ConfigError{Field: "database.sqlite_path", Err: fmt.Errorf("required for sqlite")}
		}
	case "mysql":
		if c.Database.Host == "" || c.Database.Name == "" {
			return &domain.ConfigError{Field: "database.host", Err: fmt.Errorf("host and name required for mysql")}
		}
	default:
		return &domain.ConfigError{Field: "database.driver", Err: fmt.Errorf("unsupported driver %q", c.Database.Driver)}
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return &domain.ConfigError{Field: "kafka.topic", Err: fmt.Errorf("required when brokers are set")}
	}
	if c.Strategy.ShortPeriod > 0 && c.Strategy.ShortPeriod >= c.Strategy.LongPeriod {
		return &domain.ConfigError{Field: "strategy.short_period", Err: fmt.Errorf("must be less than long_period")}
	}

	return nil
}

// ShutdownGrace is how long a cancelled run waits for the logout cascade.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.App.ShutdownGraceSec) * time.Second
}

// Credential returns the exchange credentials.
func (c *Config) Credential() domain.Credential {
	return domain.Credential{
		APIKey:    c.NDAX.APIKey,
		Secret:    c.NDAX.Secret,
		UserID:    c.NDAX.UserID,
		AccountID: c.NDAX.AccountID,
		OMSID:     c.NDAX.OMSID,
	}
}

// BroadcastFilter returns the instrument ids re-broadcast to subscribers.
func (c *Config) BroadcastFilter() map[int64]struct{} {
	set := make(map[int64]struct{}, len(c.Broadcast.Instruments))
	for _, id := range c.Broadcast.Instruments {
		set[id] = struct{}{}
	}
	return set
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("NDAX_WS_URI"); v != "" {
		cfg.NDAX.WSURI = v
	}
	if v := os.Getenv("NDAX_API_KEY"); v != "" {
		cfg.NDAX.APIKey = v
	}
	if v := os.Getenv("NDAX_SECRET"); v != "" {
		cfg.NDAX.Secret = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}

	ints := []struct {
		env string
		dst *int64
	}{
		{"NDAX_USER_ID", &cfg.NDAX.UserID},
		{"NDAX_ACCOUNT_ID", &cfg.NDAX.AccountID},
		{"NDAX_OMS_ID", &cfg.NDAX.OMSID},
	}
	for _, o := range ints {
		v := os.Getenv(o.env)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &domain.ConfigError{Field: o.env, Err: err}
		}
		*o.dst = n
	}

	if v := os.Getenv("DB_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &domain.ConfigError{Field: "DB_PORT", Err: err}
		}
		cfg.Database.Port = n
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &domain.ConfigError{Field: "SERVER_PORT", Err: err}
		}
		cfg.Broadcast.Port = n
	}
	if v := os.Getenv("NDAX_LIVE"); v != "" {
		live, err := strconv.ParseBool(v)
		if err != nil {
			return &domain.ConfigError{Field: "NDAX_LIVE", Err: err}
		}
		cfg.App.Live = live
	}
	return nil
}

// LoadInstrumentTable reads a JSON object of instrument id to symbol, e.g. {"3":"BTCUSD"}.
func LoadInstrumentTable(path string) (domain.InstrumentTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &domain.ConfigError{Field: "ndax.instruments_file", Err: err}
	}

	table := make(domain.InstrumentTable, len(raw))
	for k, sym := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, &domain.ConfigError{Field: "ndax.instruments_file", Err: fmt.Errorf("instrument id %q: %w", k, err)}
		}
		table[id] = sym
	}
	return table, nil
}
