package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for host and worker processes.
type Config struct {
	Host      HostConfig      `yaml:"host"`
	Compute   ComputeConfig   `yaml:"compute"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Worker    WorkerConfig    `yaml:"worker"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Status    StatusConfig    `yaml:"status"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HostConfig holds the coordination host configuration.
type HostConfig struct {
	BindAddress      string        `yaml:"bind_address" env:"HIVE_HOST_BIND_ADDRESS"`
	AdvertiseAddress string        `yaml:"advertise_address" env:"HIVE_HOST_ADVERTISE_ADDRESS"`
	GraphsDir        string        `yaml:"graphs_dir" env:"HIVE_HOST_GRAPHS_DIR"`
	ReportPath       string        `yaml:"report_path" env:"HIVE_HOST_REPORT_PATH"`
	Strategy         string        `yaml:"strategy" env:"HIVE_HOST_STRATEGY"`
	Trials           int           `yaml:"trials" env:"HIVE_HOST_TRIALS"`
	MaxAssignmentAge time.Duration `yaml:"max_assignment_age" env:"HIVE_HOST_MAX_ASSIGNMENT_AGE"`
	SweepInterval    time.Duration `yaml:"sweep_interval" env:"HIVE_HOST_SWEEP_INTERVAL"`
	PollInterval     time.Duration `yaml:"poll_interval" env:"HIVE_HOST_POLL_INTERVAL"`
	MaxAttempts      int           `yaml:"max_attempts" env:"HIVE_HOST_MAX_ATTEMPTS"`
	MaxFrameSize     int           `yaml:"max_frame_size" env:"HIVE_HOST_MAX_FRAME_SIZE"`
}

// ComputeConfig is serialized once and shipped with every task.
type ComputeConfig struct {
	Generations          int     `yaml:"generations" json:"generations"`
	MaxStagnant          int     `yaml:"max_stagnant" json:"max_stagnant"`
	TournamentSize       int     `yaml:"tournament_size" json:"tournament_size"`
	CrossoverProbability float64 `yaml:"crossover_probability" json:"crossover_probability"`
	PopSize              int     `yaml:"pop_size" json:"pop_size,omitempty"`
}

// SnapshotConfig holds periodic snapshot configuration. An empty Path disables the file sink.
type SnapshotConfig struct {
	Path          string        `yaml:"path" env:"HIVE_SNAPSHOT_PATH"`
	Interval      time.Duration `yaml:"interval" env:"HIVE_SNAPSHOT_INTERVAL"`
	RedisAddr     string        `yaml:"redis_addr" env:"HIVE_SNAPSHOT_REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"HIVE_SNAPSHOT_REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"HIVE_SNAPSHOT_REDIS_DB"`
	RedisKey      string        `yaml:"redis_key" env:"HIVE_SNAPSHOT_REDIS_KEY"`
}

// Enabled reports whether any snapshot sink is configured.
func (c SnapshotConfig) Enabled() bool {
	return c.Path != "" || c.RedisAddr != ""
}

// WorkerConfig holds worker process configuration.
type WorkerConfig struct {
	HostAddress       string        `yaml:"host_address" env:"HIVE_WORKER_HOST_ADDRESS"`
	GraphsDir         string        `yaml:"graphs_dir" env:"HIVE_WORKER_GRAPHS_DIR"`
	Strategy          string        `yaml:"strategy" env:"HIVE_WORKER_STRATEGY"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HIVE_WORKER_HEARTBEAT_INTERVAL"`
	IdleBackoff       time.Duration `yaml:"idle_backoff" env:"HIVE_WORKER_IDLE_BACKOFF"`
	ReconnectBackoff  time.Duration `yaml:"reconnect_backoff" env:"HIVE_WORKER_RECONNECT_BACKOFF"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay" env:"HIVE_WORKER_MAX_RECONNECT_DELAY"`
	DialTimeout       time.Duration `yaml:"dial_timeout" env:"HIVE_WORKER_DIAL_TIMEOUT"`
	RequestTimeout    time.Duration `yaml:"request_timeout" env:"HIVE_WORKER_REQUEST_TIMEOUT"`
}

// DiscoveryConfig holds UDP discovery configuration.
type DiscoveryConfig struct {
	Enabled          bool          `yaml:"enabled" env:"HIVE_DISCOVERY_ENABLED"`
	Port             int           `yaml:"port" env:"HIVE_DISCOVERY_PORT"`
	BroadcastAddress string        `yaml:"broadcast_address" env:"HIVE_DISCOVERY_BROADCAST_ADDRESS"`
	Timeout          time.Duration `yaml:"timeout" env:"HIVE_DISCOVERY_TIMEOUT"`
}

// StatusConfig holds the read-only HTTP status API configuration.
type StatusConfig struct {
	Address string `yaml:"address" env:"HIVE_STATUS_ADDRESS"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"HIVE_LOG_LEVEL"`
	Format     string `yaml:"format" env:"HIVE_LOG_FORMAT"`
	Output     string `yaml:"output" env:"HIVE_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"HIVE_LOG_FILE_PATH"`
	MaxSize    int    `yaml:"max_size" env:"HIVE_LOG_MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"HIVE_LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"HIVE_LOG_MAX_AGE"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Host: HostConfig{
			BindAddress:      "0.0.0.0:12345",
			ReportPath:       "final_report.json",
			Strategy:         "fifo",
			Trials:           10,
			MaxAssignmentAge: 60 * time.Second,
			SweepInterval:    5 * time.Second,
			PollInterval:     5 * time.Second,
			MaxAttempts:      0,
			MaxFrameSize:     16 * 1024 * 1024, // 16MB
		},
		Compute: ComputeConfig{
			Generations:          1000,
			MaxStagnant:          100,
			TournamentSize:       2,
			CrossoverProbability: 0.9,
		},
		Snapshot: SnapshotConfig{
			Interval: 300 * time.Second,
			RedisKey: "hive:snapshot",
		},
		Worker: WorkerConfig{
			Strategy:          "heuristic",
			HeartbeatInterval: 10 * time.Second,
			IdleBackoff:       2 * time.Second,
			ReconnectBackoff:  time.Second,
			MaxReconnectDelay: 30 * time.Second,
			DialTimeout:       5 * time.Second,
			RequestTimeout:    30 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Enabled:          true,
			Port:             2901,
			BroadcastAddress: "255.255.255.255",
			Timeout:          5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		cmdArgs: make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithCmdArgs sets dot-path overrides, e.g. "host.strategy" -> "lifo".
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	for k, v := range args {
		l.cmdArgs[k] = v
	}
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return nil, fmt.Errorf("apply override %s: %w", key, err)
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. A missing file keeps the defaults.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setConfigValue sets a configuration value by its yaml dot path.
func setConfigValue(cfg *Config, path, value string) error {
	v := reflect.ValueOf(cfg).Elem()
	parts := strings.Split(path, ".")

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("unknown config path: %s", path)
		}
		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}
		if field.Kind() != reflect.Struct {
			return fmt.Errorf("%s is not a section", part)
		}
		v = field
	}
	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == name || strings.EqualFold(t.Field(i).Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}
