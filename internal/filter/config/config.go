package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log       LogConfig       `koanf:"log"`
	Proxy     ProxyConfig     `koanf:"proxy"`
	Blocklist BlocklistConfig `koanf:"blocklist"`
	BlockLog  BlockLogConfig  `koanf:"blocklog"`
	BlockPage BlockPageConfig `koanf:"blockpage"`
	Stats     StatsConfig     `koanf:"stats"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Admin     AdminConfig     `koanf:"admin"`
	SysProxy  SysProxyConfig  `koanf:"sysproxy"`
}

// LogConfig controls log verbosity: "debug", "info", "warn", or "error".
type LogConfig struct {
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// ProxyConfig configures the intercepting listener.
type ProxyConfig struct {
	// Listen is the host:port the proxy binds to.
	Listen string `koanf:"listen" validate:"required,host_port"`

	// ShutdownTimeout bounds how long in-flight requests may drain on stop
	// before remaining connections are force-closed.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`

	CA CAConfig `koanf:"ca"`
}

// CAConfig locates the interception root certificate. Missing files are
// generated on first start.
type CAConfig struct {
	Cert string `koanf:"cert" validate:"required"`
	Key  string `koanf:"key" validate:"required"`
	// Export, when set, receives a PEM copy of the root certificate for the
	// operator or OS tooling to trust.
	Export string `koanf:"export"`
}

// BlocklistConfig locates the category files and tunes lookups.
type BlocklistConfig struct {
	Directory string   `koanf:"dir" validate:"required"`
	Files     []string `koanf:"files"`
	// FPRate is the target false-positive rate of the gram prefilter.
	FPRate float64     `koanf:"fp_rate" validate:"gt=0,lt=1"`
	Cache  CacheConfig `koanf:"cache"`
}

// CacheConfig sizes an LRU cache; 0 disables it.
type CacheConfig struct {
	Size int `koanf:"size" validate:"gte=0"`
}

// BlockLogConfig configures the append-only blocked URL log.
type BlockLogConfig struct {
	Directory string `koanf:"dir" validate:"required"`
	Buffer    int    `koanf:"buffer" validate:"gte=1"`
}

// BlockPageConfig optionally replaces the built-in block page with an
// html/template file.
type BlockPageConfig struct {
	Template string `koanf:"template"`
}

// StatsConfig enables the persistent per-domain block counters when DB is set.
type StatsConfig struct {
	DB string `koanf:"db"`
}

// TelemetryConfig controls diagnostic snapshots.
type TelemetryConfig struct {
	// Every is the request interval between memory snapshots.
	Every uint64 `koanf:"every" validate:"gte=1"`
}

// AdminConfig enables the health/metrics/stats HTTP API when Listen is set.
type AdminConfig struct {
	Listen string `koanf:"listen" validate:"omitempty,host_port"`
}

// SysProxyConfig controls registration as the operating system's proxy.
type SysProxyConfig struct {
	Enabled bool `koanf:"enabled"`
	// Address is what gets registered; defaults to a loopback form of Proxy.Listen.
	Address string `koanf:"address" validate:"omitempty,host_port"`
}

// DEFAULT_APP_CONFIG defines the defaults applied before environment overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LogConfig{Level: "info"},
	Proxy: ProxyConfig{
		Listen:          "127.0.0.1:8888",
		ShutdownTimeout: 5 * time.Second,
		CA: CAConfig{
			Cert: "/var/lib/rr-filter/ca.crt",
			Key:  "/var/lib/rr-filter/ca.key",
		},
	},
	Blocklist: BlocklistConfig{
		Directory: "/etc/rr-filter/blocklist.d/",
		Files:     []string{"fakenews.txt", "nsfw.txt", "socialmedia.txt", "gambling.txt", "malware.txt"},
		FPRate:    0.01,
		Cache:     CacheConfig{},
	},
	BlockLog: BlockLogConfig{
		Directory: "/var/log/rr-filter/",
		Buffer:    1024,
	},
	Telemetry: TelemetryConfig{Every: 100},
	SysProxy:  SysProxyConfig{Enabled: true},
}

// envKeys maps FILTER_* variable suffixes to koanf paths. Underscores are
// ambiguous between nesting and multi-word keys, so the mapping is explicit.
var envKeys = map[string]string{
	"ENV":                    "env",
	"LOG_LEVEL":              "log.level",
	"PROXY_LISTEN":           "proxy.listen",
	"PROXY_SHUTDOWN_TIMEOUT": "proxy.shutdown_timeout",
	"PROXY_CA_CERT":          "proxy.ca.cert",
	"PROXY_CA_KEY":           "proxy.ca.key",
	"PROXY_CA_EXPORT":        "proxy.ca.export",
	"BLOCKLIST_DIR":          "blocklist.dir",
	"BLOCKLIST_FILES":        "blocklist.files",
	"BLOCKLIST_FP_RATE":      "blocklist.fp_rate",
	"BLOCKLIST_CACHE_SIZE":   "blocklist.cache.size",
	"BLOCKLOG_DIR":           "blocklog.dir",
	"BLOCKLOG_BUFFER":        "blocklog.buffer",
	"BLOCKPAGE_TEMPLATE":     "blockpage.template",
	"STATS_DB":               "stats.db",
	"TELEMETRY_EVERY":        "telemetry.every",
	"ADMIN_LISTEN":           "admin.listen",
	"SYSPROXY_ENABLED":       "sysproxy.enabled",
	"SYSPROXY_ADDRESS":       "sysproxy.address",
}

// listKeys are split on spaces and commas.
var listKeys = map[string]bool{
	"blocklist.files": true,
}

// validHostPort accepts "host:port" where host may be empty, an IP or a name
// and port is 0-65535 (0 asks the kernel for an ephemeral port).
func validHostPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if strings.ContainsAny(host, " /") {
		return false
	}
	_, err = strconv.ParseUint(port, 10, 16)
	return err == nil
}

// envLoader loads environment variables with the prefix "FILTER_" and maps
// them onto koanf paths via envKeys. Unknown variables are ignored.
// It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "FILTER_",
		TransformFunc: func(key, value string) (string, any) {
			path, ok := envKeys[strings.TrimPrefix(key, "FILTER_")]
			if !ok {
				return "", nil
			}
			value = strings.TrimSpace(value)

			if listKeys[path] {
				return path, strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
			}
			return path, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG into k using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the "host_port" tag with the provided validator.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("host_port", validHostPort)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// SystemProxyAddress returns the address registered with the OS proxy
// settings. Wildcard listen hosts are replaced by loopback so clients on this
// machine can reach the proxy.
func (c *AppConfig) SystemProxyAddress() string {
	if c.SysProxy.Address != "" {
		return c.SysProxy.Address
	}
	host, port, err := net.SplitHostPort(c.Proxy.Listen)
	if err != nil {
		return c.Proxy.Listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
