package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env     string `yaml:"env"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	WSAA struct {
		// Service es el WSN para el que se piden tickets (wsfe, wsmtxca...).
		Service string `yaml:"service"`
		// Endpoint: "homologation" | "production" | URL completa.
		Endpoint       string        `yaml:"endpoint"`
		ValidityWindow time.Duration `yaml:"validity_window"`
		Timeout        time.Duration `yaml:"timeout"`
		RenewBefore    time.Duration `yaml:"renew_before"`
		RenewTimeout   time.Duration `yaml:"renew_timeout"`
		CacheTTL       time.Duration `yaml:"cache_ttl"`
		// TimeLayout: "local" | "zoned" | layout Go explícito.
		TimeLayout string        `yaml:"time_layout"`
		Location   string        `yaml:"location"`
		Backdate   time.Duration `yaml:"backdate"`
		ProxyURL   string        `yaml:"proxy_url"`
		CAFile     string        `yaml:"ca_file"`

		Keystore struct {
			Path     string `yaml:"path"`
			Password string `yaml:"password"`
			Alias    string `yaml:"alias"`
		} `yaml:"keystore"`
	} `yaml:"wsaa"`

	Store struct {
		Driver string `yaml:"driver"` // memory | redis | bolt | postgres
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Bolt struct {
			Path string `yaml:"path"`
		} `yaml:"bolt"`
		Postgres struct {
			DSN      string `yaml:"dsn"`
			MaxConns int    `yaml:"max_conns"`
		} `yaml:"postgres"`
	} `yaml:"store"`
}

// Load lee el YAML (si path no es vacío), aplica defaults, overrides por env
// y valida. Sin path la configuración sale sólo de defaults + env.
func Load(path string) (*Config, error) {
	var c Config
	// renew_before: 0s es válido, así que su default se carga antes del YAML.
	c.WSAA.RenewBefore = 2 * time.Minute
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Rutas relativas del YAML se resuelven respecto de su directorio.
	if path != "" {
		base := filepath.Dir(path)
		c.WSAA.Keystore.Path = resolvePath(base, c.WSAA.Keystore.Path)
		c.WSAA.CAFile = resolvePath(base, c.WSAA.CAFile)
		c.Store.Bolt.Path = resolvePath(base, c.Store.Bolt.Path)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// Tiene que cubrir una renovación completa contra el WSAA.
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	if c.WSAA.Service == "" {
		c.WSAA.Service = "wsfe"
	}
	if c.WSAA.Endpoint == "" {
		c.WSAA.Endpoint = "homologation"
	}
	if c.WSAA.ValidityWindow == 0 {
		c.WSAA.ValidityWindow = 12 * time.Hour
	}
	if c.WSAA.Timeout == 0 {
		c.WSAA.Timeout = 30 * time.Second
	}
	if c.WSAA.RenewTimeout == 0 {
		c.WSAA.RenewTimeout = 45 * time.Second
	}
	if c.WSAA.TimeLayout == "" {
		c.WSAA.TimeLayout = "local"
	}
	if c.WSAA.Location == "" {
		c.WSAA.Location = "America/Argentina/Buenos_Aires"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "wsaa:ticket:"
	}
	if c.Store.Bolt.Path == "" {
		c.Store.Bolt.Path = "./data/wsaa-tickets.db"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP / LOG
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvStr("SERVICE_VERSION"); ok {
		c.App.Version = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvDur("SERVER_READ_TIMEOUT"); ok {
		c.Server.ReadTimeout = v
	}
	if v, ok := getEnvDur("SERVER_WRITE_TIMEOUT"); ok {
		c.Server.WriteTimeout = v
	}

	// WSAA
	if v, ok := getEnvStr("WSAA_SERVICE"); ok {
		c.WSAA.Service = strings.TrimSpace(v)
	}
	if v, ok := getEnvStr("WSAA_ENDPOINT"); ok {
		c.WSAA.Endpoint = strings.TrimSpace(v)
	}
	if v, ok := getEnvDur("WSAA_VALIDITY_WINDOW"); ok {
		c.WSAA.ValidityWindow = v
	}
	if v, ok := getEnvDur("WSAA_TIMEOUT"); ok {
		c.WSAA.Timeout = v
	}
	if v, ok := getEnvDur("WSAA_RENEW_BEFORE"); ok {
		c.WSAA.RenewBefore = v
	}
	if v, ok := getEnvDur("WSAA_RENEW_TIMEOUT"); ok {
		c.WSAA.RenewTimeout = v
	}
	if v, ok := getEnvDur("WSAA_CACHE_TTL"); ok {
		c.WSAA.CacheTTL = v
	}
	if v, ok := getEnvStr("WSAA_TIME_LAYOUT"); ok {
		c.WSAA.TimeLayout = v
	}
	if v, ok := getEnvStr("WSAA_LOCATION"); ok {
		c.WSAA.Location = v
	}
	if v, ok := getEnvDur("WSAA_BACKDATE"); ok {
		c.WSAA.Backdate = v
	}
	if v, ok := getEnvStr("WSAA_PROXY_URL"); ok {
		c.WSAA.ProxyURL = v
	}
	if v, ok := getEnvStr("WSAA_CA_FILE"); ok {
		c.WSAA.CAFile = v
	}
	if v, ok := getEnvStr("WSAA_KEYSTORE_PATH"); ok {
		c.WSAA.Keystore.Path = v
	}
	if v, ok := getEnvStr("WSAA_KEYSTORE_PASSWORD"); ok {
		c.WSAA.Keystore.Password = v
	}
	if v, ok := getEnvStr("WSAA_KEYSTORE_ALIAS"); ok {
		c.WSAA.Keystore.Alias = v
	}

	// STORE
	if v, ok := getEnvStr("STORE_DRIVER"); ok {
		c.Store.Driver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvStr("STORE_REDIS_ADDR"); ok {
		c.Store.Redis.Addr = v
	}
	if v, ok := getEnvStr("STORE_REDIS_PASSWORD"); ok {
		c.Store.Redis.Password = v
	}
	if v, ok := getEnvInt("STORE_REDIS_DB"); ok {
		c.Store.Redis.DB = v
	}
	if v, ok := getEnvStr("STORE_REDIS_PREFIX"); ok {
		c.Store.Redis.Prefix = v
	}
	if v, ok := getEnvStr("STORE_BOLT_PATH"); ok {
		c.Store.Bolt.Path = v
	}
	if v, ok := getEnvStr("STORE_POSTGRES_DSN"); ok {
		c.Store.Postgres.DSN = v
	}
	if v, ok := getEnvInt("STORE_POSTGRES_MAX_CONNS"); ok {
		c.Store.Postgres.MaxConns = v
	}
}

// Validate junta todos los problemas en un único error.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.WSAA.Service) == "" {
		errs = append(errs, errors.New("wsaa.service is required"))
	}
	if strings.TrimSpace(c.WSAA.Keystore.Path) == "" {
		errs = append(errs, errors.New("wsaa.keystore.path is required"))
	}
	if strings.TrimSpace(c.WSAA.Keystore.Alias) == "" {
		errs = append(errs, errors.New("wsaa.keystore.alias is required"))
	}
	if c.WSAA.ValidityWindow <= 0 {
		errs = append(errs, errors.New("wsaa.validity_window must be positive"))
	}
	if c.WSAA.Timeout <= 0 {
		errs = append(errs, errors.New("wsaa.timeout must be positive"))
	}
	if c.WSAA.RenewBefore < 0 || c.WSAA.RenewBefore >= c.WSAA.ValidityWindow {
		errs = append(errs, errors.New("wsaa.renew_before must be >= 0 and shorter than wsaa.validity_window"))
	}
	if c.WSAA.CacheTTL < 0 {
		errs = append(errs, errors.New("wsaa.cache_ttl must be >= 0"))
	}
	if c.WSAA.RenewTimeout < c.WSAA.Timeout {
		errs = append(errs, errors.New("wsaa.renew_timeout must be >= wsaa.timeout"))
	}

	switch c.Store.Driver {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for driver redis"))
		}
	case "bolt":
		if c.Store.Bolt.Path == "" {
			errs = append(errs, errors.New("store.bolt.path is required for driver bolt"))
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is required for driver postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q not supported", c.Store.Driver))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func resolvePath(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
