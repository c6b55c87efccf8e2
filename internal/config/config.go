// Package config は環境変数・.env・設定ファイルからアプリケーション設定を読み込みます。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config はサーバーの設定値です。
type Config struct {
	Port         string
	GinMode      string
	AllowOrigins []string
	// TrustedProxies は X-Forwarded-For を信頼するプロキシ (IP または CIDR) です。空なら信頼しません。
	TrustedProxies []string

	JWTSecret  string
	JWTIssuer  string
	TokenTTL   time.Duration
	BcryptCost int

	DBDriver       string
	SQLitePath     string
	DBUser         string
	DBPass         string
	DBHost         string
	DBPort         string
	DBName         string
	DBMaxOpenConns int

	RedisAddr      string
	AuthRateLimit  int
	AuthRateWindow time.Duration

	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("allow_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("trusted_proxies", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "taskapp")
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("bcrypt_cost", 12)
	v.SetDefault("db_driver", DriverSQLite)
	v.SetDefault("sqlite_path", "taskapp.db")
	v.SetDefault("db_user", "")
	v.SetDefault("db_pass", "")
	v.SetDefault("db_host", "")
	v.SetDefault("db_port", "3306")
	v.SetDefault("db_name", "")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("redis_addr", "")
	v.SetDefault("auth_rate_limit", 20)
	v.SetDefault("auth_rate_window", "1m")
	v.SetDefault("shutdown_timeout", "20s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load は .env を読み込んだ後、環境変数と (指定されていれば) 設定ファイルから設定を構築します。
// configPath が空の場合は TASKAPP_CONFIG を参照します。
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configPath == "" {
		configPath = os.Getenv("TASKAPP_CONFIG")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:            v.GetString("port"),
		GinMode:         v.GetString("gin_mode"),
		AllowOrigins:    splitList(v.GetString("allow_origins")),
		TrustedProxies:  splitList(v.GetString("trusted_proxies")),
		JWTSecret:       v.GetString("jwt_secret"),
		JWTIssuer:       v.GetString("jwt_issuer"),
		TokenTTL:        v.GetDuration("token_ttl"),
		BcryptCost:      v.GetInt("bcrypt_cost"),
		DBDriver:        strings.ToLower(v.GetString("db_driver")),
		SQLitePath:      v.GetString("sqlite_path"),
		DBUser:          v.GetString("db_user"),
		DBPass:          v.GetString("db_pass"),
		DBHost:          v.GetString("db_host"),
		DBPort:          v.GetString("db_port"),
		DBName:          v.GetString("db_name"),
		DBMaxOpenConns:  v.GetInt("db_max_open_conns"),
		RedisAddr:       v.GetString("redis_addr"),
		AuthRateLimit:   v.GetInt("auth_rate_limit"),
		AuthRateWindow:  v.GetDuration("auth_rate_window"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate は設定値の整合性を確認します。
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable not set"))
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH must not be empty"))
		}
	case DriverMySQL:
		if c.DBHost == "" || c.DBName == "" {
			errs = append(errs, errors.New("DB_HOST and DB_NAME are required for the mysql driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q (want sqlite or mysql)", c.DBDriver))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be greater than 0"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	if c.DBMaxOpenConns <= 0 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS must be greater than 0"))
	}
	if c.AuthRateLimit <= 0 || c.AuthRateWindow <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT and AUTH_RATE_WINDOW must be greater than 0"))
	}
	for _, p := range c.TrustedProxies {
		if !validProxy(p) {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP address or CIDR", p))
		}
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be greater than 0"))
	}
	return errors.Join(errs...)
}

func validProxy(p string) bool {
	if strings.Contains(p, "/") {
		_, _, err := net.ParseCIDR(p)
		return err == nil
	}
	return net.ParseIP(p) != nil
}

// MySQLDSN は MySQL接続文字列 (DSN) を構築します。
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

// Addr はHTTPサーバーの待ち受けアドレスです。
func (c *Config) Addr() string {
	return ":" + c.Port
}
