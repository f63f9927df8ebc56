package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"icetime/backend/internal/domain"
)

type Config struct {
	HTTPAddr           string
	HTTPRequestTimeout time.Duration
	CORSOrigins        []string
	GRPCHost           string
	GRPCPort           int
	GRPCAddr           string
	GRPCRequestTimeout time.Duration
	DatabaseURL        string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	DBConnMaxLifetime  time.Duration
	DBConnMaxIdleTime  time.Duration
	ShutdownTimeout    time.Duration
	LogLevel           string
	Environment        string
	OTLPEndpoint       string
	OTLPInsecure       bool
	AMQPURL            string
	AMQPExchange       string
	AMQPQueue          string
	AMQPPrefetch       int
	Surfaces           []domain.RinkSurface
}

// SurfaceConfig is one entry of the "surfaces" list in the config file.
type SurfaceConfig struct {
	ID               string   `mapstructure:"id"`
	Name             string   `mapstructure:"name"`
	Type             string   `mapstructure:"type"`
	Capacity         int      `mapstructure:"capacity"`
	SuitablePrograms []string `mapstructure:"suitable_programs"`
	Active           *bool    `mapstructure:"active"`
}

func (s SurfaceConfig) surface() (domain.RinkSurface, error) {
	t, err := domain.ParseSurfaceType(s.Type)
	if err != nil {
		return domain.RinkSurface{}, fmt.Errorf("surface %s: %w", s.ID, err)
	}
	out := domain.RinkSurface{
		ID:       strings.TrimSpace(s.ID),
		Name:     strings.TrimSpace(s.Name),
		Type:     t,
		Capacity: s.Capacity,
		Active:   s.Active == nil || *s.Active,
	}
	for _, p := range s.SuitablePrograms {
		pt, err := domain.ParseProgramType(p)
		if err != nil {
			return domain.RinkSurface{}, fmt.Errorf("surface %s: %w", s.ID, err)
		}
		out.SuitablePrograms = append(out.SuitablePrograms, pt)
	}
	return out, nil
}

// DefaultSurfaces is the facility used when no config file lists surfaces.
func DefaultSurfaces() []domain.RinkSurface {
	return []domain.RinkSurface{
		{ID: "R1", Name: "Main Rink", Type: domain.SurfaceHockey, Capacity: 200, Active: true},
		{ID: "R2", Name: "Studio Rink", Type: domain.SurfaceFigureSkating, Capacity: 40, Active: true},
	}
}

// Load reads an optional .env file, then the environment, then the optional
// file named by ICETIME_CONFIG_FILE.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ICETIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.request_timeout", "10s")
	v.SetDefault("http.cors_origins", "*")
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.addr", "")
	v.SetDefault("grpc.request_timeout", "10s")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("shutdown.timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("env", "dev")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", true)
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "payments")
	v.SetDefault("amqp.queue", "icetime.payment-status")
	v.SetDefault("amqp.prefetch", 16)

	_ = v.BindEnv("config_file", "ICETIME_CONFIG_FILE")
	_ = v.BindEnv("http.addr", "ICETIME_HTTP_ADDR", "HTTP_ADDR")
	_ = v.BindEnv("http.request_timeout", "ICETIME_HTTP_REQUEST_TIMEOUT")
	_ = v.BindEnv("http.cors_origins", "ICETIME_HTTP_CORS_ORIGINS", "CORS_ORIGINS")
	_ = v.BindEnv("grpc.host", "ICETIME_GRPC_HOST", "GRPC_HOST")
	_ = v.BindEnv("grpc.port", "ICETIME_GRPC_PORT", "GRPC_PORT")
	_ = v.BindEnv("grpc.addr", "ICETIME_GRPC_ADDR", "GRPC_ADDR")
	_ = v.BindEnv("grpc.request_timeout", "ICETIME_GRPC_REQUEST_TIMEOUT")
	_ = v.BindEnv("database.url", "ICETIME_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("database.max_open_conns", "ICETIME_DATABASE_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.max_idle_conns", "ICETIME_DATABASE_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.conn_max_lifetime", "ICETIME_DATABASE_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.conn_max_idle_time", "ICETIME_DATABASE_CONN_MAX_IDLE_TIME")
	_ = v.BindEnv("shutdown.timeout", "ICETIME_SHUTDOWN_TIMEOUT", "SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("log.level", "ICETIME_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("env", "ICETIME_ENV", "ENV")
	_ = v.BindEnv("otel.endpoint", "ICETIME_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("otel.insecure", "ICETIME_OTEL_INSECURE")
	_ = v.BindEnv("amqp.url", "ICETIME_AMQP_URL", "RABBITMQ_URL")
	_ = v.BindEnv("amqp.exchange", "ICETIME_AMQP_EXCHANGE")
	_ = v.BindEnv("amqp.queue", "ICETIME_AMQP_QUEUE")
	_ = v.BindEnv("amqp.prefetch", "ICETIME_AMQP_PREFETCH")

	if path := strings.TrimSpace(v.GetString("config_file")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	httpTimeout, err := duration(v, "http.request_timeout")
	if err != nil {
		return Config{}, err
	}
	grpcTimeout, err := duration(v, "grpc.request_timeout")
	if err != nil {
		return Config{}, err
	}
	shutdownTimeout, err := duration(v, "shutdown.timeout")
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := duration(v, "database.conn_max_lifetime")
	if err != nil {
		return Config{}, err
	}
	connMaxIdleTime, err := duration(v, "database.conn_max_idle_time")
	if err != nil {
		return Config{}, err
	}

	if addr := strings.TrimSpace(v.GetString("grpc.addr")); addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err == nil {
			if host != "" {
				v.Set("grpc.host", host)
			}
			if port, err := strconv.Atoi(portStr); err == nil {
				v.Set("grpc.port", port)
			}
		}
	}
	grpcHost := strings.TrimSpace(v.GetString("grpc.host"))
	grpcPort := v.GetInt("grpc.port")

	surfaces, err := loadSurfaces(v)
	if err != nil {
		return Config{}, err
	}

	return Config{
		HTTPAddr:           strings.TrimSpace(v.GetString("http.addr")),
		HTTPRequestTimeout: httpTimeout,
		CORSOrigins:        splitList(v.GetString("http.cors_origins")),
		GRPCHost:           grpcHost,
		GRPCPort:           grpcPort,
		GRPCAddr:           net.JoinHostPort(grpcHost, strconv.Itoa(grpcPort)),
		GRPCRequestTimeout: grpcTimeout,
		DatabaseURL:        strings.TrimSpace(v.GetString("database.url")),
		DBMaxOpenConns:     v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:     v.GetInt("database.max_idle_conns"),
		DBConnMaxLifetime:  connMaxLifetime,
		DBConnMaxIdleTime:  connMaxIdleTime,
		ShutdownTimeout:    shutdownTimeout,
		LogLevel:           v.GetString("log.level"),
		Environment:        v.GetString("env"),
		OTLPEndpoint:       strings.TrimSpace(v.GetString("otel.endpoint")),
		OTLPInsecure:       v.GetBool("otel.insecure"),
		AMQPURL:            strings.TrimSpace(v.GetString("amqp.url")),
		AMQPExchange:       v.GetString("amqp.exchange"),
		AMQPQueue:          v.GetString("amqp.queue"),
		AMQPPrefetch:       v.GetInt("amqp.prefetch"),
		Surfaces:           surfaces,
	}, nil
}

func loadSurfaces(v *viper.Viper) ([]domain.RinkSurface, error) {
	var raw []SurfaceConfig
	if err := v.UnmarshalKey("surfaces", &raw); err != nil {
		return nil, fmt.Errorf("decode surfaces: %w", err)
	}
	if len(raw) == 0 {
		return DefaultSurfaces(), nil
	}
	out := make([]domain.RinkSurface, 0, len(raw))
	for _, sc := range raw {
		s, err := sc.surface()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
