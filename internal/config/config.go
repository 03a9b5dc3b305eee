package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	Firebase  FirebaseConfig
	Redis     RedisConfig
	Archive   ArchiveConfig
	Log       LogConfig
}

// 저장소 백엔드 종류
const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendSQLite    = "sqlite"
	BackendMongo     = "mongo"
	BackendFirestore = "firestore"
)

// 인증 방식
const (
	AuthProviderJWT      = "jwt"
	AuthProviderFirebase = "firebase"
	AuthProviderGoogle   = "google"
)

var (
	ErrMissingEnv    = errors.New("required environment variable is not set")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// StoreConfig 화이트보드 저장소 설정
type StoreConfig struct {
	Backend string
}

// DatabaseConfig SQL 데이터베이스 설정
type DatabaseConfig struct {
	Driver   string // postgres | sqlite
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
	Path     string // sqlite 파일 경로
}

// DSN PostgreSQL 접속 문자열
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode, d.TimeZone,
	)
}

// MongoConfig MongoDB 설정
type MongoConfig struct {
	URI      string
	Database string
}

// FirebaseConfig Firebase / Firestore 설정
type FirebaseConfig struct {
	ProjectID       string
	CredentialsJSON string
	CredentialsFile string
	EmulatorHost    string
}

// RedisConfig Redis 설정 (Addr가 비어 있으면 in-process 버스 사용)
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// ArchiveConfig 보드 초기화 전 S3 보관 설정
type ArchiveConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled 버킷이 지정된 경우에만 보관
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// LogConfig 로깅 설정
type LogConfig struct {
	Level string
	Env   string // development | production
}

// AuthConfig 인증 설정
type AuthConfig struct {
	Provider          string
	JWTSecret         string
	AccessTokenExpiry time.Duration
	GoogleClientID    string
}

// ServerConfig HTTP 서버 설정
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	BodyLimit    int

	AccessLog       bool
	RateLimitMax    int // 0이면 비활성화
	RateLimitWindow time.Duration
}

// WebSocketConfig WebSocket 관련 설정
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
}

// CORSConfig CORS 설정
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// Load 환경 변수에서 설정 로드 (.env 파일은 없어도 된다)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
			BodyLimit:    getInt("BODY_LIMIT", 10*1024*1024),

			AccessLog:       getBool("ACCESS_LOG", true),
			RateLimitMax:    getInt("RATE_LIMIT_MAX", 120),
			RateLimitWindow: getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize: getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			SendBufferSize:  getInt("WS_SEND_BUFFER_SIZE", 32),
			WriteTimeout:    getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
			PingInterval:    getDuration("WS_PING_INTERVAL", 30*time.Second),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			Provider:          strings.ToLower(getEnv("AUTH_PROVIDER", AuthProviderJWT)),
			JWTSecret:         os.Getenv("JWT_SECRET"),
			AccessTokenExpiry: getDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
			GoogleClientID:    getEnv("GOOGLE_CLIENT_ID", ""),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", BackendPostgres)),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "postgres"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			TimeZone: getEnv("DB_TIMEZONE", "UTC"),
			Path:     getEnv("DB_PATH", "whiteboard.db"),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DB", "whiteboard"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			EmulatorHost:    getEnv("FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", ""),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getInt("REDIS_DB", 0),
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "whiteboard:"),
		},
		Archive: ArchiveConfig{
			Bucket:          getEnv("ARCHIVE_S3_BUCKET", ""),
			Prefix:          getEnv("ARCHIVE_S3_PREFIX", "whiteboards/"),
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			Env:   getEnv("APP_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 필수 설정 검증
func (c *Config) Validate() error {
	switch c.Auth.Provider {
	case AuthProviderJWT:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("%w: JWT_SECRET", ErrMissingEnv)
		}
		if c.Auth.JWTSecret == "change-this-secret-in-production" && c.IsProduction() {
			return fmt.Errorf("%w: JWT_SECRET must be changed from default value in production", ErrInvalidConfig)
		}
	case AuthProviderFirebase:
		if c.Firebase.ProjectID == "" {
			return fmt.Errorf("%w: FIREBASE_PROJECT_ID", ErrMissingEnv)
		}
	case AuthProviderGoogle:
		if c.Auth.GoogleClientID == "" {
			return fmt.Errorf("%w: GOOGLE_CLIENT_ID", ErrMissingEnv)
		}
	default:
		return fmt.Errorf("%w: unknown AUTH_PROVIDER %q", ErrInvalidConfig, c.Auth.Provider)
	}

	switch c.Store.Backend {
	case BackendMemory, BackendMongo:
	case BackendPostgres, BackendSQLite:
		c.Database.Driver = c.Store.Backend
	case BackendFirestore:
		if c.Firebase.ProjectID == "" {
			return fmt.Errorf("%w: FIREBASE_PROJECT_ID", ErrMissingEnv)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrInvalidConfig, c.Store.Backend)
	}
	return nil
}

// IsProduction APP_ENV=production 여부
func (c *Config) IsProduction() bool {
	return c.Log.Env == "production"
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 정수형 환경 변수 조회
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getBool 불리언 환경 변수 조회
func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDuration 시간 환경 변수 조회
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// 숫자만 있으면 초로 간주
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
