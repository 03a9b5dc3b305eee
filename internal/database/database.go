package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/pubsub"
	"whiteboard-backend/internal/store"
)

// Backend 설정에 따라 연결된 저장소와 부가 리소스
type Backend struct {
	Store    store.DocumentStore
	Firebase *firebase.App
	DB       *gorm.DB
	Redis    *redis.Client

	closers []func() error
}

// Open STORE_BACKEND에 맞는 저장소와 변경 알림 버스를 연결한다.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	b := &Backend{}

	if cfg.Firebase.ProjectID != "" {
		app, err := NewFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		b.Firebase = app
	}

	var bus pubsub.Bus = pubsub.NewHub()
	if cfg.Redis.Addr != "" {
		client, err := pubsub.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.Redis = client

		// Firestore는 자체 스냅샷 리스너로 변경을 전파한다
		if cfg.Store.Backend != config.BackendFirestore {
			redisBus, err := pubsub.NewRedisBus(ctx, client, cfg.Redis.ChannelPrefix, log)
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("failed to subscribe to redis: %w", err)
			}
			b.closers = append(b.closers, redisBus.Close)
			bus = redisBus
			log.Info("redis change bus enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		b.Store = store.NewMemoryStore(bus, log)

	case config.BackendPostgres, config.BackendSQLite:
		db, err := ConnectGorm(cfg.Database, log)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.DB = db
		b.closers = append(b.closers, func() error { return Close(db) })

		s := store.NewGormStore(db, bus, log)
		if err := s.AutoMigrate(); err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
		b.Store = s

	case config.BackendMongo:
		client, err := ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		})
		b.Store = store.NewMongoStore(client.Database(cfg.Mongo.Database), bus, log)

	case config.BackendFirestore:
		if b.Firebase == nil {
			b.Close()
			return nil, errors.New("firestore backend requires FIREBASE_PROJECT_ID")
		}
		client, err := b.Firebase.Firestore(ctx)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to open firestore: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.Store = store.NewFirestoreStore(client, log)

	default:
		b.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	log.Info("whiteboard store ready", zap.String("backend", cfg.Store.Backend))
	return b, nil
}

// Close 연결을 역순으로 종료
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// ConnectGorm SQL 데이터베이스 연결 수립 (postgres | sqlite)
func ConnectGorm(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	// GORM 로거는 zap으로 출력
	gormLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.BackendPostgres:
		dialector = postgres.Open(cfg.DSN())
	case config.BackendSQLite:
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 커넥션 풀 설정
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == config.BackendSQLite {
		// sqlite는 단일 writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Close 데이터베이스 연결 종료
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ConnectMongo MongoDB 연결 후 Ping 확인
func ConnectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

// NewFirebaseApp Firebase 앱 초기화 (서비스 계정 JSON > 파일 > 에뮬레이터/ADC 순)
func NewFirebaseApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %w", err)
	}
	return app, nil
}
