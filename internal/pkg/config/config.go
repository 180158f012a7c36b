package config

import "time"

// Storage selects and configures the object store.
type Storage struct {
	Provider           string
	LocalRoot          string
	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string
}

// Redis holds the connection and key settings shared by API and worker.
type Redis struct {
	Addr      string
	Password  string
	DB        int
	QueueName string
}

// Render holds rendering settings.
type Render struct {
	FontDirs         []string
	JPEGQuality      int
	AssetConcurrency int
	HTTPAssets       bool
	HTTPAssetTimeout time.Duration
}

// API is the configuration of cmd/api.
type API struct {
	HTTPPort        string
	DatabaseURL     string
	AutoMigrate     bool
	Redis           Redis
	Storage         Storage
	Render          Render
	CORSOrigins     []string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// Worker is the configuration of cmd/worker.
type Worker struct {
	DatabaseURL     string
	AutoMigrate     bool
	Redis           Redis
	Storage         Storage
	Render          Render
	PopTimeout      time.Duration
	ShutdownTimeout time.Duration
}

const DefaultQueueName = "cardpress:jobs"

func loadRedis(m *missing) Redis {
	return Redis{
		Addr:      m.require("REDIS_ADDR"),
		Password:  Env("REDIS_PASSWORD", ""),
		DB:        IntEnv("REDIS_DB", 0),
		QueueName: Env("JOB_QUEUE_NAME", DefaultQueueName),
	}
}

// LoadStorage reads STORAGE_PROVIDER and the settings of the chosen provider.
func LoadStorage() (Storage, error) {
	var m missing
	s := loadStorage(&m)
	return s, m.err()
}

func loadStorage(m *missing) Storage {
	s := Storage{Provider: Env("STORAGE_PROVIDER", "localfs")}
	switch s.Provider {
	case "gdrive":
		s.GDriveClientID = m.require("GDRIVE_CLIENT_ID")
		s.GDriveClientSecret = m.require("GDRIVE_CLIENT_SECRET")
		s.GDriveRefreshToken = m.require("GDRIVE_REFRESH_TOKEN")
		s.GDriveFolderID = Env("GDRIVE_FOLDER_ID", "")
	default:
		s.LocalRoot = m.require("STORAGE_LOCAL_ROOT")
	}
	return s
}

func loadRender() Render {
	return Render{
		FontDirs:         CSVEnv("FONT_DIRS", nil),
		JPEGQuality:      IntEnv("JPEG_QUALITY", 90),
		AssetConcurrency: IntEnv("ASSET_CONCURRENCY", 4),
		HTTPAssets:       BoolEnv("HTTP_ASSETS_ENABLED", false),
		HTTPAssetTimeout: DurationEnv("HTTP_ASSET_TIMEOUT", 15*time.Second),
	}
}

// LoadAPI reads the API configuration. Every missing required key is listed
// in the returned error.
func LoadAPI() (API, error) {
	var m missing
	cfg := API{
		HTTPPort:    Env("HTTP_PORT", "8080"),
		DatabaseURL: m.require("DATABASE_URL"),
		AutoMigrate: BoolEnv("AUTO_MIGRATE", true),
		Redis:       loadRedis(&m),
		Storage:     loadStorage(&m),
		Render:      loadRender(),
		CORSOrigins: CSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:8081",
			"http://localhost:5173",
		}),
		MaxUploadBytes:  int64(IntEnv("MAX_UPLOAD_MB", 32)) << 20,
		ShutdownTimeout: DurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
	return cfg, m.err()
}

// LoadWorker reads the worker configuration.
func LoadWorker() (Worker, error) {
	var m missing
	cfg := Worker{
		DatabaseURL:     m.require("DATABASE_URL"),
		AutoMigrate:     BoolEnv("AUTO_MIGRATE", true),
		Redis:           loadRedis(&m),
		Storage:         loadStorage(&m),
		Render:          loadRender(),
		PopTimeout:      DurationEnv("QUEUE_POP_TIMEOUT", 30*time.Second),
		ShutdownTimeout: DurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
	return cfg, m.err()
}
