package config

import "time"

// AppConfig holds runtime configuration for the API service.
type AppConfig struct {
	Environment   string
	Addr          string
	DatabaseURL   string
	MigrationsDir string

	SessionSecret string
	SessionTTL    time.Duration
	LoginTokenTTL time.Duration
	CookieName    string
	CookieSecure  bool
	AppURL        string

	MaxTeams int

	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageUseSSL    bool
	AvatarBucket     string
	SampleBucket     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
}

// Load constructs an AppConfig from environment variables.
func Load() AppConfig {
	return AppConfig{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("API_ADDR", ":4000"),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://teamspace:teamspace@db:5432/teamspace?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "./db/migrations"),

		SessionSecret: GetString("SESSION_SECRET", "supersecuresecret"),
		SessionTTL:    time.Duration(GetInt("SESSION_TTL_HOURS", 24*7)) * time.Hour,
		LoginTokenTTL: time.Duration(GetInt("LOGIN_TOKEN_TTL_MIN", 15)) * time.Minute,
		CookieName:    GetString("SESSION_COOKIE_NAME", "ts_session"),
		CookieSecure:  GetBool("SESSION_COOKIE_SECURE", true),
		AppURL:        GetString("APP_URL", "http://localhost:3000"),

		MaxTeams: GetInt("MAX_TEAMS", 50),

		StorageEndpoint:  GetString("STORAGE_ENDPOINT", "minio:9000"),
		StorageAccessKey: GetString("STORAGE_ACCESS_KEY", "minioadmin"),
		StorageSecretKey: GetString("STORAGE_SECRET_KEY", "minioadmin"),
		StorageUseSSL:    GetBool("STORAGE_USE_SSL", false),
		AvatarBucket:     GetString("AVATAR_BUCKET", "avatars"),
		SampleBucket:     GetString("SAMPLE_BUCKET", "samples"),

		RedisAddr:     GetString("REDIS_ADDR", ""),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),
		CacheTTL:      time.Duration(GetInt("CACHE_TTL_SECONDS", 600)) * time.Second,
	}
}
