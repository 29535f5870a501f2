package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"interview-prep-api/internal/auth"
	"interview-prep-api/internal/blacklist"
	"interview-prep-api/internal/db"
	"interview-prep-api/internal/document"
	"interview-prep-api/internal/interview"
	"interview-prep-api/internal/maintenance"
	"interview-prep-api/internal/observability"
	"interview-prep-api/internal/security"
	"interview-prep-api/internal/session"
	"interview-prep-api/internal/token"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

// Build wires the application from environment configuration and returns
// it as a ready http.Handler. Callers own the Runtime and must Close it.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	redisURL, err := mustEnv("REDIS_URL")
	if err != nil {
		return nil, err
	}
	llmAPIKey, err := mustEnv("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOptions)

	codec := token.NewCodec(
		jwtSecret,
		envOrDefault("JWT_ISSUER", "interview-prep-api"),
		envOrDefault("JWT_AUDIENCE", "interview-prep-web"),
	).WithTTL(
		envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
	)

	maxLoginAttempts := envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5)
	lockoutDuration := envMinutesOrDefault("LOGIN_LOCK_MINUTES", 15)

	authRepo := auth.NewRepository(database)
	denylist := blacklist.New(redisClient)
	authService := auth.NewService(authRepo, codec, denylist, logger).
		WithSecurityConfig(maxLoginAttempts, lockoutDuration)

	tracker := security.NewTracker(maxLoginAttempts, lockoutDuration)
	trackerCtx, stopTracker := context.WithCancel(context.Background())
	go tracker.Run(trackerCtx)

	authHandler := auth.NewHandler(authService, tracker, logger, os.Getenv("ADMIN_CREDIT_KEY"))
	authn := auth.NewAuthenticator(authService, logger)

	sessionRepo := session.NewRepository(database)
	sessionHandler := session.NewHandler(sessionRepo)

	llmClient, err := interview.NewClient(
		llmAPIKey,
		os.Getenv("OPENAI_MODEL"),
		os.Getenv("OPENAI_BASE_URL"),
	)
	if err != nil {
		stopTracker()
		_ = database.Close()
		return nil, fmt.Errorf("init llm client: %w", err)
	}
	interviewHandler := interview.NewHandler(llmClient, authService)

	documentHandler := document.NewHandler()

	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		sessionRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("SESSION_RETENTION_DAYS", 30),
		envIntOrDefault("CLEANUP_BATCH_SIZE", 500),
	)

	authLimiter := security.NewRequestLimiter(
		envIntOrDefault("AUTH_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("AUTH_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	mux := http.NewServeMux()

	mux.Handle("POST /auth/signup", authLimiter.Middleware(http.HandlerFunc(authHandler.Signup)))
	mux.Handle("POST /auth/login", authLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.Handle("POST /auth/logout", authn.Require(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /auth/profile", authn.Require(http.HandlerFunc(authHandler.GetProfile)))
	mux.Handle("PUT /auth/profile", authn.Require(http.HandlerFunc(authHandler.UpdateProfile)))
	mux.Handle("POST /auth/credits/check", authn.Require(http.HandlerFunc(authHandler.CheckCredits)))
	mux.Handle("POST /auth/credits/deduct", authn.Require(http.HandlerFunc(authHandler.DeductCredits)))
	mux.Handle("POST /auth/credits/add", authn.Require(http.HandlerFunc(authHandler.AddCredits)))

	mux.Handle("POST /sessions", authn.Require(http.HandlerFunc(sessionHandler.CreateSession)))
	mux.Handle("GET /sessions", authn.Require(http.HandlerFunc(sessionHandler.ListSessions)))
	mux.Handle("GET /sessions/search", authn.Require(http.HandlerFunc(sessionHandler.SearchSessions)))
	mux.Handle("GET /sessions/{id}", authn.Require(http.HandlerFunc(sessionHandler.GetSession)))
	mux.Handle("PUT /sessions/{id}", authn.Require(http.HandlerFunc(sessionHandler.UpdateSession)))
	mux.Handle("DELETE /sessions/{id}", authn.Require(http.HandlerFunc(sessionHandler.DeleteSession)))
	mux.Handle("DELETE /sessions/{id}/permanent", authn.Require(http.HandlerFunc(sessionHandler.PermanentlyDeleteSession)))
	mux.Handle("POST /sessions/{id}/questions", authn.Require(http.HandlerFunc(sessionHandler.AddQuestions)))
	mux.Handle("PUT /sessions/{id}/answers", authn.Require(http.HandlerFunc(sessionHandler.UpdateAnswers)))
	mux.Handle("GET /sessions/{id}/stats", authn.Require(http.HandlerFunc(sessionHandler.GetStats)))
	mux.Handle("POST /sessions/{id}/auto-name", authn.Require(http.HandlerFunc(sessionHandler.AutoName)))

	mux.Handle("POST /interview/generate-questions", authn.Require(http.HandlerFunc(interviewHandler.GenerateQuestions)))
	mux.Handle("POST /interview/generate-answer", authn.Require(http.HandlerFunc(interviewHandler.GenerateAnswer)))
	mux.Handle("POST /interview/generate-bulk-answers", authn.Require(http.HandlerFunc(interviewHandler.GenerateBulkAnswers)))

	mux.Handle("POST /files/upload", authn.Require(http.HandlerFunc(documentHandler.Upload)))
	mux.Handle("POST /export/pdf", authn.Require(http.HandlerFunc(documentHandler.ExportPDF)))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database, redisClient))

	handler := observability.RecoverMiddleware(logger,
		observability.RequestLoggingMiddleware(logger,
			observability.SecurityHeadersMiddleware(mux)))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			stopTracker()
			observability.FlushSentry()
			_ = redisClient.Close()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB, redisClient redis.UniversalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		// Redis being down degrades token revocation, not availability.
		if err := redisClient.Ping(ctx).Err(); err != nil {
			body["blacklist"] = "unavailable"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
