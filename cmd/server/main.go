package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/playhall/backend/docs"
	"github.com/playhall/backend/internal/audit"
	"github.com/playhall/backend/internal/database"
	"github.com/playhall/backend/internal/handlers"
	mW "github.com/playhall/backend/internal/middleware"
	"github.com/playhall/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Game Transaction Engine API
// @version 1.0
// @description API for virtual-currency casino games with atomic settlement
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("games.case_secret", "GAMES_CASE_SECRET")
	viper.BindEnv("games.min_bet", "GAMES_MIN_BET")
	viper.BindEnv("games.max_bet", "GAMES_MAX_BET")
	viper.BindEnv("games.bonus_amount", "GAMES_BONUS_AMOUNT")
	viper.BindEnv("games.bonus_cooldown", "GAMES_BONUS_COOLDOWN")
	viper.BindEnv("games.session_ttl", "GAMES_SESSION_TTL")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var sessionStore services.SessionStore
	if redisClient != nil {
		sessionStore = services.NewRedisSessionStore(redisClient)
	} else {
		log.Println("Using in-memory session store")
		sessionStore = services.NewMemorySessionStore()
	}

	outcomeSource := services.NewCryptoSource()
	auditLogger := audit.NewAuditLogger()

	ledgerService := services.NewLedgerService(db)
	idempotencyService := services.NewIdempotencyService(redisClient)
	rouletteService := services.NewRouletteService(outcomeSource)
	blackjackService := services.NewBlackjackService(sessionStore, outcomeSource)
	casesService := services.NewCasesService(outcomeSource)
	settlementService := services.NewSettlementService(
		ledgerService, rouletteService, blackjackService, casesService, auditLogger)

	gamesHandler := handlers.NewGamesHandler(settlementService, ledgerService, idempotencyService)
	userHandler := handlers.NewUserHandler(ledgerService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			// Game endpoints
			r.Post("/games/roulette/bet", gamesHandler.RouletteBet)
			r.Post("/games/blackjack/start", gamesHandler.BlackjackStart)
			r.Post("/games/blackjack/action", gamesHandler.BlackjackAction)
			r.Get("/games/cases", gamesHandler.ListCases)
			r.Post("/games/cases/open", gamesHandler.OpenCase)

			// User endpoints
			r.Post("/user/daily-bonus", gamesHandler.DailyBonus)
			r.Get("/user/balance", userHandler.GetBalance)
			r.Get("/user/transactions", userHandler.GetTransactions)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
