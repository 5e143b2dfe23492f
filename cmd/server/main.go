package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/api"
	"github.com/quantfold/position-engine/internal/correlation"
	"github.com/quantfold/position-engine/internal/margin"
	"github.com/quantfold/position-engine/internal/metrics"
	"github.com/quantfold/position-engine/internal/positions"
	"github.com/quantfold/position-engine/internal/securities"
	"github.com/quantfold/position-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Security universe, loaded from the store ---
	universe := securities.NewUniverse()
	if secs, err := st.ListSecurities(context.Background()); err != nil {
		slog.Error("failed to load securities", "err", err)
		os.Exit(1)
	} else {
		for _, sec := range secs {
			if err := universe.Add(sec); err != nil {
				slog.Error("failed to load security", "symbol", sec.Symbol, "err", err)
				os.Exit(1)
			}
		}
		slog.Info("universe loaded", "securities", len(secs))
	}

	// --- Buying power wiring ---
	fees := envFeeModel()
	secModel := margin.NewSecurityModel(universe, fees)
	defaultDesc := positions.NewDefaultDescriptor(secModel)

	manager, err := positions.NewManager(universe, defaultDesc)
	if err != nil {
		slog.Error("manager setup failed", "err", err)
		os.Exit(1)
	}
	defer manager.Close()

	engine := margin.NewEngine(envDecimal("FREE_BUYING_POWER_PERCENT", decimal.Zero))

	account := securities.NewAccount(universe, envDecimal("STARTING_CASH", decimal.NewFromInt(100000)), "USD")
	account.SetReservedFunc(func() decimal.Decimal {
		groups, err := manager.Groups()
		if err != nil {
			slog.Error("group resolution failed", "err", err)
			return decimal.Zero
		}
		reserved, err := engine.TotalReservedBuyingPower(groups)
		if err != nil {
			slog.Error("reserved buying power computation failed", "err", err)
			return decimal.Zero
		}
		return reserved
	})

	// --- Exposure limits ---
	maxPerSymbol := envDecimal("MAX_SYMBOL_EXPOSURE", decimal.NewFromInt(10000))
	maxCorrelated := envDecimal("MAX_UNDERLYING_EXPOSURE", decimal.NewFromInt(50000))
	limiter := correlation.NewExposureLimiter(maxPerSymbol, maxCorrelated)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- API service ---
	svc := api.NewService(st, universe, account, manager, engine, limiter, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"position-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time evaluation events.
		r.Get("/ws", wsHub.HandleWS)

		// Universe management.
		r.Get("/securities", svc.ListSecurities)
		r.Post("/securities", svc.CreateSecurity)
		r.Get("/securities/{symbol}", svc.GetSecurity)
		r.Delete("/securities/{symbol}", svc.DeleteSecurity)
		r.Put("/securities/{symbol}/holdings", svc.UpdateHoldings)
		r.Put("/securities/{symbol}/price", svc.UpdatePrice)

		// Position groups.
		r.Get("/groups", svc.ListGroups)

		// Order evaluation.
		r.Post("/orders/check", svc.CheckOrder)
		r.Post("/orders/max-quantity", svc.MaxQuantity)
		r.Post("/orders/impact", svc.OrderImpact)

		// Portfolio and audit queries.
		r.Get("/portfolio", svc.GetPortfolio)
		r.Get("/evaluations/{symbol}", svc.ListEvaluations)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("position-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down position-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("position-engine stopped")
}

// envDecimal reads a decimal from the environment, falling back to def on
// absence or parse failure.
func envDecimal(key string, def decimal.Decimal) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		slog.Warn("invalid decimal in environment", "key", key, "value", raw)
		return def
	}
	return d
}

// envFeeModel builds the fee model from PER_UNIT_FEE / MINIMUM_FEE. Both
// unset means no fees.
func envFeeModel() securities.FeeModel {
	perUnit := envDecimal("PER_UNIT_FEE", decimal.Zero)
	minimum := envDecimal("MINIMUM_FEE", decimal.Zero)
	if perUnit.IsZero() && minimum.IsZero() {
		return securities.ZeroFee{}
	}
	return securities.PerUnitFee{PerUnit: perUnit, Minimum: minimum}
}
