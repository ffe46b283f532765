package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/cloudinary"
	"qrattend/internal/config"
	"qrattend/internal/evidence"
	"qrattend/internal/handler"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/justification"
	"qrattend/internal/metrics"
	"qrattend/internal/notify"
	"qrattend/internal/queue"
	"qrattend/internal/store"
	"qrattend/internal/store/inmem"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

type stores struct {
	att   attendance.Store
	justs justification.Store
	notes notify.Store
}

func openStores(ctx context.Context, cfg config.App) (stores, *store.DB, error) {
	if cfg.StoreBackend == "memory" {
		log.Println("using in-memory store, data is lost on restart")
		db := inmem.New()
		return stores{
			att:   inmem.NewAttendanceRepository(db),
			justs: inmem.NewJustificationRepository(db),
			notes: inmem.NewNotificationRepository(db),
		}, nil, nil
	}

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		db.Close()
		return stores{}, nil, err
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			db.Close()
			return stores{}, nil, err
		}
	}
	return stores{
		att:   attendance.NewRepository(db.Client),
		justs: justification.NewRepository(db.Client),
		notes: notify.NewRepository(db.Client),
	}, db, nil
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, db, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	needRedis := cfg.QueueBackend != "memory" || cfg.RateLimitBackend == "redis"

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	att := attendance.NewService(st.att, attendance.Options{
		DefaultTTL: cfg.CodeTTL,
		MaxTTL:     cfg.MaxCodeTTL,
		Location:   cfg.Location(),
		Publisher:  q,
	})
	justs := justification.NewService(st.justs, q, nil)
	notes := notify.NewService(st.notes, nil)

	// Without a shared queue nobody else would drain the events.
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := notify.Run(ctx, q, notes); err != nil {
				log.Printf("notification consumer: %v", err)
			}
		}()
	}

	var files evidence.Store = evidence.StubStore{}
	if cfg.CloudinaryEnabled() {
		files = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured, evidence references are stub paths")
	}

	var general, submit httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		general = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
		submit = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.SubmitRatePerMin)
	} else {
		general = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		submit = httpmiddleware.NewTokenBucket(cfg.SubmitRatePerMin, cfg.SubmitRatePerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     splitList(cfg.CORSOrigins),
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: cfg.CORSOrigins != "*",
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(metrics.GinMiddleware())
	r.Use(httpmiddleware.RateLimit(general, "api"))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok", "store": cfg.StoreBackend}
		if db != nil {
			dbHealthy := db.Healthy(c.Request.Context())
			body["db"] = dbHealthy
			if !dbHealthy {
				status = http.StatusServiceUnavailable
			}
		}
		if needRedis {
			redisHealthy := redisClient.Healthy(c.Request.Context())
			body["redis"] = redisHealthy
			if !redisHealthy {
				status = http.StatusServiceUnavailable
			}
		}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	signer := auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL)
	handler.New(att, justs, notes, files).Register(r, signer, httpmiddleware.RateLimit(submit, "submit"))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	log.Println("Server exited")
	return nil
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
