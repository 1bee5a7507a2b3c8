package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"novelhub/internal/auth"
	"novelhub/internal/cache"
	"novelhub/internal/discovery"
	"novelhub/internal/library"
	"novelhub/internal/notify"
	"novelhub/internal/novels"
	"novelhub/internal/realtime"
	"novelhub/internal/reviews"
	"novelhub/pkg/database"
	"novelhub/pkg/models"
	"novelhub/pkg/utils"
)

func main() {
	cfg := database.DefaultConfig()
	db := database.MustOpen(cfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	cacheCfg := utils.LoadCacheConfig()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cacheCfg.RedisAddr,
		Password: cacheCfg.RedisPassword,
	})
	defer rdb.Close()

	cacheManager := cache.NewManager(cache.NewMemoryTier(), cache.NewRedisTier(rdb))
	cacheManager.SetTTL(cache.TypeDiscovery, cacheCfg.DiscoveryTTL)

	optimizer := discovery.NewSQLOptimizer(db, cacheManager)
	discoverySvc := discovery.NewDataService(cacheManager, optimizer).
		WithTTLs(cacheCfg.DiscoveryTTL, cacheCfg.ErrorTTL)

	router := gin.Default()

	// Optional: avoid "trusted all proxies" warning
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	// Start TCP event feed first (so you notice binding errors early)
	hub := realtime.NewHub()
	router.GET("/ws", realtime.WSHandler(hub))
	tcpSrv := realtime.NewServer(":7070", hub)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": cfg.Path})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "not_ready",
				"db_error":    err.Error(),
				"tcp_clients": stats.TCPClients,
				"ws_clients":  stats.WSClients,
			})
			return
		}

		// Redis being down is degraded, not dead: the memory tier still serves.
		redisStatus := "ok"
		if err := rdb.Ping(ctx).Err(); err != nil {
			redisStatus = err.Error()
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"db":          "ok",
			"redis":       redisStatus,
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})

	router.GET("/debug", func(c *gin.Context) {
		stats := hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"db":          cfg.Path,
			"cache":       cacheManager.Stats(),
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})

	// Novels catalog (public)
	novelRepo := novels.NewRepo(db)
	novelHandler := novels.NewHandler(novelRepo)
	novelHandler.RegisterRoutes(router.Group("/novels"))

	// Discovery (public)
	discoveryHandler := discovery.NewHandler(discoverySvc)
	discoveryHandler.RegisterRoutes(router.Group("/discovery"))

	// Auth
	authCfg := utils.LoadAuthConfig()
	tokenSvc := auth.TokenService{
		Secret:   []byte(authCfg.JWTSecret),
		Issuer:   authCfg.JWTIssuer,
		Duration: authCfg.JWTDuration,
	}
	authRepo := auth.NewRepo(db)
	authHandler := auth.NewHandler(authRepo, tokenSvc)
	authHandler.RegisterRoutes(router.Group("/auth"))

	// Reviews (public reads)
	reviewRepo := reviews.NewRepo(db)
	reviewHandler := reviews.NewHandler(reviewRepo, discoverySvc)
	reviewHandler.RegisterPublicRoutes(&router.RouterGroup)

	// Protected routes
	protected := router.Group("/users")
	protected.Use(auth.AuthMiddleware(tokenSvc, authRepo))

	protected.GET("/me", func(c *gin.Context) {
		claims := auth.MustGetClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"id":       claims.UserID,
			"username": claims.Username,
			"email":    claims.Email,
		})
	})

	// Personalized discovery seeded from the profile the middleware loaded
	protected.GET("/discovery", func(c *gin.Context) {
		claims := auth.MustGetClaims(c)
		var prefs *models.ContentPreferences
		if reader := auth.MustGetReader(c); reader != nil && len(reader.FavoriteGenres) > 0 {
			prefs = &models.ContentPreferences{FavoriteGenres: reader.FavoriteGenres}
		}
		c.JSON(http.StatusOK, discoverySvc.GetPersonalizedDiscovery(c.Request.Context(), claims.UserID, prefs))
	})

	// Library (protected)
	libRepo := library.NewRepo(db)
	libHandler := library.NewHandler(libRepo, hub, discoverySvc)
	libHandler.RegisterRoutes(protected)

	// Reviews (protected writes)
	reviewHandler.RegisterProtectedRoutes(protected)

	httpSrv := &http.Server{
		Addr:    ":8080",
		Handler: router,
	}

	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpSrv.Run(); err != nil {
			errCh <- err
		}
	}()

	// Optional UDP chapter notifications
	var notifySrv *notify.Server
	if addr := os.Getenv("NOVELHUB_NOTIFY_ADDR"); addr != "" {
		notifySrv = notify.NewServer(addr, notify.NewRegistry(), log.Default())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := notifySrv.Run(); err != nil {
				log.Printf("udp notify stopped: %v", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Println("HTTP API server listening on :8080")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if err := tcpSrv.Close(); err != nil {
		log.Printf("tcp shutdown error: %v", err)
	}
	if notifySrv != nil {
		if err := notifySrv.Close(); err != nil {
			log.Printf("udp shutdown error: %v", err)
		}
	}

	wg.Wait()
	log.Println("servers stopped")
}
