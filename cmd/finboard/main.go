// Command finboard runs the dashboard cache server: a background
// scheduler that keeps market-data feeds warm in the cache, plus the
// HTTP read and admin surface in front of it.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finboard/finboard/pkg/gateway"
	"github.com/finboard/finboard/pkg/guard"
	"github.com/finboard/finboard/pkg/logging"
	"github.com/finboard/finboard/pkg/provider"
	"github.com/finboard/finboard/pkg/scheduler"
	"github.com/finboard/finboard/pkg/store"
)

func main() {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnvBool("LOG_PRETTY", false),
		Output: os.Stderr,
	})
	logger := logging.NewLogger("main")

	// Configuration from environment
	port := getEnv("PORT", "8080")
	redisURL := getEnv("REDIS_URL", "")
	ttl := getEnvSeconds("CACHE_TTL", 60*time.Second)
	staleFor := getEnvSeconds("STALE_TTL", store.DefaultStaleFor)
	activeInterval := getEnvSeconds("ACTIVE_INTERVAL", 30*time.Second)
	inactiveInterval := getEnvSeconds("INACTIVE_INTERVAL", 5*time.Minute)

	// Cache store and refresh guard: Redis when configured, otherwise
	// the in-process implementations.
	var (
		st store.Store
		g  guard.Guard
	)
	if redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("redis_url", redisURL).Msg("Connected to Redis")
		st = store.NewRedis(redisClient, staleFor)
		g = guard.NewRedisGuard(redisClient, guard.DefaultLease)
	} else {
		logger.Info().Msg("No REDIS_URL configured, using in-memory cache")
		st = store.NewMemory(staleFor)
		g = guard.NewKeyGuard()
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.RefreshTimeout = getEnvSeconds("REFRESH_TIMEOUT", schedCfg.RefreshTimeout)
	sched := scheduler.New(st, g, schedCfg)

	feeds, err := parseFeeds(getEnv("FEEDS", ""))
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid FEEDS configuration")
	}
	if len(feeds) == 0 {
		logger.Warn().Msg("No feeds configured, scheduler has nothing to refresh")
	}

	throttle := provider.NewThrottler(provider.DefaultThrottleConfig())
	for _, feed := range feeds {
		p := provider.WithThrottle(provider.NewHTTP(feed.url, nil), throttle)
		p = provider.WithBreaker(p, feed.key, provider.DefaultBreakerConfig(), logging.NewLogger("breaker"))

		err := sched.Register(scheduler.Task{
			Key:              feed.key,
			Provider:         p,
			TTL:              ttl,
			ActiveInterval:   activeInterval,
			InactiveInterval: inactiveInterval,
			Active:           feed.active,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("key", feed.key).Msg("Failed to register feed")
		}
		logger.Info().Str("key", feed.key).Str("url", feed.url).Str("market", feed.market).Msg("Feed registered")
	}

	sched.Start()
	defer sched.Stop()

	gw := gateway.New(st)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           gw.Handler(sched),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
}

// feed is one entry of the FEEDS table.
type feed struct {
	key    string
	url    string
	market string
	active scheduler.ActiveFunc
}

// parseFeeds parses the FEEDS environment variable:
//
//	FEEDS="gold_price=https://api.example.com/gold|metals;sh_index=https://api.example.com/sh|cn"
//
// Entries are separated by ';'. Each entry is key=url, optionally
// followed by |market where market selects the trading hours preset:
// cn, us, metals or always (the default).
func parseFeeds(spec string) ([]feed, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	var feeds []feed
	seen := make(map[string]bool)
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		key, rest, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.TrimSpace(rest) == "" {
			return nil, fmt.Errorf("feed entry %q is not key=url", entry)
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate feed key %q", key)
		}
		seen[key] = true

		url, market, _ := strings.Cut(rest, "|")
		url = strings.TrimSpace(url)
		market = strings.TrimSpace(market)
		if market == "" {
			market = "always"
		}
		active, err := marketHours(market)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", key, err)
		}

		feeds = append(feeds, feed{key: key, url: url, market: market, active: active})
	}
	return feeds, nil
}

// marketHours maps a market preset name to its trading-hours check.
// Sessions are expressed in UTC+8, where this dashboard's users live.
func marketHours(market string) (scheduler.ActiveFunc, error) {
	loc := time.FixedZone("UTC+8", 8*3600)
	switch market {
	case "always":
		return nil, nil
	case "cn":
		// A-shares: 9:30-11:30 and 13:00-15:00, weekdays.
		return scheduler.Hours{
			Sessions: []scheduler.Session{
				{Open: scheduler.TimeOfDay{Hour: 9, Minute: 30}, Close: scheduler.TimeOfDay{Hour: 11, Minute: 30}},
				{Open: scheduler.TimeOfDay{Hour: 13}, Close: scheduler.TimeOfDay{Hour: 15}},
			},
			WeekdaysOnly: true,
			Location:     loc,
		}.Active, nil
	case "us":
		// US equities seen from UTC+8 cross midnight: 21:30-04:00.
		return scheduler.Hours{
			Sessions: []scheduler.Session{
				{Open: scheduler.TimeOfDay{Hour: 21, Minute: 30}, Close: scheduler.TimeOfDay{Hour: 4}},
			},
			WeekdaysOnly: true,
			Location:     loc,
		}.Active, nil
	case "metals":
		// Spot metals trade around the clock on weekdays.
		return scheduler.Hours{
			Sessions: []scheduler.Session{
				{Open: scheduler.TimeOfDay{}, Close: scheduler.TimeOfDay{Hour: 23, Minute: 59}},
			},
			WeekdaysOnly: true,
			Location:     loc,
		}.Active, nil
	default:
		return nil, fmt.Errorf("unknown market %q (want cn, us, metals or always)", market)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
