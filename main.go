package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"syncboard/api"
	"syncboard/board"
	"syncboard/internal/consts"
	"syncboard/storage"
	"syncboard/stream"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	logger.SetLevel(log.GetLevel())

	auth := buildAuth()

	store := storage.NewMemory()
	hub := stream.NewHub(logger)
	ctx := context.Background()

	// Optional redis bridge replicates event frames across instances.
	var publisher board.Publisher = hub
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc := redis.NewClient(parseRedisOptions(redisConn))
		bridge := stream.NewBridge(hub, rc, consts.EventsChannel, logger)
		go bridge.Run(ctx)
		publisher = bridge
	}

	engine := board.NewEngine(store, publisher, logger)

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr != "" {
		err := storage.Provision(ctx, connStr,
			[]string{os.Getenv("TASKS_TABLE")},
			[]string{os.Getenv("ACTIVITY_QUEUE")})
		if err != nil {
			log.Fatalf("provision storage: %v", err)
		}
	}

	// Optional table mirror keeps a durable copy of the board and reloads it
	// on startup.
	if tasksTable := os.Getenv("TASKS_TABLE"); connStr != "" && tasksTable != "" {
		mirror, err := storage.NewTableMirror(connStr, tasksTable)
		if err != nil {
			log.Fatalf("table mirror: %v", err)
		}
		tasks, err := mirror.LoadTasks(ctx)
		if err != nil {
			log.Fatalf("load tasks: %v", err)
		}
		store.Seed(tasks)
		engine.EnableMirror(mirror)
		log.WithField("tasks", len(tasks)).Info("board restored from table storage")
	}

	// Optional queue receives every activity record for downstream consumers.
	if queueName := os.Getenv("ACTIVITY_QUEUE"); connStr != "" && queueName != "" {
		queue, err := storage.NewActivityQueue(connStr, queueName)
		if err != nil {
			log.Fatalf("activity queue: %v", err)
		}
		engine.EnableArchive(queue)
	}
	defer engine.Shutdown()

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, engine, hub, auth, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// buildAuth configures token handling. A shared secret enables the built-in
// register/login flow; without one an external identity provider's JWKS is
// required and the service only validates tokens.
func buildAuth() *api.Auth {
	if secret := os.Getenv("AUTH_JWT_SECRET"); secret != "" {
		return api.NewAuth([]byte(secret), nil, os.Getenv("AUTH_AUDIENCE"), os.Getenv("AUTH_ISSUER"))
	}

	jwtAudience := os.Getenv("AUTH_AUDIENCE")
	domain := os.Getenv("AUTH_DOMAIN")
	if jwtAudience == "" || domain == "" {
		log.Fatal("missing auth config: set AUTH_JWT_SECRET or AUTH_AUDIENCE and AUTH_DOMAIN")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(nil, jwks, jwtAudience, "https://"+domain+"/")
}

// parseRedisOptions accepts a redis URL or an Azure style
// "host:port,password=...,ssl=true" connection string.
func parseRedisOptions(connStr string) *redis.Options {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts
	}
	parts := strings.Split(connStr, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
