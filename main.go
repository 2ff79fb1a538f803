package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"guildchat-backend/internal/database"
	"guildchat-backend/internal/email"
	"guildchat-backend/internal/handlers"
	"guildchat-backend/internal/invites"
	"guildchat-backend/internal/jwt"
	"guildchat-backend/internal/keyValue"
	"guildchat-backend/internal/members"
	"guildchat-backend/internal/messaging"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/notifications"
	"guildchat-backend/internal/relationships"
	"guildchat-backend/internal/snowflake"
	"guildchat-backend/internal/users"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func setupLogger(cfg *models.ConfigFile) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()

	if cfg.LogToFile {
		config.OutputPaths = []string{"app.log", "stdout"}
	} else {
		config.OutputPaths = []string{"stdout"}
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	config.Level = level

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}

func readConfigFile() (*models.ConfigFile, error) {
	var cfg models.ConfigFile

	configFile, err := os.Open("config.json")
	if err != nil {
		return nil, err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(bytes, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupRedis(cfg *models.ConfigFile) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: "",
		DB:       0,
	})

	err := rdb.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func main() {
	fmt.Println("Reading config file...")
	cfg, err := readConfigFile()
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Setting up logger...")
	sugar, err := setupLogger(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Connecting to database...")
	db, err := database.Setup(cfg)
	if err != nil {
		sugar.Fatal(err)
	}

	var redisClient *redis.Client
	if !cfg.SelfContained {
		fmt.Println("Connecting to redis...")
		redisClient, err = setupRedis(cfg)
		if err != nil {
			sugar.Fatal(err)
		}
	}

	err = snowflake.Setup(cfg.SnowflakeWorkerID)
	if err != nil {
		sugar.Fatal(err)
	}

	keyValue.Setup(sugar, redisClient, cfg.SelfContained)

	userStore := users.NewStore(sugar, db)
	notifyQueue := notifications.NewQueue(sugar, db, redisClient, cfg.SelfContained)
	memberEngine := members.New(sugar, db)
	inviteEngine := invites.New(sugar, db, memberEngine)
	relationshipEngine := relationships.New(sugar, db, userStore, notifyQueue)
	messagingEngine := messaging.New(sugar, db, memberEngine, relationshipEngine, notifyQueue)

	isHttps := cfg.TlsCert != "" && cfg.TlsKey != ""

	var httpProtocol string
	if isHttps {
		httpProtocol = "https"
	} else {
		httpProtocol = "http"
	}

	fullAddress := fmt.Sprintf("%s://%s:%s", httpProtocol, cfg.Address, cfg.Port)

	email.Setup(cfg, fullAddress)
	jwt.Setup(cfg.JwtSecret, isHttps)

	fmt.Printf("Server is running on %s\n", fullAddress)

	err = handlers.Setup(isHttps, cfg, sugar, db, handlers.Engines{
		Users:         userStore,
		Members:       memberEngine,
		Invites:       inviteEngine,
		Relationships: relationshipEngine,
		Messaging:     messagingEngine,
		Notifications: notifyQueue,
	})
	if err != nil {
		sugar.Fatal(err)
	}
}
