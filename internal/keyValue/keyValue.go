// Package keyValue is a small expiring key/value store backed by redis,
// with an in-process map fallback for self-contained deployments.
package keyValue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type entry struct {
	value   string
	expires time.Time
}

var mutex sync.RWMutex
var hashmap = make(map[string]entry)

var sugar *zap.SugaredLogger
var redisClient *redis.Client
var redisCtx = context.Background()
var selfContained = true

func Setup(_sugar *zap.SugaredLogger, _redisClient *redis.Client, _selfContained bool) {
	sugar = _sugar
	redisClient = _redisClient
	selfContained = _selfContained

	if selfContained {
		go expireLocalKeys()
	}
}

func expireLocalKeys() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		mutex.Lock()
		for key, e := range hashmap {
			if e.expires.Before(time.Now()) {
				delete(hashmap, key)
			}
		}
		mutex.Unlock()
	}
}

func Get(key string) (string, error) {
	if selfContained {
		mutex.RLock()
		defer mutex.RUnlock()

		e := hashmap[key]
		if !e.expires.IsZero() && e.expires.Before(time.Now()) {
			return "", nil
		}
		return e.value, nil
	}

	value, err := redisClient.Get(redisCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, nil
}

// GetDel reads a key and removes it in one step, used for one-shot tokens.
func GetDel(key string) (string, error) {
	if selfContained {
		mutex.Lock()
		defer mutex.Unlock()

		e := hashmap[key]
		delete(hashmap, key)

		if !e.expires.IsZero() && e.expires.Before(time.Now()) {
			return "", nil
		}
		return e.value, nil
	}

	value, err := redisClient.GetDel(redisCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, nil
}

func Set(key string, value string, expires time.Duration) error {
	if selfContained {
		mutex.Lock()
		defer mutex.Unlock()

		hashmap[key] = entry{value, time.Now().Add(expires)}
		return nil
	}

	sugar.Debugf("Setting key [%s] in redis", key)
	_, err := redisClient.Set(redisCtx, key, value, expires).Result()
	return err
}
