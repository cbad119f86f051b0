// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/heptiolabs/healthcheck"
	"github.com/united-manufacturing-hub/sample-relay/internal"
	"github.com/united-manufacturing-hub/sample-relay/internal/messaging"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"go.uber.org/zap"
)

var buildtime string

func main() {
	internal.InitLogging()
	zap.S().Infof("This is sample-responder build date: %s", buildtime)
	internal.InitDebugTrace()
	internal.InitPrometheus()

	pgCfg, err := loadPostgresConfig()
	if err != nil {
		zap.S().Fatalf("Failed to load postgres configuration: %s", err)
	}
	mqttCfg, err := loadMQTTConfig()
	if err != nil {
		zap.S().Fatalf("Failed to load MQTT configuration: %s", err)
	}
	cacheOpts, lruSize, err := loadCacheConfig()
	if err != nil {
		zap.S().Fatalf("Failed to load cache configuration: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db, err := connectPostgres(ctx, pgCfg)
	if err != nil {
		zap.S().Fatalf("Failed to connect to postgres: %s", err)
	}

	cache := internal.NewTieredCache(cacheOpts)
	h, err := newHandler(db, cache, lruSize)
	if err != nil {
		zap.S().Fatalf("%s", err)
	}

	r, err := setupMQTT(mqttCfg, h)
	if err != nil {
		zap.S().Fatalf("%s", err)
	}

	liveness := map[string]healthcheck.Check{"database": db.HealthCheck}
	readiness := map[string]healthcheck.Check{
		"database":   db.HealthCheck,
		"mqtt-check": checkConnected(r.client),
	}
	if cacheOpts.RedisAddr != "" {
		readiness["redis"] = func() error {
			if !cache.IsRedisAvailable(context.Background()) {
				return errors.New("redis is not available")
			}
			return nil
		}
	}
	internal.InitHealthCheck(readiness, liveness)

	gs := internal.NewGracefulShutdown(func() error {
		cancel()
		r.Close()
		db.Close()
		return cache.Close()
	})
	gs.Wait()
}

func loadPostgresConfig() (cfg postgresConfig, err error) {
	if cfg.Host, err = env.GetAsString("POSTGRES_HOST", false, "db"); err != nil {
		return cfg, err
	}
	if cfg.Port, err = env.GetAsInt("POSTGRES_PORT", false, 5432); err != nil {
		return cfg, err
	}
	if cfg.User, err = env.GetAsString("POSTGRES_USER", true, ""); err != nil {
		return cfg, err
	}
	if cfg.Password, err = env.GetAsString("POSTGRES_PASSWORD", true, ""); err != nil {
		return cfg, err
	}
	if cfg.Database, err = env.GetAsString("POSTGRES_DATABASE", true, ""); err != nil {
		return cfg, err
	}
	if cfg.SSLMode, err = env.GetAsString("POSTGRES_SSL_MODE", false, "require"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadMQTTConfig() (cfg mqttConfig, err error) {
	if cfg.BrokerURL, err = env.GetAsString("MQTT_BROKER_URL", true, ""); err != nil {
		return cfg, err
	}
	if cfg.Username, err = env.GetAsString("MQTT_USERNAME", false, ""); err != nil {
		return cfg, err
	}
	if cfg.Password, err = env.GetAsString("MQTT_PASSWORD", false, ""); err != nil {
		return cfg, err
	}
	clientID, err := env.GetAsString("MQTT_CLIENT_ID", false, "sliw-responder")
	if err != nil {
		return cfg, err
	}
	// a fixed id would make replicas kick each other off the broker
	cfg.ClientID = clientID + "-" + uuid.NewString()

	qos, err := env.GetAsInt("MQTT_QOS", false, int(messaging.DefaultQoS))
	if err != nil {
		return cfg, err
	}
	if qos < 0 || qos > 2 {
		return cfg, fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", qos)
	}
	cfg.QoS = byte(qos)

	enableTLS, err := env.GetAsBool("MQTT_ENABLE_TLS", false, false)
	if err != nil {
		return cfg, err
	}
	if enableTLS {
		certDir, err := env.GetAsString("MQTT_CERT_DIR", false, "/SSL_certs/mqtt")
		if err != nil {
			return cfg, err
		}
		skipVerify, err := env.GetAsBool("INSECURE_SKIP_VERIFY", false, false)
		if err != nil {
			return cfg, err
		}
		if cfg.TLSConfig, err = messaging.NewTLSConfig(certDir, skipVerify); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func loadCacheConfig() (opts internal.CacheOptions, lruSize int, err error) {
	if opts.RedisAddr, err = env.GetAsString("REDIS_URI", false, ""); err != nil {
		return opts, 0, err
	}
	if opts.RedisPassword, err = env.GetAsString("REDIS_PASSWORD", false, ""); err != nil {
		return opts, 0, err
	}
	if opts.RedisDB, err = env.GetAsInt("REDIS_DB", false, 0); err != nil {
		return opts, 0, err
	}
	if lruSize, err = env.GetAsInt("MESSAGE_LRU_SIZE", false, 1000); err != nil {
		return opts, 0, err
	}
	return opts, lruSize, nil
}
