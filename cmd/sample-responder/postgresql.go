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
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/united-manufacturing-hub/sample-relay/internal"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
	"go.uber.org/zap"
)

// DB is the part of pgxpool.Pool the store uses
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type Connection struct {
	db DB
}

type postgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func get5SecondContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// connectPostgres opens a pool and retries the first ping with backoff until ctx ends
func connectPostgres(ctx context.Context, cfg postgresConfig) (*Connection, error) {
	zap.S().Infof("Connecting to %s@%s:%d/%s [%s]", cfg.User, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)
	conString := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	pool, err := pgxpool.New(ctx, conString)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to postgres database: %w", err)
	}
	c := &Connection{db: pool}

	var retries int64
	for !c.IsAvailable() {
		retries++
		wait := internal.GetBackoffTime(retries, 100*time.Millisecond, 30*time.Second)
		zap.S().Warnf("Database is not available, retrying in %s", wait)
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return c, nil
}

func (c *Connection) IsAvailable() bool {
	ctx, cancel := get5SecondContext()
	defer cancel()
	if err := c.db.Ping(ctx); err != nil {
		zap.S().Debugf("Database ping failed: %s", err)
		return false
	}
	return true
}

// HealthCheck is a heptiolabs/healthcheck check
func (c *Connection) HealthCheck() error {
	if !c.IsAvailable() {
		return errors.New("database is not available")
	}
	return nil
}

func (c *Connection) Close() {
	c.db.Close()
}

// InsertSample stores a delivered sample. Saving the same sample twice is not an error.
func (c *Connection) InsertSample(ctx context.Context, sample datamodel.Sample) error {
	measurements, err := json.Marshal(sample.Measurements)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(ctx, `
		INSERT INTO sample (id, user_id, device_id, value, valid, measurements, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		sample.ID, sample.UserID, sample.DeviceID, sample.Value, sample.Valid, measurements,
		time.UnixMilli(sample.TimestampMs).UTC())
	if err != nil {
		return fmt.Errorf("insert sample %s: %w", sample.ID, err)
	}
	return nil
}

// SetSampleValid records the user's verdict on a sample
func (c *Connection) SetSampleValid(ctx context.Context, sampleID string, valid bool) error {
	tag, err := c.db.Exec(ctx, `UPDATE sample SET valid = $2 WHERE id = $1`, sampleID, valid)
	if err != nil {
		return fmt.Errorf("validate sample %s: %w", sampleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("validate sample %s: %w", sampleID, pgx.ErrNoRows)
	}
	return nil
}

func (c *Connection) UpsertDevice(ctx context.Context, request datamodel.RegisterDeviceRequest) error {
	_, err := c.db.Exec(ctx, `
		INSERT INTO device (id, hostname_hash, registered_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET hostname_hash = EXCLUDED.hostname_hash`,
		request.DeviceID, request.Hostname)
	if err != nil {
		return fmt.Errorf("register device %s: %w", request.DeviceID, err)
	}
	return nil
}

// LinkedUser returns the user deviceID is linked to, nil if there is none
func (c *Connection) LinkedUser(ctx context.Context, deviceID string) (*datamodel.User, error) {
	var user datamodel.User
	err := c.db.QueryRow(ctx, `
		SELECT u.id, u.name, u.configured
		FROM device_link l JOIN app_user u ON u.id = l.user_id
		WHERE l.device_id = $1`, deviceID).Scan(&user.ID, &user.Name, &user.Configured)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("linked user of %s: %w", deviceID, err)
	}
	return &user, nil
}
