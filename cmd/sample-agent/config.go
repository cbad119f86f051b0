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
	"fmt"
	"time"

	"github.com/united-manufacturing-hub/umh-utils/env"
)

type config struct {
	BrokerURL          string
	Username           string
	Password           string
	ClientID           string
	EnableTLS          bool
	CertDir            string
	InsecureSkipVerify bool
	QoS                byte
	RequestTimeout     time.Duration

	SampleInterval time.Duration
	QueuePath      string
	DeviceFile     string

	APIPort     int
	APIUser     string
	APIPassword string
}

func loadConfig() (cfg config, err error) {
	if cfg.BrokerURL, err = env.GetAsString("MQTT_BROKER_URL", true, ""); err != nil {
		return cfg, err
	}
	if cfg.Username, err = env.GetAsString("MQTT_USERNAME", false, ""); err != nil {
		return cfg, err
	}
	if cfg.Password, err = env.GetAsString("MQTT_PASSWORD", false, ""); err != nil {
		return cfg, err
	}
	if cfg.ClientID, err = env.GetAsString("MQTT_CLIENT_ID", false, "sliw"); err != nil {
		return cfg, err
	}
	if cfg.EnableTLS, err = env.GetAsBool("MQTT_ENABLE_TLS", false, false); err != nil {
		return cfg, err
	}
	if cfg.CertDir, err = env.GetAsString("MQTT_CERT_DIR", false, "/SSL_certs/mqtt"); err != nil {
		return cfg, err
	}
	if cfg.InsecureSkipVerify, err = env.GetAsBool("INSECURE_SKIP_VERIFY", false, false); err != nil {
		return cfg, err
	}

	qos, err := env.GetAsInt("MQTT_QOS", false, 2)
	if err != nil {
		return cfg, err
	}
	if qos < 0 || qos > 2 {
		return cfg, fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", qos)
	}
	cfg.QoS = byte(qos)

	timeoutMs, err := env.GetAsInt("MQTT_REQUEST_TIMEOUT_MS", false, 5000)
	if err != nil {
		return cfg, err
	}
	cfg.RequestTimeout = time.Duration(timeoutMs) * time.Millisecond

	intervalSeconds, err := env.GetAsInt("SAMPLE_INTERVAL_SECONDS", false, 300)
	if err != nil {
		return cfg, err
	}
	if intervalSeconds <= 0 {
		return cfg, fmt.Errorf("SAMPLE_INTERVAL_SECONDS must be positive, got %d", intervalSeconds)
	}
	cfg.SampleInterval = time.Duration(intervalSeconds) * time.Second

	if cfg.QueuePath, err = env.GetAsString("FALLBACK_QUEUE_PATH", false, "/data/queue/samples"); err != nil {
		return cfg, err
	}
	if cfg.DeviceFile, err = env.GetAsString("DEVICE_FILE", false, "/data/device.json"); err != nil {
		return cfg, err
	}
	if cfg.APIPort, err = env.GetAsInt("API_PORT", false, 8080); err != nil {
		return cfg, err
	}
	if cfg.APIUser, err = env.GetAsString("API_USER", false, ""); err != nil {
		return cfg, err
	}
	if cfg.APIPassword, err = env.GetAsString("API_PASSWORD", false, ""); err != nil {
		return cfg, err
	}
	return cfg, nil
}
