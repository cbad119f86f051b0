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
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru"
	"github.com/united-manufacturing-hub/sample-relay/internal"
	"github.com/united-manufacturing-hub/sample-relay/internal/messaging"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
	"go.uber.org/zap"
)

// Store is the persistence the responder answers from
type Store interface {
	InsertSample(ctx context.Context, sample datamodel.Sample) error
	SetSampleValid(ctx context.Context, sampleID string, valid bool) error
	UpsertDevice(ctx context.Context, request datamodel.RegisterDeviceRequest) error
	LinkedUser(ctx context.Context, deviceID string) (*datamodel.User, error)
}

// Cache holds encoded linked user answers
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetShortTerm(ctx context.Context, key string, value []byte)
}

// Subscriptions of the responder. Requests are answered on the sibling response topic,
// validations are one-shot publishes without an answer.
const (
	saveSubscription     = "samples/+/save/request"
	validateSubscription = "samples/+/validate"
	linkedSubscription   = "users/+/linked/request"
	registerSubscription = "devices/+/register/request"
)

var subscriptions = []string{saveSubscription, validateSubscription, linkedSubscription, registerSubscription}

type handler struct {
	store Store
	cache Cache
	// answered maps a fingerprint of topic and payload to the response sent for a sample save
	answered *lru.ARCCache
}

func newHandler(store Store, cache Cache, lruSize int) (*handler, error) {
	answered, err := lru.NewARC(lruSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create ARC: %w", err)
	}
	return &handler{store: store, cache: cache, answered: answered}, nil
}

// Handle processes one inbound message. It returns the topic and payload of the answer, if any.
func (h *handler) Handle(ctx context.Context, topic string, payload []byte) (responseTopic string, response []byte, ok bool) {
	// samples/<id>/validate
	if parts := strings.Split(topic, "/"); len(parts) == 3 && parts[0] == "samples" && parts[2] == "validate" {
		h.handleValidate(ctx, parts[1], payload)
		return "", nil, false
	}

	base, isRequest := messaging.ParseRequestTopic(topic)
	if !isRequest {
		zap.S().Debugf("Ignoring message on %s", topic)
		return "", nil, false
	}
	parts := strings.Split(base.String(), "/")
	if len(parts) != 3 || parts[1] == "" {
		zap.S().Warnf("Ignoring request on unknown topic %s", topic)
		return "", nil, false
	}

	// only sample saves are replayed: their answer never changes, lookups must see fresh data
	remember := parts[0] == "samples"
	key := internal.FingerprintString([]byte(topic), payload)
	if remember {
		if cached, found := h.answered.Get(key); found {
			messagesProcessed.WithLabelValues(parts[0], "duplicate").Inc()
			zap.S().Debugf("Answering duplicate request on %s from cache", topic)
			return base.Response(), cached.([]byte), true
		}
	}

	var err error
	switch {
	case parts[0] == "samples" && parts[2] == "save":
		response, err = h.handleSave(ctx, parts[1], payload)
	case parts[0] == "users" && parts[2] == "linked":
		response, err = h.handleLinked(ctx, parts[1])
	case parts[0] == "devices" && parts[2] == "register":
		response, err = h.handleRegister(ctx, parts[1], payload)
	default:
		zap.S().Warnf("Ignoring request on unknown topic %s", topic)
		return "", nil, false
	}

	if err != nil {
		zap.S().Warnf("Request on %s failed: %s", topic, err)
		messagesProcessed.WithLabelValues(parts[0], "failed").Inc()
		response = negativeAck(err)
		// failures are not remembered so a retry is processed again
		return base.Response(), response, true
	}
	messagesProcessed.WithLabelValues(parts[0], "ok").Inc()
	if remember {
		h.answered.Add(key, response)
	}
	return base.Response(), response, true
}

func (h *handler) handleSave(ctx context.Context, sampleID string, payload []byte) ([]byte, error) {
	var sample datamodel.Sample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return nil, fmt.Errorf("malformed sample: %w", err)
	}
	if sample.ID != sampleID {
		return nil, fmt.Errorf("sample id %q does not match topic id %q", sample.ID, sampleID)
	}
	if err := h.store.InsertSample(ctx, sample); err != nil {
		return nil, err
	}
	zap.S().Debugf("Saved sample %s of device %s", sample.ID, sample.DeviceID)
	return positiveAck(), nil
}

func (h *handler) handleValidate(ctx context.Context, sampleID string, payload []byte) {
	var sample datamodel.Sample
	if err := json.Unmarshal(payload, &sample); err != nil || sample.Valid == nil {
		zap.S().Warnf("Ignoring malformed validation of sample %s", sampleID)
		messagesProcessed.WithLabelValues("validate", "failed").Inc()
		return
	}
	if err := h.store.SetSampleValid(ctx, sampleID, *sample.Valid); err != nil {
		zap.S().Warnf("Validation of sample %s failed: %s", sampleID, err)
		messagesProcessed.WithLabelValues("validate", "failed").Inc()
		return
	}
	messagesProcessed.WithLabelValues("validate", "ok").Inc()
}

func (h *handler) handleLinked(ctx context.Context, deviceID string) ([]byte, error) {
	cacheKey := "linked/" + deviceID
	if cached, found := h.cache.Get(ctx, cacheKey); found {
		return cached, nil
	}

	user, err := h.store.LinkedUser(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	response, err := json.Marshal(datamodel.LinkedUserResponse{Ack: datamodel.Ack{OK: true}, User: user})
	if err != nil {
		return nil, err
	}
	h.cache.SetShortTerm(ctx, cacheKey, response)
	return response, nil
}

func (h *handler) handleRegister(ctx context.Context, deviceID string, payload []byte) ([]byte, error) {
	var request datamodel.RegisterDeviceRequest
	if err := json.Unmarshal(payload, &request); err != nil {
		return nil, fmt.Errorf("malformed registration: %w", err)
	}
	if request.DeviceID != deviceID {
		return nil, fmt.Errorf("device id %q does not match topic id %q", request.DeviceID, deviceID)
	}
	if err := h.store.UpsertDevice(ctx, request); err != nil {
		return nil, err
	}
	zap.S().Infof("Registered device %s", deviceID)
	return positiveAck(), nil
}

func positiveAck() []byte {
	b, _ := json.Marshal(datamodel.Ack{OK: true})
	return b
}

func negativeAck(err error) []byte {
	b, _ := json.Marshal(datamodel.Ack{OK: false, Error: err.Error()})
	return b
}
