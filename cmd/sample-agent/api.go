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
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/united-manufacturing-hub/sample-relay/internal/delivery"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
	"go.uber.org/zap"
)

type statusResponse struct {
	DeviceID       string            `json:"deviceId"`
	Registered     bool              `json:"registered"`
	User           *datamodel.User   `json:"user,omitempty"`
	Armed          bool              `json:"armed"`
	LastSample     *datamodel.Sample `json:"lastSample,omitempty"`
	FallbackQueued uint64            `json:"fallbackQueued"`
	Outstanding    int               `json:"outstandingRequests"`
	Notifications  notifierStatus    `json:"notifications"`
}

type resultResponse struct {
	Sample datamodel.Sample `json:"sample"`
	Remote bool             `json:"remote"`
	Local  bool             `json:"local"`
	Error  string           `json:"error,omitempty"`
}

func newResultResponse(r delivery.Result) resultResponse {
	resp := resultResponse{Sample: r.Sample, Remote: r.Remote, Local: r.Local}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

// newRouter builds the local control API, the headless counterpart of the device buttons.
// accounts may be empty, the API is then unauthenticated.
func newRouter(a *agent, accounts gin.Accounts) *gin.Engine {
	router := gin.New()
	router.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(zap.L(), true))

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "online")
	})

	handlers := []gin.HandlerFunc{gzip.Gzip(gzip.DefaultCompression)}
	if len(accounts) > 0 {
		handlers = append(handlers, gin.BasicAuth(accounts))
	}
	v1 := router.Group("/api/v1", handlers...)
	{
		v1.GET("/status", a.getStatusHandler)
		v1.POST("/link", a.postLinkHandler)
		v1.POST("/unlink", a.postUnlinkHandler)
		v1.POST("/samples", a.postSampleHandler)
		v1.GET("/samples/fallback", a.getFallbackHandler)
		v1.POST("/samples/last/validate", a.postValidateHandler)
	}
	return router
}

func handleError(c *gin.Context, status int, err error) {
	zap.S().Errorw("Request failed", "route", c.FullPath(), "error", err)
	c.JSON(status, gin.H{
		"error":  err.Error(),
		"status": status,
	})
}

func (a *agent) getStatusHandler(c *gin.Context) {
	status := statusResponse{
		DeviceID:      a.identity.DeviceID(),
		Registered:    a.identity.IsDeviceRegistered(),
		User:          a.controller.CurrentUser(),
		Armed:         a.trigger.Armed(),
		Notifications: a.notifier.Status(),
	}
	if last, ok := a.pipeline.Last(); ok {
		status.LastSample = &last
	}
	if a.fallback != nil {
		status.FallbackQueued = a.fallback.Len()
	}
	if a.outstanding != nil {
		status.Outstanding = a.outstanding()
	}
	c.JSON(http.StatusOK, status)
}

// getFallbackHandler exports the samples that could not be delivered, oldest first
func (a *agent) getFallbackHandler(c *gin.Context) {
	if a.fallback == nil {
		c.JSON(http.StatusOK, []datamodel.Sample{})
		return
	}
	samples, err := a.fallback.Samples()
	if err != nil {
		handleError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, samples)
}

func (a *agent) postLinkHandler(c *gin.Context) {
	user, err := a.controller.Link(c.Request.Context())
	if err != nil {
		handleError(c, http.StatusBadGateway, err)
		return
	}
	step := a.controller.DecideStep()
	c.JSON(http.StatusOK, gin.H{"user": user, "step": step.String()})
}

func (a *agent) postUnlinkHandler(c *gin.Context) {
	a.controller.Unlink()
	c.JSON(http.StatusOK, gin.H{"step": a.controller.DecideStep().String()})
}

func (a *agent) postSampleHandler(c *gin.Context) {
	r, err := a.captureNow(c.Request.Context())
	if err != nil {
		handleError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, newResultResponse(r))
}

func (a *agent) postValidateHandler(c *gin.Context) {
	valid, err := strconv.ParseBool(c.DefaultQuery("valid", "true"))
	if err != nil {
		handleError(c, http.StatusBadRequest, err)
		return
	}
	r := a.pipeline.ValidateLast(c.Request.Context(), valid)
	if errors.Is(r.Err, delivery.ErrNoSample) {
		handleError(c, http.StatusNotFound, r.Err)
		return
	}
	c.JSON(http.StatusOK, newResultResponse(r))
}
