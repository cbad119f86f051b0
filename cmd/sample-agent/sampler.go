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

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
	"go.uber.org/zap"
)

var errNoMeasurements = errors.New("no host measurement could be read")

// hostSampler reads cpu, memory and load of the host the agent runs on
type hostSampler struct{}

// Sample returns every measurement that could be read; a partial read is not an error
func (hostSampler) Sample() ([]datamodel.Measurement, error) {
	var measurements []datamodel.Measurement

	percent, err := cpu.Percent(0, false)
	if err != nil || len(percent) == 0 {
		zap.S().Warnf("Failed to read cpu usage: %v", err)
	} else {
		measurements = append(measurements, datamodel.Measurement{Source: "cpu", Name: "usage_percent", Level: percent[0]})
	}

	vmStat, err := mem.VirtualMemory()
	if err != nil {
		zap.S().Warnf("Failed to read memory usage: %v", err)
	} else {
		measurements = append(measurements, datamodel.Measurement{Source: "memory", Name: "used_percent", Level: vmStat.UsedPercent})
	}

	loadInfo, err := load.Avg()
	if err != nil {
		zap.S().Warnf("Failed to read load: %v", err)
	} else {
		measurements = append(measurements,
			datamodel.Measurement{Source: "load", Name: "load1", Level: loadInfo.Load1},
			datamodel.Measurement{Source: "load", Name: "load5", Level: loadInfo.Load5},
			datamodel.Measurement{Source: "load", Name: "load15", Level: loadInfo.Load15},
		)
	}

	if len(measurements) == 0 {
		return nil, errNoMeasurements
	}
	return measurements, nil
}
