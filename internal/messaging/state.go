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

package messaging

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// ConnectionState is the lifecycle state of one Client
type ConnectionState string

const (
	StateDisconnected  ConnectionState = "disconnected"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateDisconnecting ConnectionState = "disconnecting"
)

const (
	eventConnect          = "connect"
	eventConnectDone      = "connect_done"
	eventConnectFailed    = "connect_failed"
	eventDisconnect       = "disconnect"
	eventDisconnectDone   = "disconnect_done"
	eventDisconnectFailed = "disconnect_failed"
	eventConnectionLost   = "connection_lost"
)

func newConnectionFSM(clientID string) *fsm.FSM {
	return fsm.NewFSM(
		string(StateDisconnected),
		fsm.Events{
			// disconnected -> connecting -> connected
			{Name: eventConnect, Src: []string{string(StateDisconnected)}, Dst: string(StateConnecting)},
			{Name: eventConnectDone, Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
			{Name: eventConnectFailed, Src: []string{string(StateConnecting)}, Dst: string(StateDisconnected)},

			// connected -> disconnecting -> disconnected
			// a failed disconnect releases the connection, so it ends up disconnected as well
			{Name: eventDisconnect, Src: []string{string(StateConnected)}, Dst: string(StateDisconnecting)},
			{Name: eventDisconnectDone, Src: []string{string(StateDisconnecting)}, Dst: string(StateDisconnected)},
			{Name: eventDisconnectFailed, Src: []string{string(StateDisconnecting)}, Dst: string(StateDisconnected)},

			{Name: eventConnectionLost, Src: []string{string(StateConnected)}, Dst: string(StateDisconnected)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				zap.S().Debugf("MQTT client %s: %s -> %s (%s)", clientID, e.Src, e.Dst, e.Event)
			},
		},
	)
}
