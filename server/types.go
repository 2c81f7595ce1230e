package server

import (
	"time"

	"github.com/fitbaus/fitbaus/fetch/async"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket clients
	MaxClients = 100
	// MaxClientMessageQueueSize is the size of per-client message queues
	MaxClientMessageQueueSize = 256
	// ShutdownTimeout is how long to wait for graceful shutdown. Generous
	// because Controller.Shutdown sits out a terminate-then-kill cycle per
	// running pipeline before returning.
	ShutdownTimeout = 30 * time.Second
)

// ServerState represents the server lifecycle state
type ServerState int

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

// JobEventMessage is one frame of the /ws/jobs stream: a full job snapshot
// pushed on every registry mutation. The UI can still poll the REST
// endpoints; the stream only makes updates cheaper.
type JobEventMessage struct {
	Type      string     `json:"type"` // "job_update"
	Job       *async.Job `json:"job"`
	Timestamp int64      `json:"timestamp"` // Unix timestamp
}
