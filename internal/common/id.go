package common

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// NewRequestID generates a unique request ID with the "req_" prefix
// Format: req_<uuid>
func NewRequestID() string {
	return "req_" + uuid.New().String()
}

// WorkerID derives a stable worker identity from hostname and pid.
// Format: worker-<hostname>-<pid>
func WorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())
}
