package core

import (
	"time"

	"github.com/google/uuid"
)

// ProbeResponseError is the closed set of transport-level failure
// classifications for a probe (absent on success).
type ProbeResponseError string

const (
	ProbeErrorTimeout         ProbeResponseError = "TIMEOUT"
	ProbeErrorConnectionError ProbeResponseError = "CONNECTION_ERROR"
)

// Probe is the immutable recorded outcome of executing one task.
type Probe struct {
	ID            string
	Timestamp     int64
	MonitorID     string
	TaskID        string
	ResponseTime  float64
	ResponseCode  *int
	ResponseError *ProbeResponseError
	ContentMatch  *string
}

// NewProbe stamps a fresh ID and timestamp onto a probe outcome.
func NewProbe(monitorID, taskID string, responseTime float64, responseCode *int, responseError *ProbeResponseError, contentMatch *string) *Probe {
	return &Probe{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().Unix(),
		MonitorID:     monitorID,
		TaskID:        taskID,
		ResponseTime:  responseTime,
		ResponseCode:  responseCode,
		ResponseError: responseError,
		ContentMatch:  contentMatch,
	}
}
