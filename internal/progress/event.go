// Package progress defines the events emitted while a page is being saved.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StagePageStart     Stage = "PAGE_START"
	StagePageState     Stage = "PAGE_STATE"
	StagePageDone      Stage = "PAGE_DONE"
	StagePageError     Stage = "PAGE_ERROR"
	StageResourceStart Stage = "RESOURCE_START"
	StageResourceDone  Stage = "RESOURCE_DONE"
	StageResourceError Stage = "RESOURCE_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for resource completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single step of a page download.
type Event struct {
	// JobID identifies the page job using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Site is the page host; resource events share it by construction.
	Site string
	// URL is the page or resource URL.
	URL string
	// Label is the human title of a resource task, usually its local filename.
	Label string
	// Bytes carries the number of bytes written for a finished resource.
	Bytes int64
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// Dur captures resource fetch latency or total page time.
	Dur time.Duration
	// Note holds the state name for PAGE_STATE or error text for failures.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StagePageStart, StagePageDone, StagePageError:
	case StagePageState:
		if e.Note == "" {
			return errors.New("page state requires note")
		}
	case StageResourceStart, StageResourceDone, StageResourceError:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
		if e.Label == "" {
			return fmt.Errorf("%s requires label", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobUUID converts the binary job ID to uuid.UUID.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for resource events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
