package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageLitigantStart Stage = "LITIGANT_START"
	StageCasesFetched  Stage = "CASES_FETCHED"
	StageCasePersisted Stage = "CASE_PERSISTED"
	StageCaseFailed    Stage = "CASE_FAILED"
	StageLitigantDone  Stage = "LITIGANT_DONE"
	StageLitigantError Stage = "LITIGANT_ERROR"
)

// Event captures one step of a crawl-and-persist run.
type Event struct {
	// RunID identifies the run in its 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// NationalID and Role name the litigant being processed.
	NationalID string
	Role       string
	// CaseID scopes case-level stages.
	CaseID string
	// Count carries the number of cases for CASES_FETCHED and the number of
	// successful cases for LITIGANT_DONE.
	Count int64
	Dur   time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageLitigantStart:
		if e.NationalID == "" {
			return errors.New("litigant start requires national id")
		}
	case StageCasesFetched, StageLitigantDone, StageLitigantError:
	case StageCasePersisted, StageCaseFailed:
		if e.CaseID == "" {
			return fmt.Errorf("%s requires case id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Count < 0 {
		return errors.New("count must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
