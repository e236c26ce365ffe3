package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type casesCounter struct {
	persisted int
	failed    int
}

func (c *casesCounter) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case StageCasePersisted:
			c.persisted++
		case StageCaseFailed:
			c.failed++
		}
	}
	return nil
}

func (c *casesCounter) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit emits case events and flushes them via Close.
func ExampleHub_Emit() {
	sink := &casesCounter{}
	hub := NewHub(Config{BufferSize: 4, FlushInterval: time.Second}, sink)

	runID := UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	for _, evt := range []Event{
		{RunID: runID, TS: time.Unix(0, 0), Stage: StageCasePersisted, CaseID: "0001"},
		{RunID: runID, TS: time.Unix(0, 0), Stage: StageCasePersisted, CaseID: "0002"},
		{RunID: runID, TS: time.Unix(0, 0), Stage: StageCaseFailed, CaseID: "0003", Note: "boom"},
	} {
		hub.Emit(evt)
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("persisted=%d failed=%d\n", sink.persisted, sink.failed)
	// Output:
	// persisted=2 failed=1
}
