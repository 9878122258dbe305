package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewtimer/lynxbridge/pkg/domain"
)

// fakeStore stands in for the lap store plus delivery queue: Enqueue
// applies the same stamp-and-replace semantics as the real upsert path.
type fakeStore struct {
	mu     sync.Mutex
	laps   []domain.Lap
	stored []domain.Lap
}

func (f *fakeStore) FindByKeyID(keyid string) (domain.Lap, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.laps {
		if l.KeyID == keyid {
			return l, true
		}
	}
	return domain.Lap{}, false
}

func (f *fakeStore) Enqueue(lap domain.Lap) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lap.Status = domain.StatusTxPend
	lap.SequenceNum++
	found := false
	for i := range f.laps {
		if f.laps[i].KeyID == lap.KeyID {
			f.laps[i] = lap
			found = true
			break
		}
	}
	if !found {
		f.laps = append(f.laps, lap)
	}
	f.stored = append(f.stored, lap)
}

func (f *fakeStore) storedLaps() []domain.Lap {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Lap, len(f.stored))
	copy(out, f.stored)
	return out
}

func newTestReconciler(f *fakeStore, cfg ReconcilerConfig) *Reconciler {
	r := NewReconciler(f, f, cfg)
	r.now = func() time.Time {
		return time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local)
	}
	n := 0
	r.newUUID = func() string {
		n++
		return fmt.Sprintf("uuid-%d", n)
	}
	return r
}

func timingBatch(eventNum, bow, raw, final string) Batch {
	return Batch{
		EventName: "Test Event",
		Results: []Result{{
			EventNum:     eventNum,
			Bow:          bow,
			Time:         final,
			RawTime:      raw,
			ElapsedMilli: domain.TimeToMilli(raw),
		}},
	}
}

func TestReconcileCreatesTimingRecord(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f, ReconcilerConfig{Waypoint: "Finish"})

	r.Apply(timingBatch("12", "3", "4:10.5", "4:10.5"))

	require.Len(t, f.stored, 1)
	lap := f.stored[0]
	assert.Equal(t, "F-12-3", lap.KeyID)
	assert.Equal(t, "uuid-1", lap.UUID)
	assert.Equal(t, "4:10.5", lap.Time)
	assert.Equal(t, "F", lap.Gate)
	assert.Equal(t, "3", lap.Bow)
	assert.Equal(t, domain.StatusTxPend, lap.Status)
}

func TestReconcileIdempotentReplay(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f, ReconcilerConfig{Waypoint: "Finish"})

	batch := timingBatch("12", "3", "4:10.5", "4:10.5")
	r.Apply(batch)
	r.Apply(batch)

	// the replay is a refresh: nothing new is stored
	assert.Len(t, f.stored, 1)
	assert.Len(t, f.laps, 1)
}

func TestReconcileUUIDStableAcrossUpdates(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f, ReconcilerConfig{Waypoint: "Finish"})

	r.Apply(timingBatch("12", "3", "4:10.5", "4:10.5"))
	r.Apply(timingBatch("12", "3", "4:11.0", "4:11.0"))
	r.Apply(timingBatch("12", "3", "4:12.0", "4:12.0"))

	require.Len(t, f.stored, 3)
	for _, lap := range f.stored {
		assert.Equal(t, "uuid-1", lap.UUID)
	}
	assert.Greater(t, f.stored[2].SequenceNum, f.stored[1].SequenceNum)
	assert.Greater(t, f.stored[1].SequenceNum, f.stored[0].SequenceNum)
}

func TestReconcileZeroTimeSuppressed(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f, ReconcilerConfig{Waypoint: "Finish"})

	// the device pages out all entries with 0.0 before boats are scored
	r.Apply(timingBatch("12", "3", "0.0", "0.0"))
	assert.Empty(t, f.stored)
}

func TestReconcileZeroTimeDeletesExisting(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f, ReconcilerConfig{Waypoint: "Finish"})

	r.Apply(timingBatch("12", "3", "4:10.5", "4:10.5"))
	r.Apply(timingBatch("12", "3", "0.0", "0.0"))

	require.Len(t, f.stored, 2)
	assert.Equal(t, domain.StateDeleted, f.stored[1].State)
	assert.Equal(t, "uuid-1", f.stored[1].UUID)

	// a real time afterwards clears the deleted state, same uuid
	r.Apply(timingBatch("12", "3", "4:15.0", "4:15.0"))
	require.Len(t, f.stored, 3)
	assert.Equal(t, "", f.stored[2].State)
	assert.Equal(t, "uuid-1", f.stored[2].UUID)
}

func penaltyBatch(eventNum, bow, place string) Batch {
	return Batch{
		EventName: "Test Event",
		Results:   []Result{{EventNum: eventNum, Bow: bow, Place: place}},
	}
}

func TestReconcilePenaltyStateMachine(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f, ReconcilerConfig{Waypoint: "Finish"})

	// DQ creates an active penalty record
	r.Apply(penaltyBatch("12", "3", "DQ"))
	require.Len(t, f.stored, 1)
	pen := f.stored[0]
	assert.Equal(t, "Pen-12-3", pen.KeyID)
	assert.Equal(t, "Pen", pen.Gate)
	assert.Equal(t, "DQ", pen.PenaltyCode)
	assert.Equal(t, "3", pen.Bow)
	assert.True(t, pen.Active())
	assert.Equal(t, "10:00:00.000", pen.Time) // stamped with local wall clock

	// same code again is an idempotent replay
	r.Apply(penaltyBatch("12", "3", "DQ"))
	assert.Len(t, f.stored, 1)

	// empty place transitions the penalty to deleted
	r.Apply(penaltyBatch("12", "3", ""))
	require.Len(t, f.stored, 2)
	assert.Equal(t, domain.StateDeleted, f.stored[1].State)

	// DQ once more re-activates; never two active penalty records
	r.Apply(penaltyBatch("12", "3", "DQ"))
	require.Len(t, f.stored, 3)
	assert.True(t, f.stored[2].Active())
	active := 0
	for _, l := range f.laps {
		if l.KeyID == "Pen-12-3" && l.Active() {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestReconcilePenaltyCodeChange(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f, ReconcilerConfig{Waypoint: "Finish"})

	r.Apply(penaltyBatch("12", "3", "DNS"))
	r.Apply(penaltyBatch("12", "3", "DNF"))

	require.Len(t, f.stored, 2)
	assert.Equal(t, "DNF", f.stored[1].PenaltyCode)
	assert.Equal(t, f.stored[0].UUID, f.stored[1].UUID)
}

func TestReconcileSprintStartSynthesis(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f, ReconcilerConfig{
		Waypoint:      "SprintStart",
		StartWaypoint: "Start",
		StartEnable:   true,
	})

	batch := Batch{
		EventName: "Test Event",
		Start:     "08:00:00.000",
		Results: []Result{{
			EventNum:     "12",
			Bow:          "3",
			Time:         "08:01:23.456",
			RawTime:      "1:23.456",
			ElapsedMilli: domain.TimeToMilli("1:23.456"),
			SprintStart:  true,
		}},
	}
	r.Apply(batch)

	require.Len(t, f.stored, 2)

	start := f.stored[0]
	assert.Equal(t, "S-12-*", start.KeyID)
	assert.Equal(t, "*", start.Bow)
	assert.Equal(t, "S", start.Gate)
	assert.Equal(t, "08:00:00.000", start.Time)

	main := f.stored[1]
	assert.Equal(t, "G_SprintStart-12-3", main.KeyID)
	assert.Equal(t, "*", main.Bow) // wildcard bow on sprint start records
	assert.NotEqual(t, start.UUID, main.UUID)

	// replaying the batch stores nothing new
	r.Apply(batch)
	assert.Len(t, f.stored, 2)
}

func TestReconcileSprintStartDisabled(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f, ReconcilerConfig{Waypoint: "SprintStart"})

	batch := Batch{
		EventName: "Test Event",
		Start:     "08:00:00.000",
		Results: []Result{{
			EventNum:     "12",
			Bow:          "3",
			Time:         "08:01:23.456",
			RawTime:      "1:23.456",
			ElapsedMilli: domain.TimeToMilli("1:23.456"),
			SprintStart:  true,
		}},
	}
	r.Apply(batch)

	require.Len(t, f.stored, 1)
	assert.Equal(t, "G_SprintStart-12-3", f.stored[0].KeyID)
}

func TestReconcilePenaltyWithTimeStoresBoth(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f, ReconcilerConfig{Waypoint: "Finish"})

	batch := Batch{
		EventName: "Test Event",
		Results: []Result{{
			EventNum:     "12",
			Bow:          "3",
			Time:         "4:10.5",
			RawTime:      "4:10.5",
			ElapsedMilli: domain.TimeToMilli("4:10.5"),
			Place:        "DNF",
		}},
	}
	r.Apply(batch)

	require.Len(t, f.stored, 2)
	assert.Equal(t, "Pen-12-3", f.stored[0].KeyID)
	assert.Equal(t, "F-12-3", f.stored[1].KeyID)
}
