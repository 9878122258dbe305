package events

import (
	"time"

	"github.com/segmentio/ksuid"

	"github.com/crewtimer/lynxbridge/pkg/domain"
)

// LapLookup finds the current record for an identity key.
type LapLookup interface {
	FindByKeyID(keyid string) (domain.Lap, bool)
}

// LapSink receives records that changed and need persisting plus delivery.
type LapSink interface {
	Enqueue(lap domain.Lap)
}

// ReconcilerConfig carries the waypoint identity of this station.
type ReconcilerConfig struct {
	// Waypoint is the scoring waypoint incoming results belong to.
	Waypoint string
	// StartWaypoint and StartEnable control synthesis of a start gate
	// record for sprint races that publish a common start time.
	StartWaypoint string
	StartEnable   bool
}

// Reconciler applies decoded result batches against the canonical lap set,
// producing creates, overwrites and soft-deletes while keeping each
// keyid's uuid stable.
type Reconciler struct {
	laps LapLookup
	sink LapSink
	cfg  ReconcilerConfig

	now     func() time.Time
	newUUID func() string
}

func NewReconciler(laps LapLookup, sink LapSink, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		laps:    laps,
		sink:    sink,
		cfg:     cfg,
		now:     time.Now,
		newUUID: func() string { return ksuid.New().String() },
	}
}

// Apply reconciles every result in the batch, in arrival order.
func (r *Reconciler) Apply(batch Batch) {
	for _, res := range batch.Results {
		r.apply(batch, res)
	}
}

func (r *Reconciler) apply(batch Batch, res Result) {
	gate := domain.GateFromWaypoint(r.cfg.Waypoint)
	keyid := domain.TimingKeyID(gate, res.EventNum, res.Bow)
	penid := domain.PenaltyKeyID(res.EventNum, res.Bow)
	hasPenalty := domain.IsPenalty(res.Place)
	nowMilli := domain.DayMillis(r.now())

	// retain the old uuid when updating an existing record
	existing, exists := r.laps.FindByKeyID(keyid)
	uuid := existing.UUID
	if !exists {
		uuid = r.newUUID()
	}
	bow := res.Bow
	if res.SprintStart {
		bow = "*"
	}
	lap := domain.Lap{
		KeyID:    keyid,
		UUID:     uuid,
		Bow:      bow,
		EventNum: res.EventNum,
		Time:     res.Time,
		Event:    batch.EventName,
		Gate:     gate,
	}

	// Sprint races with a common start also record the start itself as a
	// wildcard-bow lap at the start gate.
	if res.SprintStart && r.cfg.StartEnable && batch.Start != "" {
		startGate := domain.GateFromWaypoint(r.cfg.StartWaypoint)
		start := lap
		start.UUID = r.newUUID()
		start.KeyID = domain.TimingKeyID(startGate, res.EventNum, "*")
		start.Bow = "*"
		start.Time = batch.Start
		start.Gate = startGate
		r.store(start)
	}

	// Penalty records move through None -> Recorded -> Deleted and may
	// re-enter Recorded when the device re-sends a code.
	if existingPen, ok := r.laps.FindByKeyID(penid); ok {
		pen := existingPen
		switch {
		case res.Place == existingPen.PenaltyCode && existingPen.Active():
			// unchanged replay
		case res.Place == "" || !hasPenalty:
			pen.State = domain.StateDeleted
			r.store(pen)
		default:
			pen.State = ""
			pen.PenaltyCode = res.Place
			pen.Time = domain.MilliToString(nowMilli, true)
			r.store(pen)
		}
	} else if hasPenalty {
		pen := lap
		pen.UUID = r.newUUID()
		pen.KeyID = penid
		pen.Time = domain.MilliToString(nowMilli, true)
		pen.Bow = res.Bow
		pen.PenaltyCode = res.Place
		pen.Gate = domain.PenaltyGate
		r.store(pen)
	}

	if res.RawTime == "" {
		return
	}
	if exists {
		if res.ElapsedMilli == 0 {
			lap.State = domain.StateDeleted
		}
		r.store(lap)
	} else if res.ElapsedMilli != 0 {
		r.store(lap)
	}
}

// store finishes a write: an existing record with the same keyid keeps its
// uuid and suppresses no-change refreshes; a brand new record with a zero
// time is a placeholder the device pages out for unscored boats and is
// dropped.
func (r *Reconciler) store(lap domain.Lap) {
	existing, ok := r.laps.FindByKeyID(lap.KeyID)
	if ok {
		if existing.Time == lap.Time &&
			existing.State == lap.State &&
			existing.PenaltyCode == lap.PenaltyCode {
			return
		}
		lap.UUID = existing.UUID
		lap.SequenceNum = existing.SequenceNum
	} else if domain.TimeToMilli(lap.Time) == 0 {
		return
	}
	r.sink.Enqueue(lap)
}
