package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/crewtimer/lynxbridge/pkg/domain"
	"github.com/crewtimer/lynxbridge/pkg/schedule"
)

var (
	// ErrUnsupportedVersion marks a publication whose protocol version is
	// not the supported one. The message is dropped, the session continues.
	ErrUnsupportedVersion = errors.New("unsupported scoreboard version")
	// ErrMalformedMessage marks a publication missing required fields or
	// failing to decode at all.
	ErrMalformedMessage = errors.New("malformed scoreboard message")
)

const supportedVersion = 2

// timeTrialEvent is the sentinel event number the device sends when
// running in time-trial mode; the real event comes from the bow lookup.
const timeTrialEvent = "TimeTrial"

// flResult is one scoreboard line: lane/bow, timestamp (elapsed or time
// of day), optional event-bow composite id, optional place code.
type flResult struct {
	L  string `json:"l"`
	T  string `json:"t"`
	ID string `json:"id"`
	P  string `json:"p"`
}

// flPub is a complete scoreboard publication.
type flPub struct {
	V        *int            `json:"v"`
	Event    *string         `json:"event"`
	EventNum *string         `json:"eventNum"`
	Round    string          `json:"round"`
	Heat     string          `json:"heat"`
	Start    string          `json:"start"`
	Results  json.RawMessage `json:"results"`
}

// Result is one resolved scoreboard entry ready for reconciliation.
type Result struct {
	EventNum string
	Bow      string
	// Time is the final wall-clock timestamp; RawTime is the trimmed
	// device timestamp before elapsed conversion, empty when the entry
	// carries no time.
	Time    string
	RawTime string
	// ElapsedMilli is the numeric value of RawTime, zero for placeholder
	// entries the device pages out before a boat is scored.
	ElapsedMilli int64
	Place        string
	SprintStart  bool
}

// Batch is a decoded publication.
type Batch struct {
	EventName string
	Start     string
	Results   []Result
}

// Decoder turns framed scoreboard messages into resolved result batches.
// Identity resolution runs against the loaded schedule; entries that
// cannot be tied to an event are skipped, never fatal.
type Decoder struct {
	sched    *schedule.Schedule
	waypoint string
}

func NewDecoder(sched *schedule.Schedule, waypoint string) *Decoder {
	return &Decoder{sched: sched, waypoint: waypoint}
}

// SetSchedule swaps the schedule, used when a new regatta config loads.
func (d *Decoder) SetSchedule(sched *schedule.Schedule) {
	d.sched = sched
}

// Decode parses and resolves one complete message.
func (d *Decoder) Decode(msg string) (Batch, error) {
	var pub flPub
	if err := json.Unmarshal([]byte(msg), &pub); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if pub.V == nil || *pub.V != supportedVersion {
		return Batch{}, ErrUnsupportedVersion
	}
	if pub.EventNum == nil || pub.Event == nil || len(pub.Results) == 0 {
		return Batch{}, ErrMalformedMessage
	}
	raw := bytes.TrimSpace(pub.Results)
	if len(raw) == 0 || raw[0] != '[' {
		return Batch{}, fmt.Errorf("%w: results not a list", ErrMalformedMessage)
	}
	var results []flResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return Batch{}, fmt.Errorf("%w: results not a list", ErrMalformedMessage)
	}

	batch := Batch{EventName: *pub.Event, Start: pub.Start}
	for _, r := range results {
		res, ok := d.resolve(*pub.EventNum, pub.Start, r)
		if !ok {
			continue
		}
		batch.Results = append(batch.Results, res)
	}
	return batch, nil
}

// resolve works out the event and bow identity of one entry and computes
// its final timestamp.
func (d *Decoder) resolve(msgEventNum, start string, r flResult) (Result, bool) {
	eventNum, bow := msgEventNum, r.L

	place := r.P
	if place == "SCR" {
		place = "Scratch"
	}

	// A lane of the form 12-3 means event-bow; otherwise the id field may
	// carry the same composite from newer scoreboard scripts.
	if parts := strings.Split(r.L, "-"); len(parts) == 2 {
		eventNum, bow = parts[0], parts[1]
	} else if parts := strings.Split(r.ID, "-"); r.ID != "" && len(parts) == 2 {
		eventNum, bow = parts[0], parts[1]
	}

	// Without a schedule the device-supplied identity passes through as
	// is. With one, unknown events fall back to the bow lookup; entries
	// neither path can place are skipped.
	var eventInfo *schedule.EventInfo
	if !d.sched.Empty() {
		if eventNum == timeTrialEvent {
			ev, ok := d.sched.EventForBow(bow)
			if !ok {
				log.Warn().Str("bow", bow).Msg("time trial bow not in schedule, entry skipped")
				return Result{}, false
			}
			eventNum = ev
		}
		eventInfo = d.sched.FindEvent(eventNum)
		if eventInfo == nil {
			ev, ok := d.sched.EventForBow(bow)
			if !ok {
				log.Warn().Str("eventNum", eventNum).Str("bow", bow).Msg("unresolved entry skipped")
				return Result{}, false
			}
			eventNum = ev
		}
	}

	isSprint := d.sched.RaceTypeOf(eventInfo) == "Sprint"
	isSprintStart := eventInfo != nil && isSprint &&
		strings.Contains(strings.ToLower(d.waypoint), "start")

	timestamp := strings.TrimSpace(r.T)
	elapsed := domain.TimeToMilli(timestamp)
	// With a common start time, entries arrive as elapsed durations unless
	// they already look like a wall clock value (two colons).
	if start != "" && strings.Count(timestamp, ":") < 2 {
		timestamp = domain.MilliToString(domain.TimeToMilli(start)+elapsed, true)
	}

	return Result{
		EventNum:     eventNum,
		Bow:          bow,
		Time:         timestamp,
		RawTime:      strings.TrimSpace(r.T),
		ElapsedMilli: elapsed,
		Place:        place,
		SprintStart:  isSprintStart,
	}, true
}
