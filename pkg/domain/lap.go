package domain

import "fmt"

// Delivery status values tracked per lap.
const (
	StatusTxPend = "TxPend"
	StatusOK     = "OK"
	StatusFail   = "Fail"
)

// StateDeleted marks a lap as soft-deleted. Deleted laps stay in storage
// so the remote side can see the removal.
const StateDeleted = "Deleted"

// PenaltyGate is the gate value used for penalty records.
const PenaltyGate = "Pen"

var penalties = []string{"DNS", "DNF", "Scratch", "DQ"}

// IsPenalty reports whether place is one of the recognized penalty codes.
func IsPenalty(place string) bool {
	for _, p := range penalties {
		if p == place {
			return true
		}
	}
	return false
}

// Lap is the canonical timing record. One active lap exists per KeyID at
// any instant; the UUID survives every update to that KeyID so the remote
// service can track the record across mutations.
type Lap struct {
	KeyID       string `json:"keyid" msgpack:"keyid"`
	UUID        string `json:"uuid" msgpack:"uuid"`
	Bow         string `json:"Bow" msgpack:"Bow"`
	EventNum    string `json:"EventNum" msgpack:"EventNum"`
	Time        string `json:"Time" msgpack:"Time"`
	Crew        string `json:"Crew" msgpack:"Crew"`
	CrewAbbrev  string `json:"CrewAbbrev" msgpack:"CrewAbbrev"`
	Event       string `json:"Event" msgpack:"Event"`
	EventAbbrev string `json:"EventAbbrev" msgpack:"EventAbbrev"`
	Gate        string `json:"Gate" msgpack:"Gate"`
	AdjTime     string `json:"AdjTime" msgpack:"AdjTime"`
	Place       int    `json:"Place" msgpack:"Place"`
	Stroke      string `json:"Stroke" msgpack:"Stroke"`
	PenaltyCode string `json:"PenaltyCode,omitempty" msgpack:"PenaltyCode"`
	State       string `json:"State,omitempty" msgpack:"State"`
	Status      string `json:"Status,omitempty" msgpack:"Status"`
	SequenceNum int64  `json:"SequenceNum" msgpack:"SequenceNum"`
	Timestamp   int64  `json:"Timestamp" msgpack:"Timestamp"`
}

// Active reports whether the lap has not been soft-deleted.
func (l Lap) Active() bool {
	return l.State != StateDeleted
}

func (l Lap) String() string {
	return fmt.Sprintf("keyid: %v, uuid: %v, time: %v, pen: %v, state: %v, seq: %v",
		l.KeyID,
		l.UUID,
		l.Time,
		l.PenaltyCode,
		l.State,
		l.SequenceNum,
	)
}

// TimingKeyID builds the identity key for a timing record.
func TimingKeyID(gate, eventNum, bow string) string {
	return fmt.Sprintf("%s-%s-%s", gate, eventNum, bow)
}

// PenaltyKeyID builds the identity key for a penalty record.
func PenaltyKeyID(eventNum, bow string) string {
	return fmt.Sprintf("%s-%s-%s", PenaltyGate, eventNum, bow)
}

// TxLapItem is the envelope sent to the results service for one lap. It is
// built at send time and never persisted.
type TxLapItem struct {
	UUID string `json:"uuid"`
	Op   string `json:"op"`
	Data Lap    `json:"data"`
}
