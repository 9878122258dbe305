// Package schedule holds the regatta event list used to resolve incoming
// timing results to an event and bow. It is loaded from a mobile config
// snapshot and consulted read-only by the decoder.
package schedule

import (
	"encoding/json"
	"fmt"
	"os"
)

// Entry is one boat within an event.
type Entry struct {
	Bow        string `json:"Bow"`
	EventNum   string `json:"EventNum"`
	Crew       string `json:"Crew"`
	CrewAbbrev string `json:"CrewAbbrev"`
	Stroke     string `json:"Stroke"`
}

// EventInfo is one scheduled event.
type EventInfo struct {
	EventNum   string  `json:"EventNum"`
	Event      string  `json:"Event"`
	RaceType   string  `json:"RaceType"`
	Day        string  `json:"Day"`
	Start      string  `json:"Start"`
	EventItems []Entry `json:"eventItems"`
}

// RegattaInfo carries regatta-wide defaults.
type RegattaInfo struct {
	RaceType string `json:"RaceType"`
}

// Schedule is the loaded event list plus the derived bow lookup table.
// A nil *Schedule behaves as an empty schedule.
type Schedule struct {
	Info      RegattaInfo `json:"info"`
	EventList []EventInfo `json:"eventList"`

	bowToEvent map[string]string
}

// Load reads a schedule snapshot from a JSON file and builds the bow
// lookup table.
func Load(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	var s Schedule
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	s.buildBowToEvent()
	return &s, nil
}

// New builds a schedule from an already-decoded event list.
func New(info RegattaInfo, events []EventInfo) *Schedule {
	s := &Schedule{Info: info, EventList: events}
	s.buildBowToEvent()
	return s
}

// buildBowToEvent maps a bow to an event only when the bow appears in
// exactly one event; ambiguous bows stay unresolvable.
func (s *Schedule) buildBowToEvent() {
	byBow := map[string][]string{}
	for _, ev := range s.EventList {
		for _, entry := range ev.EventItems {
			byBow[entry.Bow] = append(byBow[entry.Bow], ev.EventNum)
		}
	}
	s.bowToEvent = map[string]string{}
	for bow, events := range byBow {
		if len(events) == 1 {
			s.bowToEvent[bow] = events[0]
		}
	}
}

// Empty reports whether no events are loaded.
func (s *Schedule) Empty() bool {
	return s == nil || len(s.EventList) == 0
}

// FindEvent returns the scheduled event with the given number, or nil.
func (s *Schedule) FindEvent(eventNum string) *EventInfo {
	if s == nil {
		return nil
	}
	for i := range s.EventList {
		if s.EventList[i].EventNum == eventNum {
			return &s.EventList[i]
		}
	}
	return nil
}

// EventForBow resolves a bow through the lookup table.
func (s *Schedule) EventForBow(bow string) (string, bool) {
	if s == nil {
		return "", false
	}
	ev, ok := s.bowToEvent[bow]
	return ev, ok
}

// RaceTypeOf returns the event's race type, falling back to the regatta
// default when the event does not set one.
func (s *Schedule) RaceTypeOf(ev *EventInfo) string {
	if ev != nil && ev.RaceType != "" {
		return ev.RaceType
	}
	if s == nil {
		return ""
	}
	return s.Info.RaceType
}
