package domain

import (
	"fmt"
	"strings"
)

type ProgramType string

const (
	ProgramLeagueGame     ProgramType = "league_game"
	ProgramPractice       ProgramType = "practice"
	ProgramFigureSkating  ProgramType = "figure_skating"
	ProgramPublicSkate    ProgramType = "public_skate"
	ProgramLesson         ProgramType = "lesson"
	ProgramParty          ProgramType = "party"
	ProgramCorporateEvent ProgramType = "corporate_event"
	ProgramMaintenance    ProgramType = "maintenance"
	ProgramOther          ProgramType = "other"
)

// Default ice rates in cents per hour, applied when a booking is approved
// without an explicit rate.
var defaultHourlyRates = map[ProgramType]int64{
	ProgramLeagueGame:     30000,
	ProgramPractice:       25000,
	ProgramFigureSkating:  20000,
	ProgramPublicSkate:    15000,
	ProgramLesson:         12000,
	ProgramParty:          20000,
	ProgramCorporateEvent: 35000,
	ProgramMaintenance:    0,
	ProgramOther:          20000,
}

func ParseProgramType(s string) (ProgramType, error) {
	p := ProgramType(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown program type %q", s)
	}
	return p, nil
}

func (p ProgramType) Valid() bool {
	_, ok := defaultHourlyRates[p]
	return ok
}

func (p ProgramType) DefaultHourlyRateCents() int64 {
	return defaultHourlyRates[p]
}

func (p ProgramType) Label() string {
	return strings.ReplaceAll(string(p), "_", " ")
}
