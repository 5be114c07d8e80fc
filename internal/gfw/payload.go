package gfw

import "strings"

// Analysis ids understood by the service.
const (
	AnalysisAlerts = "Alerts"
	AnalysisGHG    = "GHG"
	AnalysisFCD    = "FCD"
)

// PayloadSettings carries the per-analysis knobs used to build trigger bodies.
type PayloadSettings struct {
	UserEmail       string
	AlertStartDate  string
	AlertEndDate    string
	GHGYield        float64
	GHGBaselineYear int
}

type alertsPayload struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	UserEmail string `json:"userEmail"`
}

type ghgPayload struct {
	Yield        float64 `json:"yield"`
	BaselineYear int     `json:"baselineYear"`
	UserEmail    string  `json:"userEmail"`
}

type defaultPayload struct {
	UserEmail string `json:"userEmail"`
}

// CanonicalAnalysisID returns the service spelling of a case-insensitive analysis id.
func CanonicalAnalysisID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	for _, id := range []string{AnalysisAlerts, AnalysisGHG, AnalysisFCD} {
		if strings.EqualFold(trimmed, id) {
			return id
		}
	}
	return trimmed
}

// BuildTriggerPayload returns the generate body for analysisID.
func BuildTriggerPayload(analysisID string, s PayloadSettings) any {
	switch CanonicalAnalysisID(analysisID) {
	case AnalysisAlerts:
		return alertsPayload{StartDate: s.AlertStartDate, EndDate: s.AlertEndDate, UserEmail: s.UserEmail}
	case AnalysisGHG:
		return ghgPayload{Yield: s.GHGYield, BaselineYear: s.GHGBaselineYear, UserEmail: s.UserEmail}
	default:
		return defaultPayload{UserEmail: s.UserEmail}
	}
}
