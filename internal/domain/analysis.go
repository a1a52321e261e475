package domain

import "fmt"

// Metadata keys carried by analysis-category memory entries.
const (
	MetaAnalysisID      = "analysis_id"
	MetaSeverity        = "severity"
	MetaFindings        = "findings"
	MetaRecommendations = "recommendations"
	MetaType            = "type"
)

// AnalysisFromResult decodes an AnalysisSummary from an analysis-category search
// result. It returns false for any other category.
func AnalysisFromResult(r MemorySearchResult) (*AnalysisSummary, bool) {
	if r.Category != CategoryAnalysis {
		return nil, false
	}

	a := &AnalysisSummary{
		Timestamp:       r.Timestamp,
		Severity:        SeverityLow,
		Findings:        stringList(r.Metadata[MetaFindings]),
		Recommendations: stringList(r.Metadata[MetaRecommendations]),
	}
	if id, ok := r.Metadata[MetaAnalysisID]; ok && id != nil {
		a.ID = fmt.Sprint(id)
	}
	if sev, ok := r.Metadata[MetaSeverity].(string); ok && ValidSeverity(sev) {
		a.Severity = Severity(sev)
	}
	if a.Findings == nil {
		a.Findings = []string{}
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	return a, true
}

// Metadata reports the analysis as a metadata bag for storage.
func (a AnalysisSummary) Metadata() map[string]any {
	return map[string]any{
		MetaAnalysisID:      a.ID,
		MetaSeverity:        string(a.Severity),
		MetaFindings:        cloneStrings(a.Findings),
		MetaRecommendations: cloneStrings(a.Recommendations),
	}
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return cloneStrings(list)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
