package audit

import "strings"

var highRiskActions = map[string]struct{}{
	"delete":          {},
	"admin":           {},
	"manage_users":    {},
	"system_config":   {},
	"export_data":     {},
	"bulk_operations": {},
}

var mediumRiskActions = map[string]struct{}{
	"create":  {},
	"edit":    {},
	"update":  {},
	"approve": {},
	"reject":  {},
	"publish": {},
	"grant":   {},
	"revoke":  {},
}

// IsHighRiskAction reports whether any segment of action is in the high-risk vocabulary.
func IsHighRiskAction(action string) bool {
	return inVocabulary(action, highRiskActions)
}

// IsMediumRiskAction reports whether any segment of action is in the medium-risk vocabulary.
func IsMediumRiskAction(action string) bool {
	return inVocabulary(action, mediumRiskActions)
}

func inVocabulary(action string, vocabulary map[string]struct{}) bool {
	for _, part := range strings.Split(strings.ToLower(action), ":") {
		if _, ok := vocabulary[strings.TrimSpace(part)]; ok {
			return true
		}
	}

	return false
}

// classify computes the risk level of e. The first matching rule wins.
func classify(e *Event, anomalous bool) RiskLevel {
	switch {
	case e.Type == SecurityViolation:
		return RiskCritical
	case e.Type == SuspiciousActivity:
		return RiskHigh
	case !e.Success:
		return RiskHigh
	case IsHighRiskAction(e.Action):
		return RiskHigh
	case e.Type == DynamicGranted || e.Type == DynamicRevoked || IsMediumRiskAction(e.Action):
		return RiskMedium
	case anomalous:
		return RiskMedium
	default:
		return RiskLow
	}
}
