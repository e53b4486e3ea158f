package notify

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("oversign: %s", event.Status),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Agent:* %s", event.AgentID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Action:* %s", event.ActionType)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Risk:* %s", event.RiskLevel)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Request:* %s", event.RequestID)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch event.RiskLevel {
	case "high":
		severity = "critical"
	case "medium":
		severity = "error"
	case "low":
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("oversign %s: %s by %s", event.Status, event.ActionType, event.AgentID),
			"severity": severity,
			"source":   "oversign",
			"custom_details": map[string]any{
				"request_id":  event.RequestID,
				"agent_id":    event.AgentID,
				"action_type": event.ActionType,
				"risk_level":  event.RiskLevel,
				"reversible":  event.Reversible,
			},
		},
	}
	return json.Marshal(payload)
}
