package ledger

// Summary aggregates one session for reporting. Counts come from a single
// pass over the session's entries in file order.
type Summary struct {
	SessionID       string         `json:"session_id"`
	TotalEntries    int            `json:"total_entries"`
	FirstTimestamp  string         `json:"first_timestamp,omitempty"`
	LastTimestamp   string         `json:"last_timestamp,omitempty"`
	ActionCounts    map[Action]int `json:"action_counts,omitempty"`
	AgentCounts     map[string]int `json:"agent_counts,omitempty"`
	TotalDurationMS int64          `json:"total_duration_ms"`
	FailedCount     int            `json:"failed_count"`
	SuccessRate     float64        `json:"success_rate"`
}

// Summarize aggregates a session in this ledger's file. An empty sessionID
// means the current session.
func (l *Ledger) Summarize(sessionID string) (Summary, error) {
	if sessionID == "" {
		sessionID = l.SessionID()
	}
	return SummarizeFile(l.path, sessionID)
}

// SummarizeFile aggregates a session in a ledger file with no open handle.
// A session with no entries yields a summary with TotalEntries 0.
func SummarizeFile(path, sessionID string) (Summary, error) {
	entries, err := QueryFile(path, Filter{SessionID: sessionID})
	if err != nil {
		return Summary{}, err
	}

	s := Summary{SessionID: sessionID, TotalEntries: len(entries)}
	if len(entries) == 0 {
		return s, nil
	}

	s.FirstTimestamp = entries[0].Timestamp
	s.LastTimestamp = entries[len(entries)-1].Timestamp
	s.ActionCounts = make(map[Action]int)
	s.AgentCounts = make(map[string]int)
	for _, e := range entries {
		s.ActionCounts[e.Action]++
		s.AgentCounts[e.AgentID]++
		if e.DurationMS != nil {
			s.TotalDurationMS += *e.DurationMS
		}
		if !e.Success {
			s.FailedCount++
		}
	}
	s.SuccessRate = float64(len(entries)-s.FailedCount) / float64(len(entries)) * 100
	return s, nil
}
