package domain

// HistoryQuery selects one page of historical session events. StartDate and
// EndDate are RFC 3339 strings passed through to the backend unparsed.
type HistoryQuery struct {
	Offset     int
	Limit      int
	StartDate  string
	EndDate    string
	EventTypes []string
}

// HistoryEvent mirrors one item of the history endpoint response. Pages are
// returned newest-first; consumers reverse them for display.
type HistoryEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Timestamp string `json:"timestamp"`
	Metadata  struct {
		SenderType string `json:"sender_type"`
	} `json:"metadata"`
	Content struct {
		Text         string `json:"text"`
		Type         string `json:"type,omitempty"`
		ArtifactURL  string `json:"artifact_url,omitempty"`
		ArtifactType string `json:"artifact_type,omitempty"`
	} `json:"content"`
}

// HistoryPage is one page of session history plus the backend's total count,
// used to decide whether more pages exist.
type HistoryPage struct {
	History    []HistoryEvent `json:"history"`
	TotalCount int            `json:"total_count"`
}
