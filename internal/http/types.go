package http

// MessagePayload is one conversation message in a turn request.
type MessagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is the request body for POST /api/v1/turn.
type TurnRequest struct {
	SessionID      string           `json:"session_id,omitempty"`
	TurnID         string           `json:"turn_id,omitempty"`
	Messages       []MessagePayload `json:"messages"`
	UserProfile    map[string]any   `json:"user_profile,omitempty"`
	Goal           string           `json:"goal,omitempty"`
	Constraints    map[string]any   `json:"constraints,omitempty"`
	StylesAllowed  []string         `json:"styles_allowed,omitempty"`
	CandidateCount int              `json:"candidate_count,omitempty"`
}

// CandidateView is one candidate as presented to API clients.
type CandidateView struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Style string `json:"style"`
}

// TurnResponse is the response body for POST /api/v1/turn.
type TurnResponse struct {
	SessionID    string          `json:"session_id"`
	TurnID       string          `json:"turn_id"`
	ContextHash  string          `json:"context_hash"`
	Reply        CandidateView   `json:"reply"`
	Propensity   float64         `json:"propensity"`
	Propensities []float64       `json:"propensities"`
	Candidates   []CandidateView `json:"candidates"`
}

// FeedbackRequest is the request body for POST /api/v1/feedback.
type FeedbackRequest struct {
	SessionID   string  `json:"session_id"`
	TurnID      string  `json:"turn_id"`
	ChosenIndex int     `json:"chosen_idx"`
	Reward      float64 `json:"reward"`
}

// FeedbackResponse is the response body for POST /api/v1/feedback.
type FeedbackResponse struct {
	Status string `json:"status"`
}

// StyleView is one reply style as presented to API clients.
type StyleView struct {
	Name        string  `json:"name"`
	Initiative  float64 `json:"initiative"`
	Risk        float64 `json:"risk"`
	Description string  `json:"description,omitempty"`
}

// StylesResponse is the response body for GET /api/v1/styles.
type StylesResponse struct {
	Styles []StyleView `json:"styles"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
}
