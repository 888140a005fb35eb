package client

// CreateDeckResponse is the worker's reply to a successful deck upload.
// JobID must be present; its absence is a protocol error even on HTTP 200.
type CreateDeckResponse struct {
	JobID   string   `json:"deck_id"`
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

// StatusResponse is the worker's reply to a job status query.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// DeckSummary describes one stored deck in a listing.
type DeckSummary struct {
	DeckID        string `json:"deck_id"`
	Title         string `json:"title"`
	QuestionCount int    `json:"question_count"`
	CreatedAt     string `json:"created_at"`
	LastModified  string `json:"last_modified"`
}

type deckListResponse struct {
	Decks []DeckSummary `json:"decks"`
}
