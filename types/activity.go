package types

// ActivityType distinguishes logged user actions.
type ActivityType string

const (
	ActivityQuery    ActivityType = "query"
	ActivityFeedback ActivityType = "feedback"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	return t == ActivityQuery || t == ActivityFeedback
}

// Activity is one entry of the append-only activity log.
type Activity struct {
	Timestamp    Timestamp    `json:"timestamp"`
	UserID       string       `json:"user_id"`
	ActivityType ActivityType `json:"activity_type"`
	Query        string       `json:"query"`
	Language     string       `json:"language"`
	Rating       int          `json:"rating"`
	Comments     string       `json:"comments"`
	Model        string       `json:"model"`
}

func (a Activity) Owner() string { return a.UserID }

func (a Activity) Reassigned(to string) Activity {
	a.UserID = to
	return a
}

// HistoryEntry records a prompt and the artifact produced for it.
type HistoryEntry struct {
	Timestamp     Timestamp `json:"timestamp"`
	UserID        string    `json:"user_id"`
	Query         string    `json:"query"`
	Language      string    `json:"language"`
	GeneratedCode string    `json:"generated_code"`
	Explanation   string    `json:"explanation"`
	Model         string    `json:"model"`
}

func (h HistoryEntry) Owner() string { return h.UserID }

func (h HistoryEntry) Reassigned(to string) HistoryEntry {
	h.UserID = to
	return h
}

// Feedback is a rating left by a user.
type Feedback struct {
	Timestamp Timestamp `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Query     string    `json:"query"`
	Rating    int       `json:"rating"`
	Comments  string    `json:"comments"`
}

func (f Feedback) Owner() string { return f.UserID }

func (f Feedback) Reassigned(to string) Feedback {
	f.UserID = to
	return f
}
