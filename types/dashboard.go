package types

// LanguageCount is one bucket of the top-languages histogram.
type LanguageCount struct {
	Language string `json:"language"`
	Count    int    `json:"count"`
}

// DashboardStats summarizes usage across all stores.
type DashboardStats struct {
	TotalQueries   int             `json:"total_queries"`
	TotalFeedback  int             `json:"total_feedback"`
	AverageRating  float64         `json:"average_rating"`
	ActiveUsers    int             `json:"active_users"`
	TopLanguages   []LanguageCount `json:"top_languages"`
	RecentFeedback []Feedback      `json:"recent_feedback"`
	TotalUsers     int             `json:"total_users"`
}

// SearchResult groups the matches of a free-text search.
type SearchResult struct {
	Users    []Profile      `json:"users"`
	History  []HistoryEntry `json:"history"`
	Feedback []Feedback     `json:"feedback"`
}

// UserStats is a user's profile with counters derived from the activity log.
type UserStats struct {
	Profile       Profile `json:"user"`
	TotalQueries  int     `json:"total_queries"`
	TotalFeedback int     `json:"total_feedback"`
	AverageRating float64 `json:"average_rating"`
	TotalLogins   int     `json:"total_logins"`
}
