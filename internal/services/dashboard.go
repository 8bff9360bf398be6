package services

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/codegenie/apiserver/types"
)

const (
	topLanguagesLimit   = 5
	recentFeedbackLimit = 5
	unknownLanguage     = "Unknown"
)

// DashboardService aggregates the stores for admins and per-user views.
type DashboardService struct {
	users    UserRepository
	activity RecordLog[types.Activity]
	history  RecordLog[types.HistoryEntry]
	feedback RecordLog[types.Feedback]
}

func NewDashboardService(
	users UserRepository,
	activity RecordLog[types.Activity],
	history RecordLog[types.HistoryEntry],
	feedback RecordLog[types.Feedback],
) *DashboardService {
	return &DashboardService{
		users:    users,
		activity: activity,
		history:  history,
		feedback: feedback,
	}
}

type snapshot struct {
	users    []types.User
	history  []types.HistoryEntry
	feedback []types.Feedback
}

func (s *DashboardService) load(ctx context.Context) (snapshot, error) {
	var (
		snap snapshot
		err  error
	)
	if snap.users, err = s.users.List(ctx); err != nil {
		return snapshot{}, err
	}
	if snap.history, err = s.history.List(ctx, ""); err != nil {
		return snapshot{}, err
	}
	if snap.feedback, err = s.feedback.List(ctx, ""); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func (s *DashboardService) Stats(ctx context.Context) (types.DashboardStats, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return types.DashboardStats{}, err
	}
	return ComputeStats(snap.users, snap.history, snap.feedback), nil
}

func (s *DashboardService) Search(ctx context.Context, query string) (types.SearchResult, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return types.SearchResult{}, err
	}
	return Search(query, snap.users, snap.history, snap.feedback), nil
}

// UserStats derives a user's counters from the activity log.
func (s *DashboardService) UserStats(ctx context.Context, userID string) (types.UserStats, error) {
	user, err := translateNotFound(s.users.GetByID(ctx, userID))
	if err != nil {
		return types.UserStats{}, err
	}
	activity, err := s.activity.List(ctx, userID)
	if err != nil {
		return types.UserStats{}, err
	}
	return ComputeUserStats(user, activity), nil
}

// ComputeStats summarizes the stores.
func ComputeStats(users []types.User, history []types.HistoryEntry, feedback []types.Feedback) types.DashboardStats {
	ratings := make([]int, 0, len(feedback))
	for _, f := range feedback {
		ratings = append(ratings, f.Rating)
	}

	active := make(map[string]struct{})
	for _, h := range history {
		if h.UserID != "" {
			active[h.UserID] = struct{}{}
		}
	}

	return types.DashboardStats{
		TotalQueries:   len(history),
		TotalFeedback:  len(feedback),
		AverageRating:  averageRating(ratings),
		ActiveUsers:    len(active),
		TopLanguages:   topLanguages(history, topLanguagesLimit),
		RecentFeedback: recentFeedback(feedback, recentFeedbackLimit),
		TotalUsers:     len(users),
	}
}

// topLanguages counts languages in history. Entries without a language
// count as Unknown; any other value, blank or not, is its own bucket. Equal
// counts keep the order in which the languages first appeared.
func topLanguages(history []types.HistoryEntry, limit int) []types.LanguageCount {
	counts := make([]types.LanguageCount, 0)
	index := make(map[string]int)
	for _, h := range history {
		lang := h.Language
		if lang == "" {
			lang = unknownLanguage
		}
		i, ok := index[lang]
		if !ok {
			i = len(counts)
			index[lang] = i
			counts = append(counts, types.LanguageCount{Language: lang})
		}
		counts[i].Count++
	}

	slices.SortStableFunc(counts, func(a, b types.LanguageCount) int {
		return b.Count - a.Count
	})
	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// recentFeedback returns the newest entries first. Timestamps render at a
// fixed width, so comparing the strings orders them chronologically.
func recentFeedback(feedback []types.Feedback, limit int) []types.Feedback {
	sorted := slices.Clone(feedback)
	slices.SortStableFunc(sorted, func(a, b types.Feedback) int {
		return strings.Compare(b.Timestamp.String(), a.Timestamp.String())
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	if sorted == nil {
		sorted = []types.Feedback{}
	}
	return sorted
}

// Search matches query case-insensitively as a substring of usernames and
// ids, history queries and code, and feedback comments and queries.
func Search(query string, users []types.User, history []types.HistoryEntry, feedback []types.Feedback) types.SearchResult {
	q := strings.ToLower(query)
	match := func(fields ...string) bool {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), q) {
				return true
			}
		}
		return false
	}

	result := types.SearchResult{
		Users:    []types.Profile{},
		History:  []types.HistoryEntry{},
		Feedback: []types.Feedback{},
	}
	for _, u := range users {
		if match(u.Username, u.UserID) {
			result.Users = append(result.Users, u.Profile())
		}
	}
	for _, h := range history {
		if match(h.Query, h.GeneratedCode) {
			result.History = append(result.History, h)
		}
	}
	for _, f := range feedback {
		if match(f.Comments, f.Query) {
			result.Feedback = append(result.Feedback, f)
		}
	}
	return result
}

// ComputeUserStats counts a user's queries and feedback. Only positive
// ratings enter the average.
func ComputeUserStats(user types.User, activity []types.Activity) types.UserStats {
	stats := types.UserStats{
		Profile:     user.Profile(),
		TotalLogins: user.TotalLogins,
	}
	ratings := make([]int, 0)
	for _, a := range activity {
		if a.UserID != user.UserID {
			continue
		}
		switch a.ActivityType {
		case types.ActivityQuery:
			stats.TotalQueries++
		case types.ActivityFeedback:
			stats.TotalFeedback++
			if a.Rating > 0 {
				ratings = append(ratings, a.Rating)
			}
		}
	}
	stats.AverageRating = averageRating(ratings)
	return stats
}

func averageRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return round2(float64(sum) / float64(len(ratings)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
