package services

import (
	"context"
	"time"

	"github.com/codegenie/apiserver/internal/apperr"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/types"
)

// QueryRecord is what gets logged after a generation.
type QueryRecord struct {
	UserID        string
	Query         string
	Language      string
	GeneratedCode string
	Explanation   string
	Model         string
}

// ActivityService appends to and reads the per-user logs.
type ActivityService struct {
	activity RecordLog[types.Activity]
	history  RecordLog[types.HistoryEntry]
	feedback RecordLog[types.Feedback]
	log      logging.Logger
	now      func() time.Time
}

func NewActivityService(
	activity RecordLog[types.Activity],
	history RecordLog[types.HistoryEntry],
	feedback RecordLog[types.Feedback],
	log logging.Logger,
) *ActivityService {
	return &ActivityService{
		activity: activity,
		history:  history,
		feedback: feedback,
		log:      log,
		now:      time.Now,
	}
}

// Record stamps a and appends it to the activity log.
func (s *ActivityService) Record(ctx context.Context, a types.Activity) (types.Activity, error) {
	if !a.ActivityType.Valid() {
		return types.Activity{}, apperr.New(apperr.ErrInvalidInput, "unknown activity type "+string(a.ActivityType))
	}
	a.Timestamp = types.NewTimestamp(s.now())
	if err := s.activity.Append(ctx, a); err != nil {
		return types.Activity{}, err
	}
	return a, nil
}

// ActivityFor returns userID's activity in insertion order, or everyone's
// when userID is empty.
func (s *ActivityService) ActivityFor(ctx context.Context, userID string) ([]types.Activity, error) {
	return s.activity.List(ctx, userID)
}

// RecentActivity returns at most limit entries for userID, newest first.
func (s *ActivityService) RecentActivity(ctx context.Context, userID string, limit int) ([]types.Activity, error) {
	all, err := s.activity.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]types.Activity, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// HistoryFor returns userID's generation history in insertion order.
func (s *ActivityService) HistoryFor(ctx context.Context, userID string) ([]types.HistoryEntry, error) {
	return s.history.List(ctx, userID)
}

// RecordQuery appends to the history and then logs a query activity. The
// two writes are independent; if the second fails the history entry stays.
func (s *ActivityService) RecordQuery(ctx context.Context, rec QueryRecord) (types.HistoryEntry, error) {
	entry := types.HistoryEntry{
		Timestamp:     types.NewTimestamp(s.now()),
		UserID:        rec.UserID,
		Query:         rec.Query,
		Language:      rec.Language,
		GeneratedCode: rec.GeneratedCode,
		Explanation:   rec.Explanation,
		Model:         rec.Model,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return types.HistoryEntry{}, err
	}

	_, err := s.Record(ctx, types.Activity{
		UserID:       rec.UserID,
		ActivityType: types.ActivityQuery,
		Query:        rec.Query,
		Language:     rec.Language,
		Model:        rec.Model,
	})
	if err != nil {
		s.log.Error(ctx, "history written but activity was not", "user_id", rec.UserID, "error", err)
		return entry, err
	}
	return entry, nil
}

// RecordFeedback stores a 1..5 rating and logs a feedback activity.
func (s *ActivityService) RecordFeedback(ctx context.Context, userID, query string, rating int, comments string) (types.Feedback, error) {
	if rating < 1 || rating > 5 {
		return types.Feedback{}, ErrInvalidRating
	}

	fb := types.Feedback{
		Timestamp: types.NewTimestamp(s.now()),
		UserID:    userID,
		Query:     query,
		Rating:    rating,
		Comments:  comments,
	}
	if err := s.feedback.Append(ctx, fb); err != nil {
		return types.Feedback{}, err
	}

	_, err := s.Record(ctx, types.Activity{
		UserID:       userID,
		ActivityType: types.ActivityFeedback,
		Query:        query,
		Rating:       rating,
		Comments:     comments,
	})
	if err != nil {
		s.log.Error(ctx, "feedback written but activity was not", "user_id", userID, "error", err)
		return fb, err
	}
	return fb, nil
}
