package engagement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/storyloop/dailystories/model"
	Logger "github.com/storyloop/dailystories/utils/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Attribution identifies who performed an anonymous or authenticated
// action. Dedup falls back member -> device -> IP.
type Attribution struct {
	MemberID  *string
	DeviceID  *string
	IpAddress string
}

// ViewContext carries the request metadata recorded alongside a view.
type ViewContext struct {
	SessionID string
	UserAgent string
	Referrer  string
	Metadata  datatypes.JSON
}

// ViewResult is what the client sees after reporting a view. A repeated
// view inside the dedup window is a success with IsNewView false, not an
// error.
type ViewResult struct {
	IsNewView  bool  `json:"is_new_view"`
	TotalViews int64 `json:"total_views"`
}

// RatingResult bundles the saved rating with the aggregate it produced.
type RatingResult struct {
	Rating    *model.Rating          `json:"rating"`
	Aggregate *model.RatingAggregate `json:"aggregate"`
}

// RecordView accepts one story view. The story must be inside its
// publication window. A second view from the same attribution key within
// the dedup window records nothing and returns IsNewView false; otherwise
// the event row is inserted, the story's denormalized counter is bumped
// with an atomic SQL increment, and an idempotent `view` interaction is
// upserted for authenticated viewers.
func (s *Service) RecordView(ctx context.Context, storyId string, attr Attribution, viewCtx ViewContext) (*ViewResult, error) {
	now := time.Now()

	var story model.Story
	res := s.DB.WithContext(ctx).Where("id = ?", storyId).Limit(1).Find(&story)
	if res.Error != nil {
		return nil, transient(res.Error, "load story")
	}
	if res.RowsAffected == 0 {
		return nil, errors.Wrapf(ErrNotFound, "story %s", storyId)
	}
	if !story.IsPublishable(now) {
		return nil, errors.Wrapf(ErrNotAvailable, "story %s", storyId)
	}

	dedup := s.DB.WithContext(ctx).Model(&model.ViewEvent{}).
		Where("story_id = ? AND viewed_at > ?", storyId, now.Add(-s.DedupWindow))
	switch {
	case attr.MemberID != nil:
		dedup = dedup.Where("member_id = ?", *attr.MemberID)
	case attr.DeviceID != nil:
		dedup = dedup.Where("device_id = ?", *attr.DeviceID)
	default:
		dedup = dedup.Where("ip_address = ?", attr.IpAddress)
	}
	var seen int64
	if err := dedup.Count(&seen).Error; err != nil {
		return nil, transient(err, "dedup lookup")
	}
	if seen > 0 {
		// already seen inside the window: success, no new event
		return &ViewResult{IsNewView: false, TotalViews: story.Views}, nil
	}

	var totalViews int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event := model.ViewEvent{
			Id:        uuid.New().String(),
			StoryID:   storyId,
			MemberID:  attr.MemberID,
			DeviceID:  attr.DeviceID,
			SessionID: viewCtx.SessionID,
			ViewedAt:  now,
			UserAgent: viewCtx.UserAgent,
			IpAddress: attr.IpAddress,
			Referrer:  viewCtx.Referrer,
			Metadata:  viewCtx.Metadata,
		}
		if err := tx.Create(&event).Error; err != nil {
			return transient(err, "insert view event")
		}

		// atomic increment; a read-modify-write here would lose concurrent
		// views
		if err := tx.Model(&model.Story{}).Where("id = ?", storyId).
			UpdateColumn("views", gorm.Expr("views + ?", 1)).Error; err != nil {
			return transient(err, "increment view counter")
		}

		if attr.MemberID != nil {
			// upsert, not insert: a prior `view` interaction must not trip
			// the (member, story, action) uniqueness invariant
			interaction := model.Interaction{
				Id:       uuid.New().String(),
				MemberID: *attr.MemberID,
				StoryID:  storyId,
				Action:   model.InteractionActionView,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&interaction).Error; err != nil {
				return transient(err, "upsert view interaction")
			}
		}

		var fresh model.Story
		if err := tx.Select("views").Where("id = ?", storyId).Find(&fresh).Error; err != nil {
			return transient(err, "reload view counter")
		}
		totalViews = fresh.Views
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.invalidateStoryCaches(ctx, storyId); err != nil {
		Logger.Log.Warn("cache invalidation failed for story ", storyId, ": ", err)
	}
	s.emit("views.recorded")

	return &ViewResult{IsNewView: true, TotalViews: totalViews}, nil
}

// SubmitRating upserts a member's rating of a story: a re-rate replaces
// the value and comment in place, it never creates a second row. The
// rating write and the aggregate update commit atomically; partial
// failure leaves neither visible.
func (s *Service) SubmitRating(ctx context.Context, memberId string, storyId string, rating int, comment string) (*RatingResult, error) {
	if rating < 1 || rating > 5 {
		return nil, errors.Wrapf(ErrInvalidArgument, "rating %d out of range [1,5]", rating)
	}
	if err := s.checkMemberExists(ctx, memberId); err != nil {
		return nil, err
	}
	if err := s.checkStoryExists(ctx, storyId); err != nil {
		return nil, err
	}

	var saved model.Rating
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Rating
		res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("member_id = ? AND story_id = ?", memberId, storyId).
			Limit(1).
			Find(&existing)
		if res.Error != nil {
			return transient(res.Error, "load existing rating")
		}

		if res.RowsAffected == 1 {
			old := existing
			existing.Rating = rating
			existing.Comment = comment
			if err := tx.Save(&existing).Error; err != nil {
				return transient(err, "update rating")
			}
			saved = existing
			return applyRatingDelta(tx, storyId, &old, &existing)
		}

		fresh := model.Rating{
			Id:       uuid.New().String(),
			MemberID: memberId,
			StoryID:  storyId,
			Rating:   rating,
			Comment:  comment,
		}
		if err := tx.Create(&fresh).Error; err != nil {
			if isUniqueViolation(err) {
				// lost a race against the member's own concurrent submit;
				// a retry takes the update path
				return transient(err, "concurrent rating insert")
			}
			return transient(err, "insert rating")
		}
		saved = fresh
		return applyRatingDelta(tx, storyId, nil, &fresh)
	})
	if err != nil {
		return nil, err
	}

	if err := s.invalidateStoryCaches(ctx, storyId); err != nil {
		Logger.Log.Warn("cache invalidation failed for story ", storyId, ": ", err)
	}
	if err := s.invalidateMemberCaches(ctx, memberId); err != nil {
		Logger.Log.Warn("cache invalidation failed for member ", memberId, ": ", err)
	}
	s.emit("ratings.submitted")

	agg, err := s.loadAggregate(ctx, storyId)
	if err != nil {
		return nil, err
	}
	return &RatingResult{Rating: &saved, Aggregate: agg}, nil
}

// CreateRating is the strict insert used by admin imports. Unlike
// SubmitRating it refuses to touch an existing rating: a duplicate
// surfaces as ErrAlreadyRated and the caller must update explicitly.
func (s *Service) CreateRating(ctx context.Context, memberId string, storyId string, rating int, comment string, verified bool) (*model.Rating, error) {
	if rating < 1 || rating > 5 {
		return nil, errors.Wrapf(ErrInvalidArgument, "rating %d out of range [1,5]", rating)
	}
	if err := s.checkMemberExists(ctx, memberId); err != nil {
		return nil, err
	}
	if err := s.checkStoryExists(ctx, storyId); err != nil {
		return nil, err
	}

	fresh := model.Rating{
		Id:         uuid.New().String(),
		MemberID:   memberId,
		StoryID:    storyId,
		Rating:     rating,
		Comment:    comment,
		IsVerified: verified,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&fresh).Error; err != nil {
			if isUniqueViolation(err) {
				return errors.Wrapf(ErrAlreadyRated, "member %s story %s", memberId, storyId)
			}
			return transient(err, "insert rating")
		}
		return applyRatingDelta(tx, storyId, nil, &fresh)
	})
	if err != nil {
		return nil, err
	}

	if err := s.invalidateStoryCaches(ctx, storyId); err != nil {
		Logger.Log.Warn("cache invalidation failed for story ", storyId, ": ", err)
	}
	return &fresh, nil
}

// DeleteRating removes a member's rating and re-derives the aggregate
// with a full rebuild (a removal delta cannot recover last_rated_at).
// When the last rating goes, the aggregate row goes with it.
func (s *Service) DeleteRating(ctx context.Context, memberId string, storyId string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("member_id = ? AND story_id = ?", memberId, storyId).Delete(&model.Rating{})
		if res.Error != nil {
			return transient(res.Error, "delete rating")
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrNotFound, "rating by member %s on story %s", memberId, storyId)
		}
		return RebuildRatingAggregate(tx, storyId)
	})
	if err != nil {
		return err
	}

	if err := s.invalidateStoryCaches(ctx, storyId); err != nil {
		Logger.Log.Warn("cache invalidation failed for story ", storyId, ": ", err)
	}
	if err := s.invalidateMemberCaches(ctx, memberId); err != nil {
		Logger.Log.Warn("cache invalidation failed for member ", memberId, ": ", err)
	}
	s.emit("ratings.deleted")
	return nil
}

// RecordInteraction inserts one (member, story, action) row. A duplicate
// is a typed error, not an upsert: toggling is the caller's explicit
// move. Report actions additionally feed the moderation notifier.
func (s *Service) RecordInteraction(ctx context.Context, memberId string, storyId string, action model.InteractionAction, metadata datatypes.JSON) (*model.Interaction, error) {
	if !action.IsValid() {
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown interaction action %q", action)
	}
	if err := s.checkMemberExists(ctx, memberId); err != nil {
		return nil, err
	}

	var story model.Story
	res := s.DB.WithContext(ctx).Where("id = ?", storyId).Limit(1).Find(&story)
	if res.Error != nil {
		return nil, transient(res.Error, "load story")
	}
	if res.RowsAffected == 0 {
		return nil, errors.Wrapf(ErrNotFound, "story %s", storyId)
	}
	if !story.IsPublishable(time.Now()) {
		return nil, errors.Wrapf(ErrNotAvailable, "story %s", storyId)
	}

	interaction := model.Interaction{
		Id:       uuid.New().String(),
		MemberID: memberId,
		StoryID:  storyId,
		Action:   action,
		Metadata: metadata,
	}
	if err := s.DB.WithContext(ctx).Create(&interaction).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrapf(ErrDuplicateInteraction, "member %s story %s action %s", memberId, storyId, action)
		}
		return nil, transient(err, "insert interaction")
	}

	if err := s.invalidateStoryCaches(ctx, storyId); err != nil {
		Logger.Log.Warn("cache invalidation failed for story ", storyId, ": ", err)
	}
	if err := s.invalidateMemberCaches(ctx, memberId); err != nil {
		Logger.Log.Warn("cache invalidation failed for member ", memberId, ": ", err)
	}
	s.emit("interactions.recorded", "action:"+action.String())

	if action == model.InteractionActionReport && s.Notifier != nil {
		var reports int64
		s.DB.WithContext(ctx).Model(&model.Interaction{}).
			Where("story_id = ? AND action = ?", storyId, model.InteractionActionReport).
			Count(&reports)
		go s.Notifier.StoryReported(storyId, story.Title, reports)
	}

	return &interaction, nil
}

// RemoveInteraction deletes one (member, story, action) row.
func (s *Service) RemoveInteraction(ctx context.Context, memberId string, storyId string, action model.InteractionAction) error {
	if !action.IsValid() {
		return errors.Wrapf(ErrInvalidArgument, "unknown interaction action %q", action)
	}
	res := s.DB.WithContext(ctx).
		Where("member_id = ? AND story_id = ? AND action = ?", memberId, storyId, action).
		Delete(&model.Interaction{})
	if res.Error != nil {
		return transient(res.Error, "delete interaction")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "interaction %s by member %s on story %s", action, memberId, storyId)
	}

	if err := s.invalidateStoryCaches(ctx, storyId); err != nil {
		Logger.Log.Warn("cache invalidation failed for story ", storyId, ": ", err)
	}
	if err := s.invalidateMemberCaches(ctx, memberId); err != nil {
		Logger.Log.Warn("cache invalidation failed for member ", memberId, ": ", err)
	}
	return nil
}

// UpdateReadingProgress upserts the single (member, story) progress row.
// The asymmetry is deliberate and load-bearing: progress is replaced
// (even by a lower value, clients may resync) while time spent only ever
// accumulates.
func (s *Service) UpdateReadingProgress(ctx context.Context, memberId string, storyId string, progress int, additionalTimeSpent int64) (*model.ReadingProgress, error) {
	if additionalTimeSpent < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "additional time spent %d is negative", additionalTimeSpent)
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if err := s.checkMemberExists(ctx, memberId); err != nil {
		return nil, err
	}
	if err := s.checkStoryExists(ctx, storyId); err != nil {
		return nil, err
	}

	now := time.Now()
	row := model.ReadingProgress{
		MemberID:         memberId,
		StoryID:          storyId,
		Progress:         progress,
		TimeSpentSeconds: additionalTimeSpent,
		LastReadAt:       now,
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "member_id"}, {Name: "story_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"progress":           progress,
			"time_spent_seconds": gorm.Expr("reading_progresses.time_spent_seconds + ?", additionalTimeSpent),
			"last_read_at":       now,
			"updated_at":         now,
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, transient(err, "upsert reading progress")
	}

	var fresh model.ReadingProgress
	if err := s.DB.WithContext(ctx).
		Where("member_id = ? AND story_id = ?", memberId, storyId).
		First(&fresh).Error; err != nil {
		return nil, transient(err, "reload reading progress")
	}

	if err := s.invalidateMemberCaches(ctx, memberId); err != nil {
		Logger.Log.Warn("cache invalidation failed for member ", memberId, ": ", err)
	}
	return &fresh, nil
}

// PurgeMember deletes everything a member produced and then the member
// itself, all inside one transaction. Touched stories get their
// aggregates rebuilt in the same transaction; view events stay (the views
// were real) but lose their member attribution.
func (s *Service) PurgeMember(ctx context.Context, memberId string) error {
	var touchedStories []string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member model.Member
		res := tx.Where("id = ?", memberId).Limit(1).Find(&member)
		if res.Error != nil {
			return transient(res.Error, "load member")
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrNotFound, "member %s", memberId)
		}

		if err := tx.Model(&model.Rating{}).Where("member_id = ?", memberId).
			Distinct().Pluck("story_id", &touchedStories).Error; err != nil {
			return transient(err, "collect rated stories")
		}
		if err := tx.Where("member_id = ?", memberId).Delete(&model.Rating{}).Error; err != nil {
			return transient(err, "delete ratings")
		}
		for _, storyId := range touchedStories {
			if err := RebuildRatingAggregate(tx, storyId); err != nil {
				return err
			}
		}

		if err := tx.Where("member_id = ?", memberId).Delete(&model.Interaction{}).Error; err != nil {
			return transient(err, "delete interactions")
		}
		if err := tx.Where("member_id = ?", memberId).Delete(&model.ReadingProgress{}).Error; err != nil {
			return transient(err, "delete reading progress")
		}
		if err := tx.Model(&model.ViewEvent{}).Where("member_id = ?", memberId).
			Update("member_id", nil).Error; err != nil {
			return transient(err, "detach view events")
		}
		if err := tx.Delete(&model.Member{Id: memberId}).Error; err != nil {
			return transient(err, "delete member")
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, storyId := range touchedStories {
		if err := s.invalidateStoryCaches(ctx, storyId); err != nil {
			Logger.Log.Warn("cache invalidation failed for story ", storyId, ": ", err)
		}
	}
	if err := s.invalidateMemberCaches(ctx, memberId); err != nil {
		Logger.Log.Warn("cache invalidation failed for member ", memberId, ": ", err)
	}
	s.emit("members.purged")
	return nil
}

// SetStoryActive flips a story's publication flag and appends the status
// history row in the same transaction. A no-op flip writes no history.
func (s *Service) SetStoryActive(ctx context.Context, storyId string, active bool, changedBy string) (*model.Story, error) {
	var story model.Story
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", storyId).Limit(1).Find(&story)
		if res.Error != nil {
			return transient(res.Error, "load story")
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrNotFound, "story %s", storyId)
		}
		if story.Active == active {
			return nil
		}

		history := model.StoryStatusHistory{
			Id:         uuid.New().String(),
			StoryID:    storyId,
			FromActive: story.Active,
			ToActive:   active,
			ChangedBy:  changedBy,
		}
		if err := tx.Create(&history).Error; err != nil {
			return transient(err, "append status history")
		}
		story.Active = active
		if err := tx.Save(&story).Error; err != nil {
			return transient(err, "update story")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.invalidateStoryCaches(ctx, storyId); err != nil {
		Logger.Log.Warn("cache invalidation failed for story ", storyId, ": ", err)
	}
	return &story, nil
}

func (s *Service) checkMemberExists(ctx context.Context, memberId string) error {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&model.Member{}).Where("id = ?", memberId).Count(&count).Error; err != nil {
		return transient(err, "load member")
	}
	if count == 0 {
		return errors.Wrapf(ErrNotFound, "member %s", memberId)
	}
	return nil
}

func (s *Service) checkStoryExists(ctx context.Context, storyId string) error {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&model.Story{}).Where("id = ?", storyId).Count(&count).Error; err != nil {
		return transient(err, "load story")
	}
	if count == 0 {
		return errors.Wrapf(ErrNotFound, "story %s", storyId)
	}
	return nil
}

func (s *Service) loadAggregate(ctx context.Context, storyId string) (*model.RatingAggregate, error) {
	var agg model.RatingAggregate
	res := s.DB.WithContext(ctx).Where("story_id = ?", storyId).Limit(1).Find(&agg)
	if res.Error != nil {
		return nil, transient(res.Error, "load rating aggregate")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &agg, nil
}
