package repository

import (
	"context"
	"time"

	"carelog/internal/care/model"
	docmodel "carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/gateway"
)

// RoutineRepository logs routine entries and serves per-kid timelines.
type RoutineRepository struct {
	*Repository[model.Routine, *model.Routine]
}

func NewRoutineRepository(gw *gateway.Gateway) *RoutineRepository {
	return &RoutineRepository{Repository: New[model.Routine](gw, docmodel.KindRoutine)}
}

// Log records one routine entry and returns its ID.
func (r *RoutineRepository) Log(ctx context.Context, owner string, entry *model.Routine) (string, error) {
	return r.Add(ctx, owner, entry)
}

// KidRange selects the entries of kidID with from <= date < to, newest first.
// A zero bound leaves that side open.
func KidRange(kidID string, from, to time.Time) *docmodel.QuerySpec {
	spec := docmodel.NewQuery().Where("kidID", docmodel.Equal, kidID)
	if !from.IsZero() {
		spec.Where("date", docmodel.GreaterThanOrEqual, from.UTC())
	}
	if !to.IsZero() {
		spec.Where("date", docmodel.LessThan, to.UTC())
	}
	return spec.OrderBy("date", true)
}

func (r *RoutineRepository) ListenForKid(owner, kidID string, from, to time.Time, onUpdate func([]model.Routine, error)) (*gateway.Subscription, error) {
	return r.ListenWhere(owner, KidRange(kidID, from, to), onUpdate)
}

func (r *RoutineRepository) ListForKid(ctx context.Context, owner, kidID string, from, to time.Time) ([]model.Routine, error) {
	return r.Query(ctx, owner, KidRange(kidID, from, to))
}

// ForDay returns the entries of kidID on the calendar day of day in its location.
func (r *RoutineRepository) ForDay(ctx context.Context, owner, kidID string, day time.Time) ([]model.Routine, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return r.ListForKid(ctx, owner, kidID, start, start.AddDate(0, 0, 1))
}
