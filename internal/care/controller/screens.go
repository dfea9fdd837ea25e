package controller

import (
	"time"

	"carelog/internal/care/model"
	"carelog/internal/care/repository"
	"carelog/internal/docstore/gateway"
	"carelog/internal/shared/logger"
	"carelog/internal/shared/mainloop"
)

// NewKidsController lists the owner's kids.
func NewKidsController(loop *mainloop.Loop, kids *repository.KidRepository, log logger.Logger) *ListController[model.Kid] {
	return NewListController(loop, "kids", kids.Listen, log)
}

// NewRoutinesController lists one kid's routine entries of the last window, newest first.
// A zero window lists everything.
func NewRoutinesController(loop *mainloop.Loop, routines *repository.RoutineRepository, kidID string, window time.Duration, log logger.Logger) *ListController[model.Routine] {
	listen := func(owner string, fn func([]model.Routine, error)) (*gateway.Subscription, error) {
		var from time.Time
		if window > 0 {
			from = time.Now().Add(-window)
		}
		return routines.ListenForKid(owner, kidID, from, time.Time{}, fn)
	}
	return NewListController(loop, "routines", listen, log)
}

// MedicalControllers groups the lists of a kid's medical screen.
type MedicalControllers struct {
	Allergies   *ListController[model.Allergy]
	Conditions  *ListController[model.MedicalCondition]
	Medications *ListController[model.Medication]
	Emergency   *ListController[model.EmergencyMedication]
	Specialists *ListController[model.SpecialistInfo]
}

func forKid[T any](kidID string, listen func(owner, kidID string, fn func([]T, error)) (*gateway.Subscription, error)) ListenFunc[T] {
	return func(owner string, fn func([]T, error)) (*gateway.Subscription, error) {
		return listen(owner, kidID, fn)
	}
}

func NewMedicalControllers(loop *mainloop.Loop, medical *repository.MedicalRepository, kidID string, log logger.Logger) *MedicalControllers {
	return &MedicalControllers{
		Allergies:   NewListController(loop, "allergies", forKid(kidID, medical.ListenAllergiesForKid), log),
		Conditions:  NewListController(loop, "conditions", forKid(kidID, medical.ListenConditionsForKid), log),
		Medications: NewListController(loop, "medications", forKid(kidID, medical.ListenMedicationsForKid), log),
		Emergency:   NewListController(loop, "emergency_medications", forKid(kidID, medical.ListenEmergencyMedicationsForKid), log),
		Specialists: NewListController(loop, "specialists", forKid(kidID, medical.ListenSpecialistsForKid), log),
	}
}

// Bindables returns the controllers for a SessionController.
func (m *MedicalControllers) Bindables() []Bindable {
	return []Bindable{m.Allergies, m.Conditions, m.Medications, m.Emergency, m.Specialists}
}
