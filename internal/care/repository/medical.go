package repository

import (
	"carelog/internal/care/model"
	docmodel "carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/gateway"
)

// MedicalRepository groups the per-kid medical collections.
type MedicalRepository struct {
	Allergies   *Repository[model.Allergy, *model.Allergy]
	Conditions  *Repository[model.MedicalCondition, *model.MedicalCondition]
	Medications *Repository[model.Medication, *model.Medication]
	Emergency   *Repository[model.EmergencyMedication, *model.EmergencyMedication]
	Specialists *Repository[model.SpecialistInfo, *model.SpecialistInfo]
}

func NewMedicalRepository(gw *gateway.Gateway) *MedicalRepository {
	return &MedicalRepository{
		Allergies:   New[model.Allergy](gw, docmodel.KindAllergy),
		Conditions:  New[model.MedicalCondition](gw, docmodel.KindMedicalCondition),
		Medications: New[model.Medication](gw, docmodel.KindMedication),
		Emergency:   New[model.EmergencyMedication](gw, docmodel.KindEmergencyMedication),
		Specialists: New[model.SpecialistInfo](gw, docmodel.KindSpecialistInfo),
	}
}

// ForKid matches the records that belong to kidID.
func ForKid(kidID string) *docmodel.QuerySpec {
	return docmodel.NewQuery().Where("kidID", docmodel.Equal, kidID)
}

func (m *MedicalRepository) ListenAllergiesForKid(owner, kidID string, fn func([]model.Allergy, error)) (*gateway.Subscription, error) {
	return m.Allergies.ListenWhere(owner, ForKid(kidID), fn)
}

func (m *MedicalRepository) ListenConditionsForKid(owner, kidID string, fn func([]model.MedicalCondition, error)) (*gateway.Subscription, error) {
	return m.Conditions.ListenWhere(owner, ForKid(kidID), fn)
}

func (m *MedicalRepository) ListenMedicationsForKid(owner, kidID string, fn func([]model.Medication, error)) (*gateway.Subscription, error) {
	return m.Medications.ListenWhere(owner, ForKid(kidID), fn)
}

func (m *MedicalRepository) ListenEmergencyMedicationsForKid(owner, kidID string, fn func([]model.EmergencyMedication, error)) (*gateway.Subscription, error) {
	return m.Emergency.ListenWhere(owner, ForKid(kidID), fn)
}

func (m *MedicalRepository) ListenSpecialistsForKid(owner, kidID string, fn func([]model.SpecialistInfo, error)) (*gateway.Subscription, error) {
	return m.Specialists.ListenWhere(owner, ForKid(kidID), fn)
}
