// Package model holds the family-care records kept in the document store.
// Field tags are the persisted names; renaming one breaks stored data.
package model

import (
	"strings"
	"time"

	"carelog/internal/shared/errors"
)

// Identified records carry the document ID assigned by the store. The ID is never a field.
type Identified interface {
	DocumentID() string
	SetDocumentID(id string)
}

// Identity is embedded by every record.
type Identity struct {
	ID string `doc:"-" json:"id"`
}

func (i Identity) DocumentID() string       { return i.ID }
func (i *Identity) SetDocumentID(id string) { i.ID = id }

// AuthProvider names how a user signed in.
type AuthProvider string

const (
	AuthProviderPassword AuthProvider = "password"
	AuthProviderGoogle   AuthProvider = "google"
	AuthProviderApple    AuthProvider = "apple"
)

type User struct {
	Identity
	Email               string       `doc:"email" json:"email"`
	FullName            string       `doc:"fullName" json:"fullName"`
	PhoneNumber         *string      `doc:"phoneNumber" json:"phoneNumber,omitempty"`
	PhotoURL            *string      `doc:"photoURL" json:"photoURL,omitempty"`
	AuthProvider        AuthProvider `doc:"authProvider" json:"authProvider"`
	OnboardingCompleted bool         `doc:"onboardingCompleted" json:"onboardingCompleted"`
	CreatedAt           time.Time    `doc:"createdAt" json:"createdAt"`
}

// Gender is stored as its integer code.
type Gender int

const (
	GenderFemale Gender = iota
	GenderMale
	GenderOther
)

type Kid struct {
	Identity
	Fullname  string     `doc:"fullname" json:"fullname"`
	Gender    Gender     `doc:"gender" json:"gender"`
	BirthDate *time.Time `doc:"birthDate" json:"birthDate,omitempty"`
	Weight    *float64   `doc:"weight" json:"weight,omitempty"`
	Height    *float64   `doc:"height" json:"height,omitempty"`
	PhotoURL  *string    `doc:"photoURL" json:"photoURL,omitempty"`

	// Photo is uploaded to the blob store and replaced by PhotoURL.
	Photo            []byte `doc:"-" json:"-"`
	PhotoContentType string `doc:"-" json:"-"`
}

func (k *Kid) Validate() error {
	if strings.TrimSpace(k.Fullname) == "" {
		return errors.NewValidationError("kid fullname is required")
	}
	return nil
}

type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

type Allergy struct {
	Identity
	KidID    string   `doc:"kidID" json:"kidID"`
	Name     string   `doc:"name" json:"name"`
	Severity Severity `doc:"severity" json:"severity"`
	Reaction *string  `doc:"reaction" json:"reaction,omitempty"`
	Notes    *string  `doc:"notes" json:"notes,omitempty"`
}

type MedicalCondition struct {
	Identity
	KidID       string     `doc:"kidID" json:"kidID"`
	Name        string     `doc:"name" json:"name"`
	DiagnosedAt *time.Time `doc:"diagnosedAt" json:"diagnosedAt,omitempty"`
	Notes       *string    `doc:"notes" json:"notes,omitempty"`
}

type Medication struct {
	Identity
	KidID     string     `doc:"kidID" json:"kidID"`
	Name      string     `doc:"name" json:"name"`
	Dosage    string     `doc:"dosage" json:"dosage"`
	Frequency string     `doc:"frequency" json:"frequency"`
	StartDate *time.Time `doc:"startDate" json:"startDate,omitempty"`
	EndDate   *time.Time `doc:"endDate" json:"endDate,omitempty"`
	Notes     *string    `doc:"notes" json:"notes,omitempty"`
}

type EmergencyMedication struct {
	Identity
	KidID        string  `doc:"kidID" json:"kidID"`
	Name         string  `doc:"name" json:"name"`
	Dosage       string  `doc:"dosage" json:"dosage"`
	Instructions *string `doc:"instructions" json:"instructions,omitempty"`
}

type SpecialistInfo struct {
	Identity
	KidID       string  `doc:"kidID" json:"kidID"`
	Name        string  `doc:"name" json:"name"`
	Specialty   string  `doc:"specialty" json:"specialty"`
	PhoneNumber *string `doc:"phoneNumber" json:"phoneNumber,omitempty"`
	Email       *string `doc:"email" json:"email,omitempty"`
	Address     *string `doc:"address" json:"address,omitempty"`
}

// RoutineType is the kind of event a routine entry logs.
type RoutineType string

const (
	RoutineMeal          RoutineType = "meal"
	RoutineDiaper        RoutineType = "diaper"
	RoutineMedication    RoutineType = "medication"
	RoutineBreastfeeding RoutineType = "breastfeeding"
)

func (t RoutineType) Valid() bool {
	switch t {
	case RoutineMeal, RoutineDiaper, RoutineMedication, RoutineBreastfeeding:
		return true
	}
	return false
}

type Routine struct {
	Identity
	KidID           string      `doc:"kidID" json:"kidID"`
	Type            RoutineType `doc:"type" json:"type"`
	Date            time.Time   `doc:"date" json:"date"`
	Notes           *string     `doc:"notes" json:"notes,omitempty"`
	MealType        *string     `doc:"mealType" json:"mealType,omitempty"`
	Amount          *string     `doc:"amount" json:"amount,omitempty"`
	DiaperType      *string     `doc:"diaperType" json:"diaperType,omitempty"`
	MedicationName  *string     `doc:"medicationName" json:"medicationName,omitempty"`
	Dose            *string     `doc:"dose" json:"dose,omitempty"`
	Side            *string     `doc:"side" json:"side,omitempty"`
	DurationMinutes *int        `doc:"durationMinutes" json:"durationMinutes,omitempty"`
}

func (r *Routine) Validate() error {
	if strings.TrimSpace(r.KidID) == "" {
		return errors.NewValidationError("routine kidID is required")
	}
	if !r.Type.Valid() {
		return errors.NewValidationError("unknown routine type").WithDetail("type", string(r.Type))
	}
	if r.Date.IsZero() {
		return errors.NewValidationError("routine date is required")
	}
	return nil
}
