// Package domain defines the registration records, value types, store contract,
// and error taxonomy shared by the prodigymun service and its persistence backends.
package domain

import (
	"slices"
	"time"
)

// Status is the triage state of a registration.
type Status string

// Registration statuses. Transitions between them are unrestricted.
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusRejected}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Classes lists the accepted grade levels, lowest first.
var Classes = []string{"8th", "9th", "10th", "11th", "12th"}

// Divisions lists the accepted section letters.
var Divisions = []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K"}

// SeniorClasses returns the two highest grade levels.
func SeniorClasses() []string {
	return slices.Clone(Classes[len(Classes)-2:])
}

// ValidClass reports whether class is an accepted grade level.
func ValidClass(class string) bool { return slices.Contains(Classes, class) }

// ValidDivision reports whether division is an accepted section letter.
func ValidDivision(division string) bool { return slices.Contains(Divisions, division) }

// Registration is one student's submitted intent to participate.
// Status is the only field that changes after creation.
type Registration struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Class       string    `json:"class"`
	Division    string    `json:"division"`
	Committee   string    `json:"committee"`
	Email       *string   `json:"email"`
	Suggestions *string   `json:"suggestions"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Key returns the natural key of the registration.
func (r Registration) Key() NaturalKey {
	return NaturalKey{Name: r.Name, Class: r.Class, Division: r.Division}
}

// NaturalKey is the (name, class, division) triple that identifies a student.
// Comparison is exact string equality.
type NaturalKey struct {
	Name     string
	Class    string
	Division string
}

// RegistrationInput carries the public intake form fields.
type RegistrationInput struct {
	Name        string `json:"name"        validate:"min=2"`
	Class       string `json:"class"       validate:"required,class"`
	Division    string `json:"division"    validate:"required,division"`
	Committee   string `json:"committee"   validate:"required,committee"`
	Email       string `json:"email"       validate:"omitempty,email"`
	Suggestions string `json:"suggestions"`
}

// ListFilter narrows a registration listing. Zero values match everything.
// Committees is an OR set; all other fields combine with AND.
type ListFilter struct {
	Status     Status
	Committees []string
	Class      string
	Division   string
	Search     string
}

// IsZero reports whether the filter matches every registration.
func (f ListFilter) IsZero() bool {
	return f.Status == "" && len(f.Committees) == 0 && f.Class == "" && f.Division == "" && f.Search == ""
}

// Stats is the aggregate rollup over all registrations. The JSON names are
// part of the public API.
type Stats struct {
	Total                   int `json:"total"`
	IndianCommittees        int `json:"indianCommittees"`
	InternationalCommittees int `json:"internationalCommittees"`
	SeniorStudents          int `json:"seniorStudents"`
	Pending                 int `json:"pending"`
	Confirmed               int `json:"confirmed"`
	Rejected                int `json:"rejected"`
}
