package core

import (
	"errors"
	"reflect"
	"slices"
	"strings"

	"prodigymun/internal/catalog"
	"prodigymun/pkg/domain"

	"github.com/go-playground/validator/v10"
)

// fieldMessages are the user-facing messages per field and failed rule. They
// match the wording the registration form shows.
var fieldMessages = map[string]string{
	"name.min":            "Name must be at least 2 characters",
	"class.required":      "Please select your class",
	"class.class":         "Please select a valid class",
	"division.required":   "Please select your division",
	"division.division":   "Please select a valid division",
	"committee.required":  "Please select a committee",
	"committee.committee": "Please select a valid committee",
	"email.email":         "Invalid email address",
}

func newValidator(c *catalog.Catalog) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails on an empty tag name, which these are not.
	_ = v.RegisterValidation("class", func(fl validator.FieldLevel) bool {
		return domain.ValidClass(fl.Field().String())
	})
	_ = v.RegisterValidation("division", func(fl validator.FieldLevel) bool {
		return domain.ValidDivision(fl.Field().String())
	})
	_ = v.RegisterValidation("committee", func(fl validator.FieldLevel) bool {
		return c.Has(fl.Field().String())
	})
	return v
}

// normalizeInput trims the optional fields so whitespace-only values count as absent.
func normalizeInput(in RegistrationInput) RegistrationInput {
	in.Email = strings.TrimSpace(in.Email)
	in.Suggestions = strings.TrimSpace(in.Suggestions)
	return in
}

func (s *Service) validateInput(in RegistrationInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.NewValidationError("input", "invalid", err.Error())
	}
	violations := make([]domain.FieldViolation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		violations = append(violations, domain.FieldViolation{Field: fe.Field(), Rule: fe.Tag(), Message: msg})
	}
	return domain.ValidationError{Violations: violations}
}

// ListQuery is the raw, string-typed form of a list request.
type ListQuery struct {
	Status    string
	Committee string
	Category  string
	Class     string
	Division  string
	Search    string
}

// ResolveFilter validates q and resolves a category into committee ids. A
// committee combined with a category yields their intersection.
func (s *Service) ResolveFilter(q ListQuery) (ListFilter, error) {
	var (
		filter     ListFilter
		violations []domain.FieldViolation
	)
	if q.Status != "" {
		st := Status(q.Status)
		if !st.Valid() {
			violations = append(violations, domain.FieldViolation{Field: "status", Rule: "oneof", Message: "Unknown status"})
		}
		filter.Status = st
	}
	if q.Class != "" {
		if !domain.ValidClass(q.Class) {
			violations = append(violations, domain.FieldViolation{Field: "class", Rule: "class", Message: fieldMessages["class.class"]})
		}
		filter.Class = q.Class
	}
	if q.Division != "" {
		if !domain.ValidDivision(q.Division) {
			violations = append(violations, domain.FieldViolation{Field: "division", Rule: "division", Message: fieldMessages["division.division"]})
		}
		filter.Division = q.Division
	}
	var committees []string
	if q.Category != "" {
		cat, err := domain.ParseCategory(q.Category)
		if err != nil {
			violations = append(violations, domain.FieldViolation{Field: "category", Rule: "oneof", Message: "Unknown committee category"})
		} else {
			committees = s.catalog.IDs(cat)
		}
	}
	if q.Committee != "" {
		switch {
		case q.Category == "":
			committees = []string{q.Committee}
		case slices.Contains(committees, q.Committee):
			committees = []string{q.Committee}
		default:
			// Disjoint committee and category: a sentinel id that matches nothing.
			committees = []string{""}
		}
	}
	filter.Committees = committees
	filter.Search = strings.TrimSpace(q.Search)
	if len(violations) > 0 {
		return ListFilter{}, domain.ValidationError{Violations: violations}
	}
	return filter, nil
}
