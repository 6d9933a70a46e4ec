package domain

import "fmt"

// Category classifies a committee for statistics.
type Category string

const (
	// CategoryDomestic marks national bodies. The wire value stays "indian" for
	// compatibility with existing clients.
	CategoryDomestic      Category = "indian"
	CategoryInternational Category = "international"
)

// ParseCategory accepts the wire value or the "domestic" alias.
func ParseCategory(raw string) (Category, error) {
	switch raw {
	case string(CategoryDomestic), "domestic":
		return CategoryDomestic, nil
	case string(CategoryInternational):
		return CategoryInternational, nil
	default:
		return "", fmt.Errorf("unknown committee category %q", raw)
	}
}

// Committee is a simulated body a student may represent.
type Committee struct {
	ID          string   `json:"id"          yaml:"id"`
	Name        string   `json:"name"        yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Category    Category `json:"category"    yaml:"category"`
}
