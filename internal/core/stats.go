package core

import (
	"slices"

	"prodigymun/internal/catalog"
	"prodigymun/pkg/domain"
)

// computeStats folds the grouped tally into the rollup in one pass. The
// international count is derived by subtraction so that domestic plus
// international always equals total, including for ids missing from the catalog.
func computeStats(rows domain.TallyRows, c *catalog.Catalog) Stats {
	domestic := c.IDs(domain.CategoryDomestic)
	senior := domain.SeniorClasses()

	var stats Stats
	for _, row := range rows {
		if row.Count <= 0 {
			continue
		}
		stats.Total += row.Count
		if slices.Contains(domestic, row.Committee) {
			stats.IndianCommittees += row.Count
		}
		if slices.Contains(senior, row.Class) {
			stats.SeniorStudents += row.Count
		}
		switch row.Status {
		case StatusPending:
			stats.Pending += row.Count
		case StatusConfirmed:
			stats.Confirmed += row.Count
		case StatusRejected:
			stats.Rejected += row.Count
		}
	}
	stats.InternationalCommittees = stats.Total - stats.IndianCommittees
	return stats
}
