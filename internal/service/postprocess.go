package service

import (
	"math"
	"sort"
	"time"

	"fin-analyzer/internal/models"
)

const (
	// NoDateInformation is the period reported when no transaction carries a usable date.
	NoDateInformation = "no date information"

	dateLayout = "2006-01-02"
	dayMillis  = 86_400_000
)

// Derived holds the values recomputed from a stored analysis on every read.
type Derived struct {
	Period            string
	DayCount          int
	AverageDailySpent float64
}

// ComputeDerived is a pure function of its inputs.
func ComputeDerived(items []models.Transaction, totalSpent float64) Derived {
	dates := make([]time.Time, 0, len(items))
	for _, item := range items {
		d, err := time.Parse(dateLayout, item.Date)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		return Derived{Period: NoDateInformation}
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	first, last := dates[0], dates[len(dates)-1]

	spanMillis := float64(last.Sub(first).Milliseconds())
	dayCount := int(math.Ceil(spanMillis/dayMillis)) + 1
	if dayCount <= 0 {
		return Derived{Period: NoDateInformation}
	}

	return Derived{
		Period:            first.Format(dateLayout) + " ~ " + last.Format(dateLayout),
		DayCount:          dayCount,
		AverageDailySpent: math.Round(totalSpent/float64(dayCount)*100) / 100,
	}
}

// DominantCategory is the category with the largest summed amount.
// Ties go to the category listed first in models.Categories.
func DominantCategory(items []models.Transaction) models.Category {
	if len(items) == 0 {
		return models.CategoryOther
	}

	totals := make(map[models.Category]float64, len(models.Categories))
	for _, item := range items {
		totals[item.Category] += item.Amount
	}

	best := models.CategoryOther
	bestTotal := math.Inf(-1)
	for _, c := range models.Categories {
		total, ok := totals[c]
		if ok && total > bestTotal {
			best, bestTotal = c, total
		}
	}
	return best
}
