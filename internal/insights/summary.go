package insights

import "fleet-insights-service/internal/models"

// Summary сводка инсайтов по важности и категориям
type Summary struct {
	Total      int                     `json:"total"`
	BySeverity map[string]int          `json:"by_severity"`
	ByCategory map[models.Category]int `json:"by_category"`
}

// Summarize подсчитывает инсайты
func Summarize(list []models.Insight) Summary {
	s := Summary{
		Total:      len(list),
		BySeverity: make(map[string]int),
		ByCategory: make(map[models.Category]int),
	}
	for _, ins := range list {
		s.BySeverity[ins.Severity.String()]++
		s.ByCategory[ins.Category]++
	}
	return s
}

// Filter возвращает инсайты категории не ниже заданной важности
func Filter(list []models.Insight, category models.Category, minSeverity models.Severity) []models.Insight {
	var out []models.Insight
	for _, ins := range list {
		if category != "" && ins.Category != category {
			continue
		}
		if ins.Severity < minSeverity {
			continue
		}
		out = append(out, ins)
	}
	return out
}
