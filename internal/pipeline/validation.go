package pipeline

import (
	"fmt"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/sanitize"
)

// ValidateAnalysis checks decoded analysis output and maps it onto domain.Analysis.
// Only summary.total_spent (or totalSpent) is required. Every other section is read
// best-effort from either the snake_case or the camelCase convention, and missing
// sections become empty.
func ValidateAnalysis(decoded interface{}) (*domain.Analysis, error) {
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object, got %s", domain.ErrInvalidAnalysisShape, jsonKind(decoded))
	}

	summary, ok := getObjectField(obj, "summary")
	if !ok {
		return nil, fmt.Errorf("%w: missing summary object", domain.ErrInvalidAnalysisShape)
	}

	totalSpent, ok := getFloat64Field(summary, "total_spent", "totalSpent")
	if !ok {
		return nil, fmt.Errorf("%w: summary.total_spent is missing or not a number", domain.ErrInvalidAnalysisShape)
	}

	totalReceived, _ := getFloat64Field(summary, "total_received", "totalReceived")
	netFlow, ok := getFloat64Field(summary, "net_flow", "netFlow")
	if !ok {
		netFlow = totalReceived - totalSpent
	}
	periodStart, _ := getStringField(summary, "period_start", "periodStart")
	periodEnd, _ := getStringField(summary, "period_end", "periodEnd")

	return &domain.Analysis{
		Summary: domain.Summary{
			TotalSpent:       totalSpent,
			TotalReceived:    totalReceived,
			NetFlow:          netFlow,
			PeriodStart:      periodStart,
			PeriodEnd:        periodEnd,
			TransactionCount: getIntField(summary, "transaction_count", "transactionCount"),
		},
		ByCategory:  parseCategories(obj),
		ByVendor:    parseVendors(obj),
		Monthly:     parseMonthly(obj),
		Suspicious:  parseSuspicious(obj),
		Suggestions: parseSuggestions(obj),
	}, nil
}

func parseCategories(obj map[string]interface{}) map[string]domain.CategoryStat {
	out := make(map[string]domain.CategoryStat)

	add := func(name string, stat domain.CategoryStat) {
		name = sanitize.Text(name)
		if name == "" {
			return
		}
		prev := out[name]
		prev.Amount += stat.Amount
		prev.Percentage += stat.Percentage
		prev.Count += stat.Count
		out[name] = prev
	}

	if m, ok := getObjectField(obj, "by_category"); ok {
		for name, v := range m {
			switch val := v.(type) {
			case float64:
				add(name, domain.CategoryStat{Amount: val})
			case map[string]interface{}:
				amount, ok := getFloat64Field(val, "amount", "spent", "total")
				if !ok {
					continue
				}
				percentage, _ := getFloat64Field(val, "percentage")
				add(name, domain.CategoryStat{
					Amount:     amount,
					Percentage: percentage,
					Count:      getIntField(val, "count", "transaction_count", "transactionCount"),
				})
			}
		}
		return out
	}

	if arr, ok := getArrayField(obj, "categoryBreakdown"); ok {
		for _, item := range arr {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := getStringField(entry, "category", "name")
			amount, ok := getFloat64Field(entry, "amount")
			if !ok {
				continue
			}
			percentage, _ := getFloat64Field(entry, "percentage")
			add(name, domain.CategoryStat{
				Amount:     amount,
				Percentage: percentage,
				Count:      getIntField(entry, "transactionCount", "count"),
			})
		}
	}

	return out
}

func parseVendors(obj map[string]interface{}) map[string]domain.VendorStat {
	out := make(map[string]domain.VendorStat)

	add := func(name string, stat domain.VendorStat) {
		name = sanitize.Text(name)
		if name == "" {
			return
		}
		prev := out[name]
		prev.Spent += stat.Spent
		prev.Count += stat.Count
		out[name] = prev
	}

	if m, ok := getObjectField(obj, "by_vendor"); ok {
		for name, v := range m {
			switch val := v.(type) {
			case float64:
				add(name, domain.VendorStat{Spent: val})
			case map[string]interface{}:
				spent, ok := getFloat64Field(val, "spent", "totalSpent", "amount")
				if !ok {
					continue
				}
				add(name, domain.VendorStat{Spent: spent, Count: getIntField(val, "count", "transactionCount")})
			}
		}
		return out
	}

	if arr, ok := getArrayField(obj, "topVendors", "by_vendor"); ok {
		for _, item := range arr {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := getStringField(entry, "name", "vendor")
			spent, ok := getFloat64Field(entry, "totalSpent", "spent", "amount")
			if !ok {
				continue
			}
			add(name, domain.VendorStat{Spent: spent, Count: getIntField(entry, "transactionCount", "count")})
		}
	}

	return out
}

func parseMonthly(obj map[string]interface{}) []domain.MonthlyStat {
	out := []domain.MonthlyStat{}

	arr, ok := getArrayField(obj, "monthly", "monthlyTrend")
	if !ok {
		return out
	}

	for _, item := range arr {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		month, _ := getStringField(entry, "month")
		if month == "" {
			continue
		}
		spent, _ := getFloat64Field(entry, "spent")
		received, _ := getFloat64Field(entry, "received")
		net, ok := getFloat64Field(entry, "net")
		if !ok {
			net = received - spent
		}
		out = append(out, domain.MonthlyStat{Month: sanitize.Text(month), Spent: spent, Received: received, Net: net})
	}

	return out
}

func parseSuspicious(obj map[string]interface{}) []domain.SuspiciousTransaction {
	out := []domain.SuspiciousTransaction{}

	arr, ok := getArrayField(obj, "suspicious", "suspiciousTransactions")
	if !ok {
		return out
	}

	for _, item := range arr {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		amount, ok := getFloat64Field(entry, "amount")
		if !ok {
			continue
		}
		date, _ := getStringField(entry, "date")
		description, _ := getStringField(entry, "description")
		reason, _ := getStringField(entry, "reason")
		out = append(out, domain.SuspiciousTransaction{
			Date:        date,
			Amount:      amount,
			Description: sanitize.Plain(description),
			Reason:      sanitize.Text(reason),
		})
	}

	return out
}

func parseSuggestions(obj map[string]interface{}) []string {
	out := []string{}

	arr, ok := getArrayField(obj, "suggestions")
	if !ok {
		return out
	}

	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = sanitize.Text(s); s != "" {
			out = append(out, s)
		}
	}

	return out
}
