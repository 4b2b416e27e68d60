package pipeline

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ReconcileAnalysis makes the model's report consistent with the validated transactions
// it was built from. Summary totals, period and count are recomputed, monthly figures
// are rebuilt when dates are parseable, category percentages are derived from category
// amounts, and suspicious entries must carry a reason and match a source transaction.
func ReconcileAnalysis(a *domain.Analysis, txs []domain.Transaction) {
	if a == nil {
		return
	}

	var spent, received decimal.Decimal
	var first, last civil.Date
	haveDates := false
	months := make(map[string]*monthTotals)

	for _, tx := range txs {
		amount := decimal.NewFromFloat(tx.Amount)
		if tx.IsDebit() {
			spent = spent.Add(amount)
		} else {
			received = received.Add(amount)
		}

		d, err := civil.ParseDate(tx.Date)
		if err != nil {
			continue
		}
		if !haveDates || d.Before(first) {
			first = d
		}
		if !haveDates || d.After(last) {
			last = d
		}
		haveDates = true

		key := fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
		m, ok := months[key]
		if !ok {
			m = &monthTotals{}
			months[key] = m
		}
		if tx.IsDebit() {
			m.spent = m.spent.Add(amount)
		} else {
			m.received = m.received.Add(amount)
		}
	}

	a.Summary.TotalSpent = money(spent)
	a.Summary.TotalReceived = money(received)
	a.Summary.NetFlow = money(received.Sub(spent))
	a.Summary.TransactionCount = len(txs)
	if haveDates {
		a.Summary.PeriodStart = first.String()
		a.Summary.PeriodEnd = last.String()
		a.Monthly = monthlyFromTotals(months)
	}

	a.ByCategory = withPercentages(a.ByCategory)
	a.Suspicious = matchSuspicious(a.Suspicious, txs)

	if a.ByVendor == nil {
		a.ByVendor = map[string]domain.VendorStat{}
	}
	if a.Monthly == nil {
		a.Monthly = []domain.MonthlyStat{}
	}
	if a.Suggestions == nil {
		a.Suggestions = []string{}
	}
}

type monthTotals struct {
	spent, received decimal.Decimal
}

func monthlyFromTotals(months map[string]*monthTotals) []domain.MonthlyStat {
	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.MonthlyStat, 0, len(keys))
	for _, k := range keys {
		m := months[k]
		out = append(out, domain.MonthlyStat{
			Month:    k,
			Spent:    money(m.spent),
			Received: money(m.received),
			Net:      money(m.received.Sub(m.spent)),
		})
	}
	return out
}

func withPercentages(categories map[string]domain.CategoryStat) map[string]domain.CategoryStat {
	out := make(map[string]domain.CategoryStat, len(categories))

	total := decimal.Zero
	for _, c := range categories {
		if c.Amount > 0 {
			total = total.Add(decimal.NewFromFloat(c.Amount))
		}
	}

	for name, c := range categories {
		if c.Amount < 0 {
			continue
		}
		c.Amount = money(decimal.NewFromFloat(c.Amount))
		c.Percentage = 0
		if total.IsPositive() {
			c.Percentage = decimal.NewFromFloat(c.Amount).Mul(hundred).Div(total).Round(1).InexactFloat64()
		}
		out[name] = c
	}
	return out
}

func matchSuspicious(flagged []domain.SuspiciousTransaction, txs []domain.Transaction) []domain.SuspiciousTransaction {
	out := []domain.SuspiciousTransaction{}

	for _, s := range flagged {
		if s.Reason == "" {
			continue
		}
		tx, ok := findTransaction(txs, s.Date, s.Amount)
		if !ok {
			continue
		}
		if s.Description == "" {
			s.Description = tx.Description
		}
		out = append(out, s)
	}
	return out
}

func findTransaction(txs []domain.Transaction, date string, amount float64) (domain.Transaction, bool) {
	want := decimal.NewFromFloat(amount).Round(2)
	for _, tx := range txs {
		if tx.Date == date && decimal.NewFromFloat(tx.Amount).Round(2).Equal(want) {
			return tx, true
		}
	}
	return domain.Transaction{}, false
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
