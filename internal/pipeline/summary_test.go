package pipeline

import (
	"math"
	"testing"

	"github.com/dvloznov/spendiq/internal/domain"
)

func TestReconcileAnalysis_Summary(t *testing.T) {
	txs := []domain.Transaction{
		{Date: "2024-01-05", Amount: 100, Type: domain.TransactionDebit},
		{Date: "2024-01-20", Amount: 500, Type: domain.TransactionCredit},
	}
	// The model got the totals wrong; they are recomputed from the transactions.
	a := &domain.Analysis{Summary: domain.Summary{TotalSpent: 90, TotalReceived: 1, NetFlow: 7}}

	ReconcileAnalysis(a, txs)

	want := domain.Summary{
		TotalSpent:       100,
		TotalReceived:    500,
		NetFlow:          400,
		PeriodStart:      "2024-01-05",
		PeriodEnd:        "2024-01-20",
		TransactionCount: 2,
	}
	if a.Summary != want {
		t.Errorf("Summary = %+v, want %+v", a.Summary, want)
	}
}

func TestReconcileAnalysis_DecimalSums(t *testing.T) {
	txs := []domain.Transaction{
		{Date: "2024-01-01", Amount: 0.1, Type: domain.TransactionDebit},
		{Date: "2024-01-02", Amount: 0.2, Type: domain.TransactionDebit},
	}
	a := &domain.Analysis{}

	ReconcileAnalysis(a, txs)

	if a.Summary.TotalSpent != 0.3 {
		t.Errorf("TotalSpent = %v, want exactly 0.3", a.Summary.TotalSpent)
	}
	if a.Summary.NetFlow != -0.3 {
		t.Errorf("NetFlow = %v, want -0.3", a.Summary.NetFlow)
	}
}

func TestReconcileAnalysis_Monthly(t *testing.T) {
	txs := []domain.Transaction{
		{Date: "2024-02-10", Amount: 30, Type: domain.TransactionDebit},
		{Date: "2024-01-05", Amount: 100, Type: domain.TransactionDebit},
		{Date: "2024-01-20", Amount: 500, Type: domain.TransactionCredit},
		{Date: "05/03/2024", Amount: 1, Type: domain.TransactionDebit}, // unparseable, counted but not bucketed
	}
	a := &domain.Analysis{Monthly: []domain.MonthlyStat{{Month: "Jan 2024"}}}

	ReconcileAnalysis(a, txs)

	want := []domain.MonthlyStat{
		{Month: "2024-01", Spent: 100, Received: 500, Net: 400},
		{Month: "2024-02", Spent: 30, Received: 0, Net: -30},
	}
	if len(a.Monthly) != len(want) {
		t.Fatalf("Monthly = %+v, want %+v", a.Monthly, want)
	}
	for i := range want {
		if a.Monthly[i] != want[i] {
			t.Errorf("Monthly[%d] = %+v, want %+v", i, a.Monthly[i], want[i])
		}
	}
	if a.Summary.TotalSpent != 131 || a.Summary.TransactionCount != 4 {
		t.Errorf("Summary = %+v", a.Summary)
	}
}

func TestReconcileAnalysis_CategoryPercentages(t *testing.T) {
	a := &domain.Analysis{
		ByCategory: map[string]domain.CategoryStat{
			"Food":      {Amount: 50, Percentage: 80},
			"Shopping":  {Amount: 30},
			"Transport": {Amount: 20},
		},
	}

	ReconcileAnalysis(a, nil)

	sum := 0.0
	for _, c := range a.ByCategory {
		sum += c.Percentage
	}
	if math.Abs(sum-100) > 0.2 {
		t.Errorf("percentages sum to %v, want ≈100", sum)
	}
	if a.ByCategory["Food"].Percentage != 50 {
		t.Errorf("Food percentage = %v, want 50", a.ByCategory["Food"].Percentage)
	}
}

func TestReconcileAnalysis_Suspicious(t *testing.T) {
	txs := []domain.Transaction{
		{Date: "2024-01-05", Amount: 9999, Type: domain.TransactionDebit, Description: "Unknown UPI"},
	}
	a := &domain.Analysis{
		Suspicious: []domain.SuspiciousTransaction{
			{Date: "2024-01-05", Amount: 9999, Reason: "far above average"},
			{Date: "2024-01-05", Amount: 9999},                      // no reason
			{Date: "2024-01-06", Amount: 9999, Reason: "wrong date"}, // no such transaction
			{Date: "2024-01-05", Amount: 10, Reason: "wrong amount"}, // no such transaction
		},
	}

	ReconcileAnalysis(a, txs)

	if len(a.Suspicious) != 1 {
		t.Fatalf("Suspicious = %+v, want one entry", a.Suspicious)
	}
	if a.Suspicious[0].Description != "Unknown UPI" {
		t.Errorf("Description = %q, want filled from transaction", a.Suspicious[0].Description)
	}
}

func TestReconcileAnalysis_EmptySectionsAreNotNil(t *testing.T) {
	a := &domain.Analysis{}

	ReconcileAnalysis(a, nil)

	if a.ByCategory == nil || a.ByVendor == nil || a.Monthly == nil || a.Suspicious == nil || a.Suggestions == nil {
		t.Errorf("nil section after reconcile: %+v", a)
	}
}
