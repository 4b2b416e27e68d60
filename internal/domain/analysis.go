package domain

// Summary holds the headline figures of an analysis.
type Summary struct {
	TotalSpent       float64 `json:"total_spent"`
	TotalReceived    float64 `json:"total_received"`
	NetFlow          float64 `json:"net_flow"`
	PeriodStart      string  `json:"period_start"`
	PeriodEnd        string  `json:"period_end"`
	TransactionCount int     `json:"transaction_count"`
}

// CategoryStat is the spend attributed to one category.
type CategoryStat struct {
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

// VendorStat is the spend attributed to one vendor.
type VendorStat struct {
	Spent float64 `json:"spent"`
	Count int     `json:"count"`
}

// MonthlyStat aggregates one calendar month.
type MonthlyStat struct {
	Month    string  `json:"month"` // YYYY-MM
	Spent    float64 `json:"spent"`
	Received float64 `json:"received"`
	Net      float64 `json:"net"`
}

// SuspiciousTransaction is a transaction flagged by the model together with its reason.
type SuspiciousTransaction struct {
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
	Reason      string  `json:"reason"`
}

// Analysis is the aggregate report derived from one validated transaction list.
// A new Analysis replaces the previous one; it is never mutated once persisted.
type Analysis struct {
	Summary     Summary                 `json:"summary"`
	ByCategory  map[string]CategoryStat `json:"by_category"`
	ByVendor    map[string]VendorStat   `json:"by_vendor"`
	Monthly     []MonthlyStat           `json:"monthly"`
	Suspicious  []SuspiciousTransaction `json:"suspicious"`
	Suggestions []string                `json:"suggestions"`
}

// Clone returns a deep copy of a. A nil Analysis clones to nil.
func (a *Analysis) Clone() *Analysis {
	if a == nil {
		return nil
	}

	c := *a
	if a.ByCategory != nil {
		c.ByCategory = make(map[string]CategoryStat, len(a.ByCategory))
		for k, v := range a.ByCategory {
			c.ByCategory[k] = v
		}
	}
	if a.ByVendor != nil {
		c.ByVendor = make(map[string]VendorStat, len(a.ByVendor))
		for k, v := range a.ByVendor {
			c.ByVendor[k] = v
		}
	}
	if a.Monthly != nil {
		c.Monthly = append([]MonthlyStat{}, a.Monthly...)
	}
	if a.Suspicious != nil {
		c.Suspicious = append([]SuspiciousTransaction{}, a.Suspicious...)
	}
	if a.Suggestions != nil {
		c.Suggestions = append([]string{}, a.Suggestions...)
	}
	return &c
}
