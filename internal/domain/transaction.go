package domain

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	// TransactionDebit is money going out.
	TransactionDebit TransactionType = "debit"
	// TransactionCredit is money coming in.
	TransactionCredit TransactionType = "credit"
)

// Transaction represents one validated transaction extracted from a statement.
// Values are only built by the transaction validator and are not modified afterwards.
type Transaction struct {
	Date        string          `json:"date"`        // YYYY-MM-DD
	Amount      float64         `json:"amount"`      // non-negative magnitude
	Type        TransactionType `json:"type"`        // debit or credit
	Description string          `json:"description"` // narration as printed on the statement
	Vendor      string          `json:"vendor"`      // may be empty
}

// IsDebit reports whether the transaction is an outgoing payment.
func (t Transaction) IsDebit() bool {
	return t.Type == TransactionDebit
}
