package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/sanitize"
)

// ValidateTransactions checks decoded extraction output. The value must be a JSON array;
// elements without a non-empty date, a non-negative numeric amount and a type of exactly
// "debit" or "credit" are dropped. An empty result is not an error here: the caller
// decides what an empty statement means.
func ValidateTransactions(decoded interface{}) ([]domain.Transaction, error) {
	items, ok := decoded.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON array of transactions, got %s", domain.ErrInvalidExtractionShape, jsonKind(decoded))
	}

	result := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		tx, ok := transactionFromValue(item)
		if !ok {
			continue
		}
		result = append(result, tx)
	}

	return result, nil
}

func transactionFromValue(item interface{}) (domain.Transaction, bool) {
	obj, ok := item.(map[string]interface{})
	if !ok {
		return domain.Transaction{}, false
	}

	date, ok := getStringField(obj, "date")
	if !ok || date == "" {
		return domain.Transaction{}, false
	}

	amount, ok := getFloat64Field(obj, "amount")
	if !ok || math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return domain.Transaction{}, false
	}

	typ, _ := obj["type"].(string)
	txType := domain.TransactionType(typ)
	if txType != domain.TransactionDebit && txType != domain.TransactionCredit {
		return domain.Transaction{}, false
	}

	description, _ := getStringField(obj, "description")
	vendor, _ := getStringField(obj, "vendor")

	return domain.Transaction{
		Date:        date,
		Amount:      amount,
		Type:        txType,
		Description: sanitize.Plain(description),
		Vendor:      sanitize.Plain(vendor),
	}, true
}

// getStringField returns the trimmed string under the first present key.
func getStringField(m map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(s), true
	}
	return "", false
}

// getFloat64Field returns the number under the first present key.
func getFloat64Field(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			return val, true
		case int: // unlikely from encoding/json, but harmless to support
			return float64(val), true
		default:
			return 0, false
		}
	}
	return 0, false
}

func getIntField(m map[string]interface{}, keys ...string) int {
	f, ok := getFloat64Field(m, keys...)
	if !ok || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return int(math.Round(f))
}

func getObjectField(m map[string]interface{}, keys ...string) (map[string]interface{}, bool) {
	for _, key := range keys {
		if obj, ok := m[key].(map[string]interface{}); ok {
			return obj, true
		}
	}
	return nil, false
}

func getArrayField(m map[string]interface{}, keys ...string) ([]interface{}, bool) {
	for _, key := range keys {
		if arr, ok := m[key].([]interface{}); ok {
			return arr, true
		}
	}
	return nil, false
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
