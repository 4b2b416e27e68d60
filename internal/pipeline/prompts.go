package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/spendiq/internal/domain"
)

const (
	statementPlaceholder    = "{{STATEMENT_TEXT}}"
	transactionsPlaceholder = "{{TRANSACTIONS_JSON}}"
)

const extractionTemplate = `You are a financial data extraction assistant. Extract every transaction from the bank or UPI statement text below.

Rules:
1. Output ONLY valid JSON. No explanations, no Markdown, no code fences.
2. Output a JSON array of objects.
3. Each object must have exactly these fields:
   - "date": string, "YYYY-MM-DD"
   - "amount": number, positive, without currency symbols
   - "type": exactly "debit" or "credit"
   - "description": string, the narration as printed
   - "vendor": string, the merchant or counterparty name, or "" if unknown
4. If a date is ambiguous between DD/MM and MM/DD, read it as DD/MM/YYYY.
5. Skip opening and closing balances, headers, footers and totals.
6. "debit" is money going out, "credit" is money coming in.
7. If there are no transactions, output [].

STATEMENT TEXT:
---
{{STATEMENT_TEXT}}
---

OUTPUT (JSON array only):`

const analysisTemplate = `You are a personal finance analyst. Analyze the transactions below and produce a financial report.

Rules:
1. Output ONLY valid JSON. No explanations, no Markdown, no code fences.
2. Follow the schema below exactly. All amounts are numbers, not strings.
3. Dates use "YYYY-MM-DD", months use "YYYY-MM".
4. Infer a spending category for every debit from its description and vendor, for example:
   "Food & Dining", "Shopping", "Bills & Utilities", "Entertainment", "Transport",
   "Health", "Education", "Transfer", "Other".
5. Flag as suspicious: amounts far above the usual spend, repeated similar payments in a
   short time, and unusual round-number transfers. Give a short reason for each.
6. Suggestions must be concrete and based on the spending patterns you see.

SCHEMA:
{
  "summary": {
    "total_spent": <sum of debit amounts>,
    "total_received": <sum of credit amounts>,
    "net_flow": <total_received minus total_spent>,
    "period_start": "<earliest date>",
    "period_end": "<latest date>",
    "transaction_count": <number of transactions>
  },
  "by_category": {
    "<category>": {"amount": <total spent>, "count": <number of debits>}
  },
  "by_vendor": {
    "<vendor>": {"spent": <total spent>, "count": <number of debits>}
  },
  "monthly": [
    {"month": "<YYYY-MM>", "spent": <number>, "received": <number>, "net": <number>}
  ],
  "suspicious": [
    {"date": "<YYYY-MM-DD>", "amount": <number>, "description": "<narration>", "reason": "<why>"}
  ],
  "suggestions": ["<advice>"]
}

TRANSACTIONS JSON:
---
{{TRANSACTIONS_JSON}}
---

OUTPUT (JSON object only):`

func init() {
	mustContain(extractionTemplate, statementPlaceholder)
	mustContain(analysisTemplate, transactionsPlaceholder)
}

func mustContain(template, placeholder string) {
	if !strings.Contains(template, placeholder) {
		panic(fmt.Sprintf("pipeline: prompt template is missing placeholder %s", placeholder))
	}
}

// BuildExtractionPrompt renders the extraction prompt for normalized statement text.
func BuildExtractionPrompt(statementText string) string {
	return strings.Replace(extractionTemplate, statementPlaceholder, statementText, 1)
}

// BuildAnalysisPrompt renders the analysis prompt for an already serialized transaction list.
func BuildAnalysisPrompt(transactionsJSON string) string {
	return strings.Replace(analysisTemplate, transactionsPlaceholder, transactionsJSON, 1)
}

// BuildAnalysisPromptFor serializes txs and renders the analysis prompt.
func BuildAnalysisPromptFor(txs []domain.Transaction) (string, error) {
	b, err := json.MarshalIndent(txs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("BuildAnalysisPromptFor: marshal transactions: %w", err)
	}
	return BuildAnalysisPrompt(string(b)), nil
}
