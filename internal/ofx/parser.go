// Package ofx reads OFX/QFX bank and credit card statements.
package ofx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"balancio/internal/core"
	"balancio/internal/log"
)

const maxTitle = 200

var (
	severityFix = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML tags left without their closing bracket at end of line
	tagFix = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)

	ErrNoStatements = errors.New("file contains no bank or credit card statements")
)

// Entry is one statement line converted to ledger terms. Debits become
// expenses and credits become income.
type Entry struct {
	ExternalID string
	Account    string
	Date       core.Date
	Amount     core.Money
	Kind       core.Kind
	Title      string
	Memo       string
	Currency   string
}

// Statement is the parsed content of one file.
type Statement struct {
	Entries []Entry
	// Skipped counts lines without an id or with a zero amount.
	Skipped  int
	Accounts []string
}

// Transaction returns the ledger record for e. The caller assigns the id and
// timestamps.
func (e Entry) Transaction(userID, id string) core.Transaction {
	return core.Transaction{
		ID:          id,
		UserID:      userID,
		Amount:      e.Amount,
		Kind:        e.Kind,
		Title:       e.Title,
		Description: e.Memo,
		Date:        e.Date,
		ExternalID:  e.ExternalID,
	}
}

type Parser struct {
	logger *log.Logger
}

func NewParser(logger *log.Logger) *Parser {
	if logger == nil {
		logger = log.Discard()
	}
	return &Parser{logger: logger.WithComponent(log.ComponentImport)}
}

func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityFix.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFix.ReplaceAllString(content, "$1>")
}

// Parse reads every bank and credit card statement in r.
func (p *Parser) Parse(ctx context.Context, r io.Reader) (Statement, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Statement{}, fmt.Errorf("read OFX file: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return Statement{}, fmt.Errorf("parse OFX file: %w", err)
	}

	var (
		out   Statement
		found bool
	)
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			found = true
			p.collect(&out, string(stmt.BankAcctFrom.AcctID), stmt.CurDef.String(), stmt.BankTranList)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			found = true
			p.collect(&out, string(stmt.CCAcctFrom.AcctID), stmt.CurDef.String(), stmt.BankTranList)
		}
	}
	if !found {
		return Statement{}, ErrNoStatements
	}

	p.logger.InfoContext(ctx, "Parsed OFX file",
		"entries", len(out.Entries),
		"skipped", out.Skipped,
		"accounts", len(out.Accounts))
	return out, nil
}

func (p *Parser) collect(out *Statement, account, currency string, list *ofxgo.TransactionList) {
	out.Accounts = append(out.Accounts, account)
	if list == nil {
		return
	}
	for _, tx := range list.Transactions {
		e, ok := convert(tx)
		if !ok {
			out.Skipped++
			continue
		}
		e.Account = account
		e.Currency = currency
		out.Entries = append(out.Entries, e)
	}
}

func convert(tx ofxgo.Transaction) (Entry, bool) {
	if tx.FiTID == "" {
		return Entry{}, false
	}
	sign := tx.TrnAmt.Sign()
	if sign == 0 {
		return Entry{}, false
	}
	amount, err := core.MoneyFromRat(&tx.TrnAmt.Rat)
	if err != nil {
		return Entry{}, false
	}
	kind := core.Expense
	if sign > 0 {
		kind = core.Income
	}
	return Entry{
		ExternalID: string(tx.FiTID),
		Date:       core.DateOf(tx.DtPosted.Time),
		Amount:     amount,
		Kind:       kind,
		Title:      title(tx),
		Memo:       strings.TrimSpace(string(tx.Memo)),
	}, true
}

func title(tx ofxgo.Transaction) string {
	name := ""
	if tx.Payee != nil {
		name = string(tx.Payee.Name)
	}
	if name == "" {
		name = string(tx.Name)
	}
	if name == "" {
		name = string(tx.Memo)
	}
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		name = tx.TrnType.String()
	}
	if r := []rune(name); len(r) > maxTitle {
		name = string(r[:maxTitle])
	}
	return name
}
