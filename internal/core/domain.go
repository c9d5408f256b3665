package core

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultColor is applied wherever a category carries no color of its own.
const DefaultColor = "#6B7280"

// DateLayout is the wire and storage layout of a calendar date.
const DateLayout = "2006-01-02"

func init() {
	// Amounts travel as JSON numbers, like every other numeric field.
	decimal.MarshalJSONWithoutQuotes = true
}

type (
	Date struct {
		time.Time
	}

	Category struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description,omitempty"`
		Color       string    `json:"color,omitempty"`
		ParentID    string    `json:"parentId,omitempty"`
		IsActive    bool      `json:"isActive"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	Transaction struct {
		ID            string          `json:"id"`
		Date          Date            `json:"date"`
		Description   string          `json:"description"`
		Amount        decimal.Decimal `json:"amount"` // negative = expense, positive = income
		CategoryID    string          `json:"categoryId,omitempty"`
		Category      *Category       `json:"category,omitempty"` // display snapshot, may be stale
		Merchant      string          `json:"merchant,omitempty"`
		AccountType   string          `json:"accountType,omitempty"`
		AccountNumber string          `json:"accountNumber,omitempty"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}

	// Draft is a transaction that has not been assigned an identity yet.
	Draft struct {
		Date          Date    `json:"date"`
		Description   string  `json:"description"`
		Amount        float64 `json:"amount"`
		CategoryID    string  `json:"categoryId,omitempty"`
		Merchant      string  `json:"merchant,omitempty"`
		AccountType   string  `json:"accountType,omitempty"`
		AccountNumber string  `json:"accountNumber,omitempty"`
	}

	// Patch holds the fields to merge onto an existing transaction.
	// A nil field keeps the current value.
	Patch struct {
		Date          *Date    `json:"date,omitempty"`
		Description   *string  `json:"description,omitempty"`
		Amount        *float64 `json:"amount,omitempty"`
		CategoryID    *string  `json:"categoryId,omitempty"`
		Merchant      *string  `json:"merchant,omitempty"`
		AccountType   *string  `json:"accountType,omitempty"`
		AccountNumber *string  `json:"accountNumber,omitempty"`
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the calendar month of the date as YYYY-MM.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	// Tolerate full timestamps from upstream; only the calendar date matters.
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// ValidateAmount rejects NaN and infinities.
func ValidateAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrNonFiniteAmount
	}
	return nil
}

func (d Draft) Validate() error {
	if err := ValidateAmount(d.Amount); err != nil {
		return err
	}
	if len(d.Description) > 500 {
		return ErrDescriptionTooLong
	}
	return nil
}

func (p Patch) Validate() error {
	if p.Amount != nil {
		if err := ValidateAmount(*p.Amount); err != nil {
			return err
		}
	}
	if p.Description != nil && len(*p.Description) > 500 {
		return ErrDescriptionTooLong
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Date == nil && p.Description == nil && p.Amount == nil &&
		p.CategoryID == nil && p.Merchant == nil && p.AccountType == nil && p.AccountNumber == nil
}

// Apply merges the patch onto t and returns the result. The receiver's
// category snapshot is dropped when the category id changes.
func (p Patch) Apply(t Transaction) Transaction {
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Amount != nil {
		t.Amount = decimal.NewFromFloat(*p.Amount)
	}
	if p.CategoryID != nil && *p.CategoryID != t.CategoryID {
		t.CategoryID = *p.CategoryID
		t.Category = nil
	}
	if p.Merchant != nil {
		t.Merchant = *p.Merchant
	}
	if p.AccountType != nil {
		t.AccountType = *p.AccountType
	}
	if p.AccountNumber != nil {
		t.AccountNumber = *p.AccountNumber
	}
	return t
}

// Transaction builds an unidentified transaction from the draft.
func (d Draft) Transaction() Transaction {
	return Transaction{
		Date:          d.Date,
		Description:   d.Description,
		Amount:        decimal.NewFromFloat(d.Amount),
		CategoryID:    d.CategoryID,
		Merchant:      d.Merchant,
		AccountType:   d.AccountType,
		AccountNumber: d.AccountNumber,
	}
}

// IsExpense reports whether money went out.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// IsIncome reports whether money came in.
func (t Transaction) IsIncome() bool {
	return t.Amount.IsPositive()
}

// Clone returns a copy that shares no pointers with t.
func (t Transaction) Clone() Transaction {
	if t.Category != nil {
		c := *t.Category
		t.Category = &c
	}
	return t
}

// Equal compares every field, including the category snapshot.
func (t Transaction) Equal(o Transaction) bool {
	if t.ID != o.ID || !t.Date.Equal(o.Date.Time) || t.Description != o.Description ||
		!t.Amount.Equal(o.Amount) || t.CategoryID != o.CategoryID || t.Merchant != o.Merchant ||
		t.AccountType != o.AccountType || t.AccountNumber != o.AccountNumber ||
		!t.CreatedAt.Equal(o.CreatedAt) || !t.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	if (t.Category == nil) != (o.Category == nil) {
		return false
	}
	return t.Category == nil || *t.Category == *o.Category
}

// DisplayColor returns color, or DefaultColor when it is blank.
func DisplayColor(color string) string {
	if strings.TrimSpace(color) == "" {
		return DefaultColor
	}
	return color
}

// CategoryRef is the resolved category of a transaction: either a known
// category from the ledger or unknown (uncategorized or dangling id).
type CategoryRef struct {
	category Category
	known    bool
}

func Known(c Category) CategoryRef { return CategoryRef{category: c, known: true} }

func Unknown() CategoryRef { return CategoryRef{} }

func (r CategoryRef) Get() (Category, bool) { return r.category, r.known }

func (r CategoryRef) IsKnown() bool { return r.known }

// Name returns the category name or "Uncategorized".
func (r CategoryRef) Name() string {
	if !r.known {
		return "Uncategorized"
	}
	return r.category.Name
}

// Color returns the display color, falling back to DefaultColor.
func (r CategoryRef) Color() string {
	if !r.known {
		return DefaultColor
	}
	return DisplayColor(r.category.Color)
}
