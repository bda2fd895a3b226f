package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"
)

const (
	AccountBank       AccountType = "bank"
	AccountCreditCard AccountType = "credit_card"
	AccountWallet     AccountType = "wallet"
	AccountInvestment AccountType = "investment"
	AccountCash       AccountType = "cash"
)

const (
	PeriodWeekly  BudgetPeriod = "weekly"
	PeriodMonthly BudgetPeriod = "monthly"
	PeriodYearly  BudgetPeriod = "yearly"
)

const (
	GoalEmergencyFund GoalCategory = "Emergency Fund"
	GoalVacation      GoalCategory = "Vacation"
	GoalHouse         GoalCategory = "House"
	GoalCar           GoalCategory = "Car"
	GoalInvestment    GoalCategory = "Investment"
	GoalOther         GoalCategory = "Other"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Categories and tags written by the system itself.
const (
	CategoryBalanceAdjustment = "Balance Adjustment"
	CategoryGoalContribution  = "Goal Contribution"
	TagGoalContribution       = "goal-contribution"
	DefaultPaymentMethod      = "cash"
	DefaultCurrency           = "INR"
)

type (
	TransactionType string
	AccountType     string
	BudgetPeriod    string
	GoalCategory    string
	Frequency       string

	// TransactionFields is everything a transaction carries except identity,
	// ownership, event date and audit data. Recurring templates store exactly this.
	TransactionFields struct {
		Type            TransactionType `json:"type"`
		Category        string          `json:"category"`
		Subcategory     string          `json:"subcategory,omitempty"`
		Amount          decimal.Decimal `json:"amount"`
		Currency        string          `json:"currency"`
		Description     string          `json:"description"`
		Notes           string          `json:"notes"`
		PaymentMethod   string          `json:"paymentMethod"`
		AccountID       string          `json:"accountId,omitempty"`
		Tags            []string        `json:"tags"`
		TaxDeductible   bool            `json:"isTaxDeductible"`
		BusinessExpense bool            `json:"businessExpense"`
		Attachments     []string        `json:"attachments"`
	}

	Transaction struct {
		ID     string `json:"id"`
		UserID string `json:"userId"`
		TransactionFields
		Date      time.Time  `json:"date"`
		Deleted   bool       `json:"isDeleted"`
		DeletedAt *time.Time `json:"deletedAt,omitempty"`
		CreatedAt time.Time  `json:"createdAt"`
		UpdatedAt time.Time  `json:"updatedAt"`
	}

	Account struct {
		ID            string          `json:"id"`
		UserID        string          `json:"userId"`
		Name          string          `json:"name"`
		Type          AccountType     `json:"type"`
		Balance       decimal.Decimal `json:"balance"`
		Currency      string          `json:"currency"`
		BankName      string          `json:"bankName,omitempty"`
		AccountNumber string          `json:"accountNumber,omitempty"`
		Active        bool            `json:"isActive"`
		AutoSync      bool            `json:"autoSync"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}

	// CategoryAllocation is one line of a budget. Spent and Remaining are caches
	// rebuilt from the ledger; the ledger stays the source of truth.
	CategoryAllocation struct {
		Category     string          `json:"category"`
		BudgetAmount decimal.Decimal `json:"budgetAmount"`
		Spent        decimal.Decimal `json:"spent"`
		Remaining    decimal.Decimal `json:"remaining"`
	}

	Budget struct {
		ID          string               `json:"id"`
		UserID      string               `json:"userId"`
		Name        string               `json:"name"`
		Period      BudgetPeriod         `json:"period"`
		TotalBudget decimal.Decimal      `json:"totalBudget"`
		Categories  []CategoryAllocation `json:"categories"`
		StartDate   time.Time            `json:"startDate"`
		EndDate     time.Time            `json:"endDate"`
		Active      bool                 `json:"isActive"`
		CreatedAt   time.Time            `json:"createdAt"`
		UpdatedAt   time.Time            `json:"updatedAt"`
	}

	Goal struct {
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		TargetAmount  decimal.Decimal `json:"targetAmount"`
		CurrentAmount decimal.Decimal `json:"currentAmount"`
		TargetDate    time.Time       `json:"targetDate"`
		Category      GoalCategory    `json:"category"`
	}

	// User is the owner profile. Goals live inside it and are saved with it.
	User struct {
		ID        string    `json:"id"`
		Currency  string    `json:"currency"`
		Goals     []Goal    `json:"financialGoals"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	RecurringTransaction struct {
		ID          string            `json:"id"`
		UserID      string            `json:"userId"`
		Template    TransactionFields `json:"templateTransaction"`
		Frequency   Frequency         `json:"frequency"`
		NextDueDate time.Time         `json:"nextDueDate"`
		EndDate     *time.Time        `json:"endDate,omitempty"`
		Active      bool              `json:"isActive"`
		CreatedAt   time.Time         `json:"createdAt"`
		UpdatedAt   time.Time         `json:"updatedAt"`
	}
)

var (
	TransactionTypes = []TransactionType{Income, Expense, Transfer}
	AccountTypes     = []AccountType{AccountBank, AccountCreditCard, AccountWallet, AccountInvestment, AccountCash}
	BudgetPeriods    = []BudgetPeriod{PeriodWeekly, PeriodMonthly, PeriodYearly}
	GoalCategories   = []GoalCategory{GoalEmergencyFund, GoalVacation, GoalHouse, GoalCar, GoalInvestment, GoalOther}
	Frequencies      = []Frequency{Daily, Weekly, Monthly, Yearly}
)

func (t TransactionType) Valid() bool { return contains(TransactionTypes, t) }
func (t AccountType) Valid() bool     { return contains(AccountTypes, t) }
func (p BudgetPeriod) Valid() bool    { return contains(BudgetPeriods, p) }
func (c GoalCategory) Valid() bool    { return contains(GoalCategories, c) }
func (f Frequency) Valid() bool       { return contains(Frequencies, f) }

// Slug turns "Emergency Fund" into "emergency-fund".
func (c GoalCategory) Slug() string {
	return strings.Join(strings.Fields(strings.ToLower(string(c))), "-")
}

// End returns the default end of a budget window starting at start.
func (p BudgetPeriod) End(start time.Time) time.Time {
	switch p {
	case PeriodWeekly:
		return start.AddDate(0, 0, 7)
	case PeriodYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// Signed returns the amount as it affects an account balance. Transfers are
// balance-neutral.
func (f TransactionFields) Signed() decimal.Decimal {
	switch f.Type {
	case Income:
		return f.Amount
	case Expense:
		return f.Amount.Neg()
	default:
		return decimal.Zero
	}
}

func (f TransactionFields) Validate() error {
	if !f.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(f.Category) == "" {
		return ErrEmptyCategory
	}
	if !f.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if len(f.Description) > 500 {
		return Validation("description too long (max 500 characters)")
	}
	return nil
}

// Clone returns a copy that shares no slices with f.
func (f TransactionFields) Clone() TransactionFields {
	f.Tags = cloneList(f.Tags)
	f.Attachments = cloneList(f.Attachments)
	return f
}

// cloneList copies s, keeping an empty list non-nil so it encodes as [].
func cloneList(s []string) []string {
	return append(make([]string, 0, len(s)), s...)
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return Validation("account name is required")
	}
	if !a.Type.Valid() {
		return ErrInvalidAccountType
	}
	return nil
}

// CategoryTotal sums the budgetAmount of every allocation.
func (b Budget) CategoryTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, c := range b.Categories {
		sum = sum.Add(c.BudgetAmount)
	}
	return sum
}

// CategoryNames lists the allocation categories in order.
func (b Budget) CategoryNames() []string {
	names := make([]string, len(b.Categories))
	for i, c := range b.Categories {
		names[i] = c.Category
	}
	return names
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return Validation("budget name is required")
	}
	if !b.TotalBudget.IsPositive() {
		return Validation("total budget must be greater than 0")
	}
	if len(b.Categories) == 0 {
		return Validation("at least one category is required")
	}
	if !b.Period.Valid() {
		return ErrInvalidPeriod
	}
	for _, c := range b.Categories {
		if strings.TrimSpace(c.Category) == "" {
			return ErrEmptyCategory
		}
		if c.BudgetAmount.IsNegative() {
			return Validation("category budget amount cannot be negative")
		}
	}
	if b.EndDate.Before(b.StartDate) {
		return Validation("end date must be after start date")
	}
	// Must stay last: updates tolerate only this rule.
	if b.CategoryTotal().GreaterThan(b.TotalBudget) {
		return ErrCategoriesExceedTotal
	}
	return nil
}

// Validate checks the stored invariants of a goal. The future target date rule
// is a creation-time rule and lives with the request, not here.
func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return Validation("goal name is required")
	}
	if !g.TargetAmount.IsPositive() {
		return Validation("target amount must be greater than 0")
	}
	if g.CurrentAmount.IsNegative() {
		return Validation("current amount cannot be negative")
	}
	if g.TargetDate.IsZero() {
		return Validation("target date is required")
	}
	if !g.Category.Valid() {
		return ErrInvalidGoalCategory
	}
	return nil
}

// Goal returns a pointer into u.Goals so callers can mutate it before saving u.
func (u *User) Goal(id string) (*Goal, bool) {
	for i := range u.Goals {
		if u.Goals[i].ID == id {
			return &u.Goals[i], true
		}
	}
	return nil, false
}

// RemoveGoal drops the goal with id and reports whether it existed.
func (u *User) RemoveGoal(id string) bool {
	for i := range u.Goals {
		if u.Goals[i].ID == id {
			u.Goals = append(u.Goals[:i], u.Goals[i+1:]...)
			return true
		}
	}
	return false
}

func (r RecurringTransaction) Validate() error {
	if err := r.Template.Validate(); err != nil {
		return Validation("invalid template transaction: " + err.Error())
	}
	if !r.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if r.NextDueDate.IsZero() {
		return Validation("next due date is required")
	}
	if r.EndDate != nil && r.EndDate.Before(r.NextDueDate) {
		return Validation("end date must not be before next due date")
	}
	return nil
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
