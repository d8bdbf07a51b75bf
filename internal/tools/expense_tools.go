package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"amble/internal/models"
	"amble/internal/store"
)

type trackExpenseArgs struct {
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

func (d *domainTools) trackExpenseTool() *Tool {
	return &Tool{
		Name:        "track_expense",
		Description: "Records an expense the user mentions, in rupees. Use when the user says they spent or paid for something.",
		Parameters: object(map[string]interface{}{
			"amount":      number("Amount spent, must be greater than zero"),
			"category":    enum("Expense category", models.ExpenseCategories),
			"description": str("What the money was spent on"),
		}, "amount", "category", "description"),
		Domain:  DomainExpenses,
		Mutates: true,
		Handler: Typed(d.trackExpense),
	}
}

func (d *domainTools) trackExpense(ctx context.Context, inv Invocation, args trackExpenseArgs) Result {
	if args.Amount <= 0 {
		return Errorf("amount must be greater than zero")
	}
	category, err := models.ParseExpenseCategory(strings.ToLower(strings.TrimSpace(args.Category)))
	if err != nil {
		return Errorf("%v", err)
	}
	desc := strings.TrimSpace(args.Description)
	if desc == "" {
		desc = string(category)
	}

	e := &models.Expense{
		ID:          newID(),
		UserKey:     inv.UserKey,
		Amount:      args.Amount,
		Category:    category,
		Description: desc,
		CreatedAt:   inv.Now.UTC(),
	}
	if err := d.Store.AddExpense(ctx, e); err != nil {
		return Errorf("could not save expense: %v", err)
	}

	loc := d.location(ctx, inv)
	today, err := d.Store.ListExpenses(ctx, inv.UserKey, store.Range{Since: startOfDay(inv.Now.In(loc))})
	if err != nil {
		return Errorf("expense saved but today's total is unavailable: %v", err)
	}
	var total float64
	for _, x := range today {
		total += x.Amount
	}

	return Success(
		fmt.Sprintf("Noted! ₹%.2f for %s. Total today is ₹%.2f.", e.Amount, desc, total),
		map[string]interface{}{"expense_id": e.ID, "today_total": round2(total)},
	)
}

type expenseSummaryArgs struct {
	Period string `json:"period"`
}

var expensePeriods = []string{"today", "week", "month", "all"}

func (d *domainTools) expenseSummaryTool() *Tool {
	return &Tool{
		Name:        "get_expense_summary",
		Description: "Summarises the user's spending for a period: total, totals per category and the number of transactions.",
		Parameters: object(map[string]interface{}{
			"period": enum("Period to summarise, defaults to week", expensePeriods),
		}),
		Domain:  DomainExpenses,
		Handler: Typed(d.expenseSummary),
	}
}

func (d *domainTools) expenseSummary(ctx context.Context, inv Invocation, args expenseSummaryArgs) Result {
	period := strings.ToLower(strings.TrimSpace(args.Period))
	if period == "" {
		period = "week"
	}

	now := inv.Now.In(d.location(ctx, inv))
	var r store.Range
	switch period {
	case "today":
		r.Since = startOfDay(now)
	case "week":
		r.Since = now.Add(-7 * 24 * time.Hour)
	case "month":
		r.Since = now.Add(-30 * 24 * time.Hour)
	case "all":
	default:
		return Errorf("invalid period %q, use today, week, month or all", args.Period)
	}

	expenses, err := d.Store.ListExpenses(ctx, inv.UserKey, r)
	if err != nil {
		return Errorf("could not load expenses: %v", err)
	}

	var total float64
	byCategory := map[string]float64{}
	for _, e := range expenses {
		total += e.Amount
		byCategory[string(e.Category)] += e.Amount
	}
	for k, v := range byCategory {
		byCategory[k] = round2(v)
	}

	label := period
	if period != "all" {
		label = "this " + period
		if period == "today" {
			label = "today"
		}
	}
	return Success(
		fmt.Sprintf("Your expenses for %s total ₹%.2f across %d transactions.", label, total, len(expenses)),
		map[string]interface{}{
			"period":            period,
			"total":             round2(total),
			"by_category":       byCategory,
			"transaction_count": len(expenses),
		},
	)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
