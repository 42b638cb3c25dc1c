package insights

import (
	"context"
	"fmt"
	"sort"

	"finsight/internal/core"
)

// Rules derives insights from the snapshot alone. It never fails and is
// used when no model is configured or the model call fails.
type Rules struct{}

func (Rules) Generate(_ context.Context, snap core.Snapshot) (core.InsightBundle, error) {
	t := snap.Totals
	var out []core.Insight
	add := func(typ core.InsightType, category, title, desc string) {
		out = append(out, core.Insight{
			ID:          fmt.Sprintf("rule-%d", len(out)+1),
			Type:        typ,
			Title:       title,
			Description: desc,
			Category:    category,
		})
	}

	if len(snap.Transactions) == 0 {
		add(core.InsightInfo, "general", "Start tracking",
			"Record a few income and expense transactions to get personalised insights.")
		return core.InsightBundle{Summary: "No transactions recorded yet.", Insights: out}, nil
	}

	rate := savingsRate(t)
	switch {
	case t.Savings.Cents < 0:
		add(core.InsightWarning, "budget", "Spending exceeds income",
			fmt.Sprintf("Expenses are %s above income. Review your largest categories.", core.Money{Cents: -t.Savings.Cents}))
	case rate >= 20:
		add(core.InsightSuccess, "savings", "Healthy savings rate",
			fmt.Sprintf("You are saving %d%% of your income.", rate))
	case t.Income.Cents > 0:
		add(core.InsightTip, "savings", "Raise your savings rate",
			fmt.Sprintf("You are saving %d%% of your income. Aim for at least 20%%.", rate))
	}

	if top, share, ok := topCategory(snap.Transactions, t.Expenses); ok && share >= 30 {
		add(core.InsightTip, top, fmt.Sprintf("%s dominates spending", top),
			fmt.Sprintf("%s accounts for %d%% of your expenses.", top, share))
	}

	for _, g := range snap.Goals {
		switch {
		case g.Status == core.GoalReached || (g.TargetAmount.Cents > 0 && g.CurrentAmount.Cents >= g.TargetAmount.Cents):
			add(core.InsightSuccess, "goals", fmt.Sprintf("Goal reached: %s", g.Name),
				fmt.Sprintf("You saved %s for %s.", g.CurrentAmount, g.Name))
		case g.Status == core.GoalMissed:
			add(core.InsightWarning, "goals", fmt.Sprintf("Goal missed: %s", g.Name),
				"The deadline passed before the target was reached. Consider a new deadline.")
		case g.TargetAmount.Cents > 0:
			pct := int(g.CurrentAmount.Cents * 100 / g.TargetAmount.Cents)
			add(core.InsightInfo, "goals", fmt.Sprintf("%s is %d%% funded", g.Name, pct),
				fmt.Sprintf("%s left to reach %s.", g.TargetAmount.Sub(g.CurrentAmount), g.TargetAmount))
		}
	}

	summary := fmt.Sprintf("Income %s, expenses %s, savings %s across %d transactions.",
		t.Income, t.Expenses, t.Savings, len(snap.Transactions))
	return core.InsightBundle{Summary: summary, Insights: out}, nil
}

func savingsRate(t core.Totals) int {
	if t.Income.Cents <= 0 {
		return 0
	}
	return int(t.Savings.Cents * 100 / t.Income.Cents)
}

// topCategory returns the expense category with the largest share, in
// whole percent of total.
func topCategory(txs []core.TransactionView, total core.Money) (string, int, bool) {
	if total.Cents <= 0 {
		return "", 0, false
	}
	sums := map[string]int64{}
	for _, tx := range txs {
		if tx.Type != core.Expense {
			continue
		}
		name := core.OtherCategory
		if tx.Category != nil && tx.Category.Name != "" {
			name = tx.Category.Name
		}
		sums[name] += tx.Amount.Cents
	}
	if len(sums) == 0 {
		return "", 0, false
	}
	names := make([]string, 0, len(sums))
	for n := range sums {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if sums[names[i]] != sums[names[j]] {
			return sums[names[i]] > sums[names[j]]
		}
		return names[i] < names[j]
	})
	top := names[0]
	return top, int(sums[top] * 100 / total.Cents), true
}
