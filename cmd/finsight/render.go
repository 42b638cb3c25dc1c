package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"finsight/internal/core"
	"finsight/internal/hooks"
	"finsight/internal/services"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D1D5DB")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))
	incomeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	expenseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD54A"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#89b4fa")).Bold(true)

	cardStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#6CBFE6")).
		Padding(0, 1)
)

const (
	barWidth       = 20
	recentOnBoard  = 8
	descriptionMax = 32
)

func toastStyle(level hooks.Level) lipgloss.Style {
	switch level {
	case hooks.LevelSuccess:
		return successStyle
	case hooks.LevelError:
		return expenseStyle.Bold(true)
	}
	return accentStyle
}

// cell pads or truncates s to exactly w display columns.
func cell(s string, w int) string {
	if lipgloss.Width(s) > w {
		r := []rune(s)
		for len(r) > 0 && lipgloss.Width(string(r))+1 > w {
			r = r[:len(r)-1]
		}
		s = string(r) + "…"
	}
	return s + strings.Repeat(" ", max(0, w-lipgloss.Width(s)))
}

func signedAmount(tx core.Transaction, currency string) string {
	if tx.Type == core.Income {
		return incomeStyle.Render("+" + tx.Amount.Format(currency))
	}
	return expenseStyle.Render("-" + tx.Amount.Format(currency))
}

func renderTransactions(txs []core.Transaction, currency string) string {
	if len(txs) == 0 {
		return mutedStyle.Render("No transactions yet.")
	}
	var b strings.Builder
	b.WriteString(labelStyle.Render(cell("ID", 10) + cell("DATE", 12) + cell("TYPE", 9) + cell("CATEGORY", 16) + cell("DESCRIPTION", descriptionMax+2) + "AMOUNT"))
	for _, tx := range txs {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(cell(shortID(tx.ID), 10)))
		b.WriteString(cell(tx.Date.String(), 12))
		b.WriteString(cell(string(tx.Type), 9))
		b.WriteString(cell(tx.CategoryName(), 16))
		b.WriteString(cell(tx.Description, descriptionMax+2))
		b.WriteString(signedAmount(tx, currency))
	}
	return b.String()
}

// progressBar draws current/target as a fixed width bar; the fill is capped
// at the full width.
func progressBar(current, target core.Money, width int) string {
	filled := 0
	if target.Cents > 0 {
		filled = int(current.Cents * int64(width) / target.Cents)
	}
	filled = min(max(filled, 0), width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func percent(current, target core.Money) int {
	if target.Cents <= 0 {
		return 0
	}
	return int(current.Cents * 100 / target.Cents)
}

func goalStatusStyle(s core.GoalStatus) lipgloss.Style {
	switch s {
	case core.GoalReached:
		return successStyle
	case core.GoalMissed:
		return expenseStyle
	}
	return warnStyle
}

func renderGoals(goals []core.Goal, totals core.GoalTotals, currency string) string {
	if len(goals) == 0 {
		return mutedStyle.Render("No goals yet. Create one with `finsight goals add`.")
	}
	var b strings.Builder
	for i, g := range goals {
		if i > 0 {
			b.WriteString("\n")
		}
		deadline := "no deadline"
		if g.Deadline != nil {
			deadline = "due " + g.Deadline.String()
		}
		fmt.Fprintf(&b, "%s%s %s %3d%%  %s / %s  %s  %s",
			mutedStyle.Render(cell(shortID(g.ID), 10)),
			valueStyle.Render(cell(g.Name, 20)),
			progressBar(g.CurrentAmount, g.TargetAmount, barWidth),
			percent(g.CurrentAmount, g.TargetAmount),
			g.CurrentAmount.Format(currency),
			g.TargetAmount.Format(currency),
			labelStyle.Render(deadline),
			goalStatusStyle(g.Status).Render(string(g.Status)))
	}
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Saved ") + valueStyle.Render(totals.TotalSaved.Format(currency)) +
		labelStyle.Render(" of ") + valueStyle.Render(totals.TotalTarget.Format(currency)))
	return b.String()
}

func renderProfile(u core.User, p *core.Profile) string {
	row := func(label, value string) string {
		return labelStyle.Render(cell(label, 10)) + valueStyle.Render(value)
	}
	lines := []string{titleStyle.Render("Profile"), row("Email", u.Email)}
	if p == nil {
		lines = append(lines, mutedStyle.Render("No profile saved yet."))
		return cardStyle.Render(strings.Join(lines, "\n"))
	}
	name := p.FullName
	if name == "" {
		name = u.FullName
	}
	avatar := p.AvatarURL
	if avatar == "" {
		avatar = "none"
	}
	lines = append(lines,
		row("Name", name),
		row("Currency", p.Currency),
		row("Theme", string(p.Theme)),
		row("Avatar", avatar))
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func totalsCard(t core.Totals, currency string) string {
	savings := incomeStyle
	if t.Savings.Cents < 0 {
		savings = expenseStyle
	}
	return cardStyle.Render(strings.Join([]string{
		titleStyle.Render("Totals"),
		labelStyle.Render(cell("Income", 10)) + incomeStyle.Render(t.Income.Format(currency)),
		labelStyle.Render(cell("Expenses", 10)) + expenseStyle.Render(t.Expenses.Format(currency)),
		labelStyle.Render(cell("Savings", 10)) + savings.Render(t.Savings.Format(currency)),
	}, "\n"))
}

// categoryBars scales every bar against the largest category.
func categoryBars(cats []core.CategoryAmount, currency string) string {
	if len(cats) == 0 {
		return mutedStyle.Render("No expenses yet.")
	}
	top := cats[0].Amount
	for _, c := range cats {
		if c.Amount.Cents > top.Cents {
			top = c.Amount
		}
	}
	lines := make([]string, 0, len(cats)+1)
	lines = append(lines, titleStyle.Render("Spending by category"))
	for _, c := range cats {
		lines = append(lines, cell(c.Name, 16)+progressBar(c.Amount, top, barWidth)+" "+c.Amount.Format(currency))
	}
	return strings.Join(lines, "\n")
}

func renderSummary(sum services.Summary, currency string) string {
	goals := cardStyle.Render(strings.Join([]string{
		titleStyle.Render("Goals"),
		labelStyle.Render(cell("Saved", 10)) + valueStyle.Render(sum.Goals.TotalSaved.Format(currency)),
		labelStyle.Render(cell("Target", 10)) + valueStyle.Render(sum.Goals.TotalTarget.Format(currency)),
		labelStyle.Render(cell("Progress", 10)) + progressBar(sum.Goals.TotalSaved, sum.Goals.TotalTarget, barWidth-8),
	}, "\n"))

	parts := []string{
		lipgloss.JoinHorizontal(lipgloss.Top, totalsCard(sum.Totals, currency), " ", goals),
		categoryBars(sum.Categories, currency),
	}
	if len(sum.Monthly) > 0 {
		lines := []string{titleStyle.Render("Monthly")}
		for _, m := range sum.Monthly {
			month := time.Date(m.Year, time.Month(m.Month), 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006")
			lines = append(lines, fmt.Sprintf("%s %s  %s",
				cell(month, 10),
				incomeStyle.Render(cell("+"+m.Income.Format(currency), 18)),
				expenseStyle.Render("-"+m.Expenses.Format(currency))))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func insightStyle(t core.InsightType) lipgloss.Style {
	switch t {
	case core.InsightWarning:
		return warnStyle
	case core.InsightSuccess:
		return successStyle
	case core.InsightTip:
		return accentStyle
	}
	return labelStyle
}

func renderInsights(b core.InsightBundle, cached bool) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Insights"))
	if cached {
		s.WriteString(mutedStyle.Render("  (cached, use --refresh for new ones)"))
	}
	s.WriteString("\n")
	s.WriteString(valueStyle.Render(b.Summary))
	for _, in := range b.Insights {
		s.WriteString("\n\n")
		s.WriteString(insightStyle(in.Type).Render("[" + string(in.Type) + "] " + in.Title))
		if in.Category != "" {
			s.WriteString(mutedStyle.Render(" · " + in.Category))
		}
		s.WriteString("\n")
		s.WriteString(in.Description)
		if in.ActionLabel != "" {
			s.WriteString("\n")
			s.WriteString(accentStyle.Render("→ " + in.ActionLabel))
		}
	}
	return s.String()
}

// dashboard is everything the watch view shows in one frame.
type dashboard struct {
	User     core.User
	Currency string
	Txs      []core.Transaction
	Goals    []core.Goal
	Unread   int
	Loading  bool
}

func renderDashboard(d dashboard) string {
	header := titleStyle.Render("finsight") + labelStyle.Render("  "+d.User.Email)
	if d.Unread > 0 {
		header += "  " + warnStyle.Render(fmt.Sprintf("%d new", d.Unread))
	}
	if d.Loading {
		header += "  " + mutedStyle.Render("loading…")
	}

	goals := core.ComputeGoalTotals(d.Goals)
	goalLines := []string{titleStyle.Render("Goals")}
	for _, g := range d.Goals {
		goalLines = append(goalLines, cell(g.Name, 16)+progressBar(g.CurrentAmount, g.TargetAmount, barWidth-8)+
			fmt.Sprintf(" %3d%%", percent(g.CurrentAmount, g.TargetAmount)))
	}
	if len(d.Goals) == 0 {
		goalLines = append(goalLines, mutedStyle.Render("No goals yet."))
	} else {
		goalLines = append(goalLines, labelStyle.Render("Saved ")+valueStyle.Render(goals.TotalSaved.Format(d.Currency)))
	}

	recent := d.Txs
	if len(recent) > recentOnBoard {
		recent = recent[:recentOnBoard]
	}
	return strings.Join([]string{
		header,
		lipgloss.JoinHorizontal(lipgloss.Top,
			totalsCard(core.ComputeTotals(d.Txs), d.Currency), " ",
			cardStyle.Render(strings.Join(goalLines, "\n"))),
		categoryBars(core.CategoryBreakdown(d.Txs), d.Currency),
		titleStyle.Render("Recent transactions"),
		renderTransactions(recent, d.Currency),
		mutedStyle.Render("Ctrl+C to quit"),
	}, "\n\n")
}
