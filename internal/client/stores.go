package client

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/services"
)

type transactionBody struct {
	Amount      core.Money           `json:"amount"`
	Type        core.TransactionType `json:"type"`
	Description string               `json:"description"`
	Date        core.Date            `json:"date"`
	CategoryID  *uuid.UUID           `json:"category_id"`
}

type goalBody struct {
	Name          string     `json:"name"`
	TargetAmount  core.Money `json:"target_amount"`
	CurrentAmount core.Money `json:"current_amount"`
	Deadline      *core.Date `json:"deadline"`
	Icon          string     `json:"icon"`
	Color         string     `json:"color"`
}

type profileBody struct {
	FullName  *string     `json:"full_name,omitempty"`
	Currency  *string     `json:"currency,omitempty"`
	Theme     *core.Theme `json:"theme,omitempty"`
	AvatarURL *string     `json:"avatar_url,omitempty"`
}

// goalPatchBody sends only the fields set on p. A cleared deadline is sent
// as an explicit null.
func goalPatchBody(p core.GoalPatch) map[string]any {
	body := make(map[string]any)
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.TargetAmount != nil {
		body["target_amount"] = *p.TargetAmount
	}
	if p.CurrentAmount != nil {
		body["current_amount"] = *p.CurrentAmount
	}
	switch {
	case p.ClearDeadline:
		body["deadline"] = nil
	case p.Deadline != nil:
		body["deadline"] = *p.Deadline
	}
	if p.Status != nil {
		body["status"] = *p.Status
	}
	if p.Icon != nil {
		body["icon"] = *p.Icon
	}
	if p.Color != nil {
		body["color"] = *p.Color
	}
	return body
}

// decodeList skips malformed rows and logs each of them.
func decodeList[T any](ctx context.Context, c *Client, table string, rows []core.Row, decode func(core.Row) (T, error)) []T {
	items, errs := core.DecodeRows(rows, decode)
	for _, err := range errs {
		c.logger.WarnContext(ctx, "Skipping malformed record",
			log.FieldTable, table,
			log.FieldError, err.Error())
	}
	return items
}

func (c *Client) ListTransactions(ctx context.Context, userID uuid.UUID) ([]core.Transaction, error) {
	var rows []core.Row
	if err := c.do(ctx, http.MethodGet, "/api/transactions", nil, &rows); err != nil {
		return nil, err
	}
	txs := decodeList(ctx, c, core.TableTransactions, rows, core.DecodeTransaction)
	for i := range txs {
		if txs[i].UserID == uuid.Nil {
			txs[i].UserID = userID
		}
	}
	return txs, nil
}

func (c *Client) ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error) {
	var rows []core.Row
	if err := c.do(ctx, http.MethodGet, "/api/categories", nil, &rows); err != nil {
		return nil, err
	}
	cats := decodeList(ctx, c, core.TableCategories, rows, core.DecodeCategory)
	for i := range cats {
		if cats[i].UserID == uuid.Nil {
			cats[i].UserID = userID
		}
	}
	return cats, nil
}

func (c *Client) CreateTransaction(ctx context.Context, userID uuid.UUID, in core.TransactionInput) (core.Transaction, error) {
	var row core.Row
	err := c.do(ctx, http.MethodPost, "/api/transactions", transactionBody{
		Amount:      in.Amount,
		Type:        in.Type,
		Description: in.Description,
		Date:        in.Date,
		CategoryID:  in.CategoryID,
	}, &row)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := core.DecodeTransaction(row)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.UserID = userID
	return tx, nil
}

func (c *Client) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/transactions/"+id.String(), nil, nil)
}

func (c *Client) ListGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error) {
	var rows []core.Row
	if err := c.do(ctx, http.MethodGet, "/api/goals", nil, &rows); err != nil {
		return nil, err
	}
	goals := decodeList(ctx, c, core.TableGoals, rows, core.DecodeGoal)
	for i := range goals {
		if goals[i].UserID == uuid.Nil {
			goals[i].UserID = userID
		}
	}
	return goals, nil
}

func (c *Client) CreateGoal(ctx context.Context, userID uuid.UUID, in core.GoalInput) (core.Goal, error) {
	var row core.Row
	err := c.do(ctx, http.MethodPost, "/api/goals", goalBody{
		Name:          in.Name,
		TargetAmount:  in.TargetAmount,
		CurrentAmount: in.CurrentAmount,
		Deadline:      in.Deadline,
		Icon:          in.Icon,
		Color:         in.Color,
	}, &row)
	if err != nil {
		return core.Goal{}, err
	}
	return c.goalOf(row, userID)
}

func (c *Client) UpdateGoal(ctx context.Context, userID, id uuid.UUID, patch core.GoalPatch) (core.Goal, error) {
	var row core.Row
	if err := c.do(ctx, http.MethodPatch, "/api/goals/"+id.String(), goalPatchBody(patch), &row); err != nil {
		return core.Goal{}, err
	}
	return c.goalOf(row, userID)
}

func (c *Client) DeleteGoal(ctx context.Context, userID, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/goals/"+id.String(), nil, nil)
}

func (c *Client) goalOf(row core.Row, userID uuid.UUID) (core.Goal, error) {
	g, err := core.DecodeGoal(row)
	if err != nil {
		return core.Goal{}, err
	}
	g.UserID = userID
	return g, nil
}

// GetProfile returns core.ErrNotFound when the server has no profile row.
func (c *Client) GetProfile(ctx context.Context, userID uuid.UUID) (core.Profile, error) {
	var row core.Row
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, &row); err != nil {
		return core.Profile{}, err
	}
	return core.DecodeProfile(row)
}

func (c *Client) UpdateProfile(ctx context.Context, userID uuid.UUID, patch core.ProfilePatch) (core.Profile, error) {
	var row core.Row
	err := c.do(ctx, http.MethodPatch, "/api/profile", profileBody{
		FullName:  patch.FullName,
		Currency:  patch.Currency,
		Theme:     patch.Theme,
		AvatarURL: patch.AvatarURL,
	}, &row)
	if err != nil {
		return core.Profile{}, err
	}
	return core.DecodeProfile(row)
}

// Summary returns the server-side aggregation of the caller's data.
func (c *Client) Summary(ctx context.Context) (services.Summary, error) {
	var sum services.Summary
	if err := c.do(ctx, http.MethodGet, "/api/summary", nil, &sum); err != nil {
		return services.Summary{}, err
	}
	return sum, nil
}

// Export asks the server to append the caller's transactions to the
// configured spreadsheet.
func (c *Client) Export(ctx context.Context) (services.ExportResult, error) {
	var res services.ExportResult
	if err := c.do(ctx, http.MethodPost, "/api/export/sheets", nil, &res); err != nil {
		return services.ExportResult{}, err
	}
	return res, nil
}

// GenerateInsights posts snap to the insight endpoint. A failed response
// yields an error carrying the server's {error, details} body.
func (c *Client) GenerateInsights(ctx context.Context, snap core.Snapshot) (core.InsightBundle, error) {
	if snap.Transactions == nil {
		snap.Transactions = []core.TransactionView{}
	}
	if snap.Goals == nil {
		snap.Goals = []core.GoalView{}
	}
	var b core.InsightBundle
	if err := c.doWithin(ctx, insightsTimeout, http.MethodPost, "/api/ai-insights", snap, &b); err != nil {
		return core.InsightBundle{}, err
	}
	return b, nil
}
