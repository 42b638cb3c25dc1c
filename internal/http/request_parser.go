package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"finsight/internal/core"
)

const maxBodyBytes = 1 << 20

// errBadBody marks requests whose JSON could not be read at all; these are
// answered with 400 rather than 422.
var errBadBody = errors.New("invalid request body")

// decodeJSON reads a single JSON object into dst, rejecting unknown fields
// and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		// field-level parse failures from core types are validation errors
		if core.IsValidation(err) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON object", errBadBody)
	}
	return nil
}

// badRequest answers decode failures; it reports false when err is nil.
func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, op string, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errBadBody) {
		writeAPIError(w, http.StatusBadRequest, "invalid request body", strings.TrimPrefix(err.Error(), errBadBody.Error()+": "))
		return true
	}
	s.writeError(w, r, op, err)
	return true
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type transactionRequest struct {
	Amount      core.Money           `json:"amount"`
	Type        core.TransactionType `json:"type"`
	Description string               `json:"description"`
	Date        core.Date            `json:"date"`
	CategoryID  *uuid.UUID           `json:"category_id"`
}

func (req transactionRequest) input() core.TransactionInput {
	return core.TransactionInput{
		Amount:      req.Amount,
		Type:        req.Type,
		Description: strings.TrimSpace(req.Description),
		Date:        req.Date,
		CategoryID:  req.CategoryID,
	}
}

type goalRequest struct {
	Name          string     `json:"name"`
	TargetAmount  core.Money `json:"target_amount"`
	CurrentAmount core.Money `json:"current_amount"`
	Deadline      *core.Date `json:"deadline"`
	Icon          string     `json:"icon"`
	Color         string     `json:"color"`
}

func (req goalRequest) input() core.GoalInput {
	return core.GoalInput{
		Name:          strings.TrimSpace(req.Name),
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		Deadline:      req.Deadline,
		Icon:          req.Icon,
		Color:         req.Color,
	}
}

// goalPatchRequest distinguishes an absent deadline from an explicit null,
// which clears it.
type goalPatchRequest struct {
	Name          *string          `json:"name"`
	TargetAmount  *core.Money      `json:"target_amount"`
	CurrentAmount *core.Money      `json:"current_amount"`
	Deadline      json.RawMessage  `json:"deadline"`
	Status        *core.GoalStatus `json:"status"`
	Icon          *string          `json:"icon"`
	Color         *string          `json:"color"`
}

func (req goalPatchRequest) patch() (core.GoalPatch, error) {
	p := core.GoalPatch{
		Name:          req.Name,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		Status:        req.Status,
		Icon:          req.Icon,
		Color:         req.Color,
	}
	switch raw := bytes.TrimSpace(req.Deadline); {
	case len(raw) == 0:
	case bytes.Equal(raw, []byte("null")):
		p.ClearDeadline = true
	default:
		var d core.Date
		if err := json.Unmarshal(raw, &d); err != nil {
			return core.GoalPatch{}, fmt.Errorf("%w: invalid deadline: %v", core.ErrInvalidInput, err)
		}
		p.Deadline = &d
	}
	return p, nil
}

type fundsRequest struct {
	Amount core.Money `json:"amount"`
}

type profilePatchRequest struct {
	FullName  *string     `json:"full_name"`
	Currency  *string     `json:"currency"`
	Theme     *core.Theme `json:"theme"`
	AvatarURL *string     `json:"avatar_url"`
}

func (req profilePatchRequest) patch() core.ProfilePatch {
	return core.ProfilePatch{
		FullName:  req.FullName,
		Currency:  req.Currency,
		Theme:     req.Theme,
		AvatarURL: req.AvatarURL,
	}
}
