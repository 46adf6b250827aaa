package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"famledger/internal/core"
	"famledger/internal/remote"
)

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// Time returns the first instant of the month in UTC.
func (p MonthParams) Time() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// parseMonthParams extracts year and month from the query string, defaulting
// to the month of now. Unparseable values fall back to the default; an out
// of range month is an error.
func parseMonthParams(c *fiber.Ctx, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: now.Month()}

	if v := strings.TrimSpace(c.Query("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			params.Year = y
		}
	}
	if v := strings.TrimSpace(c.Query("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			if m < 1 || m > 12 {
				return params, badRequest("month must be between 1 and 12")
			}
			params.Month = time.Month(m)
		}
	}
	return params, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseFields decodes a PATCH body into a partial record. String values are
// sanitized.
func parseFields(c *fiber.Ctx) (remote.Fields, error) {
	var fields remote.Fields
	if err := c.BodyParser(&fields); err != nil {
		return nil, badRequest("invalid request body")
	}
	if len(fields) == 0 {
		return nil, badRequest("no fields to update")
	}
	for k, v := range fields {
		if s, ok := v.(string); ok {
			fields[k] = sanitizeInput(s)
		}
	}
	return fields, nil
}

type transactionRequest struct {
	Date          string               `json:"date"`
	Amount        core.FlexibleAmount  `json:"amount"`
	CategoryID    string               `json:"categoryId"`
	Description   string               `json:"description"`
	Type          core.TransactionType `json:"type"`
	PaymentMethod core.PaymentMethod   `json:"paymentMethod"`
}

// toTransaction builds the transaction; an empty date means today.
func (r transactionRequest) toTransaction(now time.Time) (core.Transaction, error) {
	date := core.DateOf(now)
	if strings.TrimSpace(r.Date) != "" {
		d, err := core.ParseDate(r.Date)
		if err != nil {
			return core.Transaction{}, err
		}
		date = d
	}
	return core.Transaction{
		Date:          date,
		Amount:        float64(r.Amount),
		CategoryID:    sanitizeInput(r.CategoryID),
		Description:   sanitizeInput(r.Description),
		Type:          r.Type,
		PaymentMethod: r.PaymentMethod,
	}, nil
}

type taskRequest struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Priority     core.TaskPriority `json:"priority"`
	DueDate      *core.DateTime    `json:"dueDate"`
	AssigneeID   string            `json:"assigneeId"`
	AssigneeName string            `json:"assigneeName"`
	ReminderTime core.ReminderLead `json:"reminderTime"`
}

func (r taskRequest) toTask() core.Task {
	return core.Task{
		Title:        sanitizeInput(r.Title),
		Description:  sanitizeInput(r.Description),
		Priority:     r.Priority,
		DueDate:      r.DueDate,
		AssigneeID:   sanitizeInput(r.AssigneeID),
		AssigneeName: sanitizeInput(r.AssigneeName),
		ReminderTime: r.ReminderTime,
	}
}

type categoryRequest struct {
	ID    string               `json:"id"`
	Name  string               `json:"name"`
	Type  core.TransactionType `json:"type"`
	Color string               `json:"color"`
	Icon  string               `json:"icon"`
}

func (r categoryRequest) toCategory() core.Category {
	return core.Category{
		ID:    sanitizeInput(r.ID),
		Name:  sanitizeInput(r.Name),
		Type:  r.Type,
		Color: sanitizeInput(r.Color),
		Icon:  sanitizeInput(r.Icon),
	}
}
