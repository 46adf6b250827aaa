package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"famledger/internal/analytics"
	"famledger/internal/cache"
	"famledger/internal/log"
	"famledger/internal/sheets"
)

type signInRequest struct {
	UID string `json:"uid"`
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"userId": s.store.UserID()})
}

// handleSignIn switches the session user. A failed remote refresh still
// switches locally and is reported as synced=false.
func (s *Server) handleSignIn(c *fiber.Ctx) error {
	var req signInRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	uid := sanitizeInput(req.UID)
	if uid == "" {
		return badRequest("uid is required")
	}

	ctx := c.UserContext()
	err := s.session.SignIn(ctx, uid)
	if err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Sign-in refresh failed",
			log.FieldUserID, uid,
			log.FieldError, err)
	}
	return c.JSON(fiber.Map{"userId": uid, "synced": err == nil})
}

func (s *Server) handleSignOut(c *fiber.Ctx) error {
	s.session.SignOut(c.UserContext())
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleListTransactions(c *fiber.Ctx) error {
	txs := s.store.Transactions()
	if c.Query("year") != "" || c.Query("month") != "" {
		params, err := parseMonthParams(c, s.now())
		if err != nil {
			return err
		}
		txs = analytics.FilterByMonth(txs, params.Time())
	}
	return c.JSON(fiber.Map{"transactions": txs, "count": len(txs)})
}

// handleCreateTransaction adds a transaction and flags it when the month's
// expenses would go over the soft limit. The flag never blocks the write.
func (s *Server) handleCreateTransaction(c *fiber.Ctx) error {
	var req transactionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}

	now := s.now()
	tx, err := req.toTransaction(now)
	if err != nil {
		return err
	}
	tx.ID = uuid.NewString()
	tx.CreatedAt = now.UnixMilli()

	exceeded := analytics.ExceedsMonthlySoftLimit(s.store.Transactions(), tx, now, s.softLimit)

	ctx := c.UserContext()
	if err := s.store.AddTransaction(ctx, tx); err != nil {
		return err
	}

	if exceeded {
		log.FromContext(ctx).WarnContext(ctx, "Monthly expense soft limit exceeded",
			log.FieldRecordID, tx.ID,
			log.FieldAmount, tx.Amount)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"transaction":       tx,
		"softLimitExceeded": exceeded,
	})
}

func (s *Server) handleUpdateTransaction(c *fiber.Ctx) error {
	fields, err := parseFields(c)
	if err != nil {
		return err
	}
	tx, err := s.store.UpdateTransaction(c.UserContext(), c.Params("id"), fields)
	if err != nil {
		return err
	}
	return c.JSON(tx)
}

func (s *Server) handleDeleteTransaction(c *fiber.Ctx) error {
	s.store.RemoveTransaction(c.UserContext(), c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

// handleReset clears the local transactions and restores the default
// categories. Remote records are untouched.
func (s *Server) handleReset(c *fiber.Ctx) error {
	s.store.ResetData(c.UserContext())
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleListCategories(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"categories": s.store.Categories()})
}

func (s *Server) handleCreateCategory(c *fiber.Ctx) error {
	var req categoryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	cat, err := s.store.AddCategory(c.UserContext(), req.toCategory())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cat)
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	params, err := parseMonthParams(c, s.now())
	if err != nil {
		return err
	}

	compute := func() analytics.Summary {
		return analytics.MonthSummary(s.store.Transactions(), params.Time())
	}

	var summary analytics.Summary
	hit := false
	if s.summaries != nil {
		key := cache.SummaryKey{Year: params.Year, Month: params.Month, Revision: s.store.Revision()}
		summary, hit = s.summaries.GetOrCompute(key, compute)
	} else {
		summary = compute()
	}

	if v := c.Query("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return badRequest("top must be a number")
		}
		summary.Categories = analytics.TopCategories(summary.Categories, n)
	}

	if hit {
		c.Set("X-Cache", "HIT")
	} else {
		c.Set("X-Cache", "MISS")
	}
	return c.JSON(summary)
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	if s.exporter == nil || !s.exporter.Enabled() {
		return sheets.ErrNotConfigured
	}
	params, err := parseMonthParams(c, s.now())
	if err != nil {
		return err
	}
	ref, err := s.exporter.Export(c.UserContext(), params.Year, params.Month)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ref": ref})
}
