package http

import (
	"github.com/gofiber/fiber/v2"

	"famledger/internal/core"
)

// handleListTasks returns the shared task board. ?mine=true keeps the tasks
// the session user created or is assigned to.
func (s *Server) handleListTasks(c *fiber.Ctx) error {
	tasks := s.store.Tasks()
	if c.QueryBool("mine") {
		uid := s.store.UserID()
		if uid == "" {
			return errNoSession
		}
		mine := make([]core.Task, 0, len(tasks))
		for _, t := range tasks {
			if t.InvolvesUser(uid) {
				mine = append(mine, t)
			}
		}
		tasks = mine
	}
	return c.JSON(fiber.Map{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleCreateTask(c *fiber.Ctx) error {
	var req taskRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	t, err := s.store.AddTask(c.UserContext(), req.toTask())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (s *Server) handleUpdateTask(c *fiber.Ctx) error {
	fields, err := parseFields(c)
	if err != nil {
		return err
	}
	t, err := s.store.UpdateTask(c.UserContext(), c.Params("id"), fields)
	if err != nil {
		return err
	}
	return c.JSON(t)
}

func (s *Server) handleAdvanceTask(c *fiber.Ctx) error {
	t, err := s.store.AdvanceTask(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(t)
}

func (s *Server) handleDeleteTask(c *fiber.Ctx) error {
	s.store.RemoveTask(c.UserContext(), c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleListNotifications(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"notifications": s.store.Notifications(),
		"unread":        s.store.UnreadCount(),
	})
}

func (s *Server) handleMarkNotificationRead(c *fiber.Ctx) error {
	if err := s.store.MarkNotificationRead(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleClearNotifications(c *fiber.Ctx) error {
	n := s.store.ClearNotifications(c.UserContext())
	return c.JSON(fiber.Map{"cleared": n})
}
