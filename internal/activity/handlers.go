package activity

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func currentUser(c *fiber.Ctx) (string, error) {
	id, _ := c.Locals("user_id").(string)
	if id == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "missing user")
	}
	return id, nil
}

func httpError(err error) *fiber.Error {
	switch {
	case errors.Is(err, ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConcurrentSession):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		var req StartRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		view, err := svc.Start(c.Context(), userID, req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	})

	r.Get("/live", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		view, ok := svc.Live(c.Context(), userID)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no live session")
		}
		return c.JSON(view)
	})

	r.Post("/plans", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		var req PlanRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		view, err := svc.Plan(c.Context(), userID, req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	})

	r.Get("/plans", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		plans, err := svc.ListPlans(c.Context(), userID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"plans": plans})
	})

	r.Delete("/plans/:id", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		if err := svc.DeletePlan(c.Context(), userID, c.Params("id")); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		sessions, err := svc.ListCompleted(c.Context(), userID, c.QueryInt("limit", 20))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"sessions": sessions})
	})

	r.Post("/:id/points", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		var req PointRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		resp, err := svc.AddPoint(c.Context(), userID, c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(resp)
	})

	r.Post("/:id/pause", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		resp, err := svc.Pause(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(resp)
	})

	r.Post("/:id/resume", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		resp, err := svc.Resume(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(resp)
	})

	r.Post("/:id/complete", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		var req CompleteRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		resp, err := svc.Complete(c.Context(), userID, c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(resp)
	})

	r.Post("/:id/cancel", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		var req CancelRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		resp, err := svc.Cancel(c.Context(), userID, c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(resp)
	})

	r.Get("/:id/export.gpx", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		data, filename, err := svc.ExportGPX(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		c.Set(fiber.HeaderContentType, "application/gpx+xml")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
		return c.Send(data)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		view, err := svc.Get(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(view)
	})
}
