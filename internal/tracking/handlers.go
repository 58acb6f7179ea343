package tracking

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type startRequest struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
}

type stopRequest struct {
	CheckOutData string `json:"check_out_data"`
}

func RegisterRoutes(r fiber.Router, ctrl *Controller, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var req startRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.EmployeeID == "" || req.EmployeeName == "" {
			return fiber.NewError(fiber.StatusBadRequest, "employee_id and employee_name required")
		}
		if err := ctrl.Start(req.EmployeeID, req.EmployeeName); err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				return fiber.NewError(fiber.StatusForbidden, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		var req stopRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		if err := ctrl.Stop(req.CheckOutData); err != nil {
			if errors.Is(err, ErrNoActiveShift) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	r.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(ctrl.Status())
	})

	r.Get("/pending/:employeeID", authMiddleware, func(c *fiber.Ctx) error {
		count, err := ctrl.PendingCount(c.Context(), c.Params("employeeID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"count": count})
	})

	r.Delete("/data/:employeeID", authMiddleware, func(c *fiber.Ctx) error {
		removed, err := ctrl.ClearData(c.Context(), c.Params("employeeID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"rows_removed": removed})
	})
}

type fixRequest struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	AccuracyM        float64 `json:"accuracy_m"`
	PermissionDenied bool    `json:"permission_denied"`
}

// RegisterIngest wires the device bridge's callback surface: the native
// positioning layer reports fixes and permission loss here.
func RegisterIngest(r fiber.Router, collector *PushCollector, authMiddleware fiber.Handler) {
	r.Post("/fix", authMiddleware, func(c *fiber.Ctx) error {
		var req fixRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.PermissionDenied {
			collector.PushError(ErrPermissionDenied)
			return c.JSON(fiber.Map{"status": "ok"})
		}
		accepted := collector.Push(Position{Lat: req.Lat, Lng: req.Lng, AccuracyM: req.AccuracyM})
		return c.JSON(fiber.Map{"accepted": accepted})
	})
}
