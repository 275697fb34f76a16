package controllers

import (
	"errors"
	"fmt"
	"strconv"

	"thesisdefense_go/services"
	"thesisdefense_go/services/scheduling"
	"thesisdefense_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+param)
	}
	return uint(id), nil
}

func pagination(c *fiber.Ctx, defLimit int) (page, limit int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	limit, _ = strconv.Atoi(c.Query("limit", strconv.Itoa(defLimit)))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = defLimit
	}
	return page, limit
}

// parseBody decodes and validates a request DTO, writing the 400 response itself.
func parseBody(c *fiber.Ctx, out interface{}) (bool, error) {
	if err := c.BodyParser(out); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if fields := utils.ValidateStruct(out); fields != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": fields,
		})
	}
	return true, nil
}

// serviceError maps service sentinels to HTTP responses. Unknown errors are
// logged and reported as 500 without detail.
func serviceError(c *fiber.Ctx, err error, fallback string) error {
	var verr *scheduling.ValidationError
	var cerr *scheduling.ConflictError
	var ferr *fiber.Error
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Validation failed", "fields": verr.Fields})
	case errors.As(err, &cerr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Schedule conflicts detected", "conflicts": cerr.Conflicts})
	case errors.As(err, &ferr):
		return c.Status(ferr.Code).JSON(fiber.Map{"error": ferr.Message})
	case errors.Is(err, services.ErrNotFound), errors.Is(err, scheduling.ErrScheduleNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, scheduling.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrEmailTaken), errors.Is(err, services.ErrNotPending), errors.Is(err, services.ErrSlotOverlap):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidLogin):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrAccountPending), errors.Is(err, services.ErrAccountInactive):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	}
	logrus.WithError(err).WithField("path", c.Path()).Error(fallback)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": fallback})
}

// sendXLSX writes one sheet with a header row and streams it as an attachment.
func sendXLSX(c *fiber.Ctx, fileName, sheet string, header []string, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	head := make([]interface{}, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(sheet, "A1", last, style)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
	return c.Send(buf.Bytes())
}
