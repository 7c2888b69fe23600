package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/mikebet/normalize"
)

type trainerText struct {
	Trainer string `json:"trainer,omitempty"`
	Text    string `json:"text,omitempty"`
}

// GetTrainerText returns the notes for a single trainer.
func (h *Handler) GetTrainerText(c echo.Context) error {
	tr := c.QueryParam("tr")
	if tr == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tr param not set")
	}

	trainer, err := h.catalog.Trainer(c.Request().Context(), normalize.Name(tr))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if trainer == nil {
		return echo.NewHTTPError(http.StatusNotFound, "trainer not found")
	}

	info := ""
	if trainer.Info != nil {
		info = *trainer.Info
	}
	return c.JSON(http.StatusOK, trainerText{trainer.Name, info})
}

// GetAllTrainers searches trainers by name pattern.
func (h *Handler) GetAllTrainers(c echo.Context) error {
	tr := c.QueryParam("tr")
	if tr == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tr param not set")
	}

	names, err := h.catalog.SearchTrainers(c.Request().Context(), tr)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, names)
}

// SaveTrainerText replaces the notes for a trainer with the request body.
func (h *Handler) SaveTrainerText(c echo.Context) error {
	tr := c.QueryParam("tr")
	if tr == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tr param not set")
	}

	bdy, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer c.Request().Body.Close()

	ok, err := h.catalog.SaveTrainerNotes(c.Request().Context(), normalize.Name(tr), string(bdy))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "trainer not found")
	}
	return c.NoContent(http.StatusOK)
}
