package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/normalize"
)

func dateParam(c echo.Context, required bool) (string, error) {
	date := strings.TrimSpace(c.QueryParam("date"))
	if date == "" {
		if required {
			return "", echo.NewHTTPError(http.StatusBadRequest, "date param not set")
		}
		return "", nil
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return date, nil
}

// Races lists every race on a date.
func (h *Handler) Races(c echo.Context) error {
	date, err := dateParam(c, true)
	if err != nil {
		return err
	}
	races, err := h.catalog.RacesOn(c.Request().Context(), date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if races == nil {
		races = []models.Race{}
	}
	return c.JSON(http.StatusOK, races)
}

// Roster returns the reconciled field of one race.
func (h *Handler) Roster(c echo.Context) error {
	track := normalize.Name(c.QueryParam("track"))
	if track == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "track param not set")
	}
	date, err := dateParam(c, true)
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(c.QueryParam("number"))
	if err != nil || number <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "number must be a positive integer")
	}

	roster, err := h.catalog.Roster(c.Request().Context(), track, date, number)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if roster == nil {
		return echo.NewHTTPError(http.StatusNotFound, "race not found")
	}
	return c.JSON(http.StatusOK, roster)
}

// Tracks returns all tracks, or those racing on ?date.
func (h *Handler) Tracks(c echo.Context) error {
	date, err := dateParam(c, false)
	if err != nil {
		return err
	}
	tracks, err := h.catalog.Tracks(c.Request().Context(), date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if tracks == nil {
		tracks = []models.Track{}
	}
	return c.JSON(http.StatusOK, tracks)
}

type trackUpdate struct {
	Track    string `json:"track"`
	Code     string `json:"code"`
	Timezone string `json:"timezone"`
}

// UpdateTrack sets a track's code and timezone.
func (h *Handler) UpdateTrack(c echo.Context) error {
	var req trackUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	key := normalize.Name(req.Track)
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "track is required")
	}
	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown timezone")
	}

	ok, err := h.catalog.UpdateTrack(c.Request().Context(), key, strings.ToUpper(strings.TrimSpace(req.Code)), tz)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "track not found")
	}
	return c.NoContent(http.StatusOK)
}

// Dates returns distinct race dates, newest first, optionally for ?track.
func (h *Handler) Dates(c echo.Context) error {
	dates, err := h.catalog.Dates(c.Request().Context(), normalize.Name(c.QueryParam("track")))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if dates == nil {
		dates = []string{}
	}
	return c.JSON(http.StatusOK, dates)
}
