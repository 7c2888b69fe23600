package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/feed"
	"github.com/padraicbc/mikebet/reconcile"
)

const maxImportBody = 16 << 20

type issue struct {
	Index int               `json:"index"`
	Key   reconcile.RaceKey `json:"key"`
	Error string            `json:"error"`
}

func issues(in []feed.Issue) []issue {
	out := make([]issue, 0, len(in))
	for _, i := range in {
		out = append(out, issue{Index: i.Index, Key: i.Key, Error: i.Err.Error()})
	}
	return out
}

type importResult struct {
	Reports  []*reconcile.Report `json:"reports"`
	Rejected []issue             `json:"rejected"`
	Dropped  []issue             `json:"dropped"`
	Failed   []issue             `json:"failed"`
}

// Reconcile accepts a feed document and reconciles every valid race in it.
// Races are applied in document order; one failing race does not stop the
// rest.
func (h *Handler) Reconcile(c echo.Context) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxImportBody)
	defer body.Close()

	batch, err := feed.DecodeRaces(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	res := importResult{
		Reports:  []*reconcile.Report{},
		Rejected: issues(batch.Rejected),
		Dropped:  issues(batch.Dropped),
		Failed:   []issue{},
	}
	for i, imp := range batch.Races {
		report, err := h.reconciler.ReconcileRace(ctx, imp)
		if err != nil {
			h.log.Warn("reconcile race failed", zap.Stringer("race", imp.Key), zap.Error(err))
			res.Failed = append(res.Failed, issue{Index: i, Key: imp.Key, Error: err.Error()})
			continue
		}
		res.Reports = append(res.Reports, report)
	}

	status := http.StatusOK
	if len(res.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, res)
}

// Settle runs one settlement pass now.
func (h *Handler) Settle(c echo.Context) error {
	sum, err := h.settler.SettlePending(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

// Reopen takes a cancelled race back to upcoming.
func (h *Handler) Reopen(c echo.Context) error {
	var key reconcile.RaceKey
	if err := c.Bind(&key); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err := h.reconciler.Reopen(c.Request().Context(), key)
	switch {
	case err == nil:
		return c.NoContent(http.StatusOK)
	case errors.Is(err, reconcile.ErrMalformedKey):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, reconcile.ErrRaceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, reconcile.ErrNotCancelled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// Collapse merges duplicate entries in one race.
func (h *Handler) Collapse(c echo.Context) error {
	raceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || raceID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid race id")
	}
	report, err := h.reconciler.CollapseDuplicates(c.Request().Context(), raceID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
