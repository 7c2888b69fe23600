package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/db"
	"github.com/padraicbc/mikebet/ledger"
	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/settlement"
)

type placeRequest struct {
	RaceID int64            `json:"raceID"`
	Type   models.WagerType `json:"wagerType"`
	Legs   [][]string       `json:"legs"`
	Stake  decimal.Decimal  `json:"stake"`
}

// PlaceWager places a bet for the caller and debits the stake.
func (h *Handler) PlaceWager(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req placeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RaceID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "raceID is required")
	}

	w := &models.Wager{
		UserID: uid,
		RaceID: req.RaceID,
		Type:   models.WagerType(strings.ToUpper(strings.TrimSpace(string(req.Type)))),
		Legs:   req.Legs,
		Stake:  req.Stake.Round(2),
	}
	if err := settlement.Validate(w); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err = h.wagers.Place(c.Request().Context(), h.effector, w)
	switch {
	case err == nil:
	case errors.Is(err, db.ErrRaceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrRaceClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrUnknownRunner), errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrInvalidAmount):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("place wager", zap.Int64("user_id", uid), zap.Int64("race_id", req.RaceID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "could not place wager")
	}

	h.log.Info("wager placed",
		zap.Int64("wager_id", w.WagerID),
		zap.Int64("user_id", uid),
		zap.Int64("race_id", w.RaceID),
		zap.String("type", string(w.Type)),
		zap.String("stake", w.Stake.StringFixed(2)),
	)
	return c.JSON(http.StatusCreated, w)
}

// Wagers lists the caller's wagers, newest first.
func (h *Handler) Wagers(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	wagers, err := h.wagers.ForUser(c.Request().Context(), uid, pageSize(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if wagers == nil {
		wagers = []models.Wager{}
	}
	return c.JSON(http.StatusOK, wagers)
}
