package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/mikebet/models"
)

const (
	defaultPage = 50
	maxPage     = 200
)

func pageSize(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 {
		return defaultPage
	}
	return min(n, maxPage)
}

// Wallet returns the caller's wallet.
func (h *Handler) Wallet(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	wallet, err := h.wallets.ForUser(c.Request().Context(), uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if wallet == nil {
		return echo.NewHTTPError(http.StatusNotFound, "wallet not found")
	}
	return c.JSON(http.StatusOK, wallet)
}

// Transactions pages through the caller's ledger history, newest first.
// ?before is an exclusive transaction id cursor.
func (h *Handler) Transactions(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var before int64
	if s := c.QueryParam("before"); s != "" {
		before, err = strconv.ParseInt(s, 10, 64)
		if err != nil || before <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "before must be a positive integer")
		}
	}

	ctx := c.Request().Context()
	wallet, err := h.wallets.ForUser(ctx, uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if wallet == nil {
		return echo.NewHTTPError(http.StatusNotFound, "wallet not found")
	}
	txs, err := h.wallets.Transactions(ctx, wallet.WalletID, before, pageSize(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	return c.JSON(http.StatusOK, txs)
}
