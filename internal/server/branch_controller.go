package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	pkgmdw "github.com/nguyentranbao-ct/mindmap-chat/internal/server/middleware"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/usecase"
)

type BranchController struct {
	branches    usecase.BranchUsecase
	waitTimeout time.Duration
}

func NewBranchController(branches usecase.BranchUsecase, waitTimeout time.Duration) *BranchController {
	return &BranchController{
		branches:    branches,
		waitTimeout: waitTimeout,
	}
}

type createBranchRequest struct {
	ChatID models.ObjectID `param:"chat_id" json:"-" validate:"required,objectid"`
	models.BranchRequest
}

type runRequest struct {
	RunID string `param:"run_id" validate:"required"`
}

type cancelRunRequest struct {
	RunID string `param:"run_id" validate:"required"`
	Model string `json:"model"`
}

func (ctl *BranchController) CreateBranch(c echo.Context, req createBranchRequest) (any, error) {
	ctx := c.Request().Context()
	branch := req.BranchRequest
	branch.ChatID = req.ChatID

	run, err := ctl.branches.Start(ctx, pkgmdw.CurrentUser(c), branch)
	if err != nil {
		return nil, err
	}
	// ?wait=true holds the response until every model finished
	if wait, _ := strconv.ParseBool(c.QueryParam("wait")); !wait {
		return &pkgmdw.Response{Status: http.StatusAccepted, Success: true, Data: run}, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, ctl.waitTimeout)
	defer cancel()
	done, err := ctl.branches.Wait(waitCtx, run.ID)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// still running; the caller polls the run
		return &pkgmdw.Response{Status: http.StatusAccepted, Success: true, Data: done}, nil
	}
	if err != nil {
		return nil, err
	}
	return &pkgmdw.Response{Status: http.StatusCreated, Success: true, Data: done}, nil
}

func (ctl *BranchController) GetRun(c echo.Context, req runRequest) (any, error) {
	return ctl.branches.GetRun(req.RunID)
}

func (ctl *BranchController) CancelRun(c echo.Context, req cancelRunRequest) error {
	return ctl.branches.CancelRun(req.RunID, req.Model)
}
