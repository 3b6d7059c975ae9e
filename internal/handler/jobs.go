package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sumire/autopost/internal/domain"
	"github.com/sumire/autopost/internal/service"
)

// JobHandler serves the generic job endpoints.
type JobHandler struct {
	jobs *service.JobService
}

func NewJobHandler(jobs *service.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

func (h *JobHandler) Create(c echo.Context) error {
	var req service.CreateJobInput
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	job, err := h.jobs.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, job)
}

func (h *JobHandler) List(c echo.Context) error {
	f, err := listFilter(c)
	if err != nil {
		return err
	}
	jobs, err := h.jobs.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	return JSONList(c, http.StatusOK, jobs, ListMeta{Count: len(jobs), Limit: f.EffectiveLimit()})
}

func (h *JobHandler) Get(c echo.Context) error {
	job, err := h.jobs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, job)
}

func (h *JobHandler) Logs(c echo.Context) error {
	entries, err := h.jobs.Logs(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	return JSON(c, http.StatusOK, entries)
}

// Retry resets a failed job and returns it in its pending state.
func (h *JobHandler) Retry(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := h.jobs.Retry(ctx, id); err != nil {
		return err
	}
	job, err := h.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, job)
}

func (h *JobHandler) Delete(c echo.Context) error {
	if err := h.jobs.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func listFilter(c echo.Context) (domain.ListFilter, error) {
	f := domain.ListFilter{Status: domain.JobStatus(c.QueryParam("status"))}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, &domain.ValidationError{Field: "limit", Message: "must be a positive integer"}
		}
		f.Limit = n
	}
	return f, nil
}
