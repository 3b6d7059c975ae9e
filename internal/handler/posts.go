package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/autopost/internal/domain"
	"github.com/sumire/autopost/internal/importer"
	"github.com/sumire/autopost/internal/service"
)

// maxImportSize bounds uploaded workbooks.
const maxImportSize = 10 << 20

// Importer creates post jobs from an uploaded workbook.
type Importer interface {
	Import(ctx context.Context, r io.Reader) (importer.Report, error)
}

// PostHandler serves the forum post job endpoints.
type PostHandler struct {
	posts    *service.PostService
	importer Importer
}

func NewPostHandler(posts *service.PostService, imp Importer) *PostHandler {
	return &PostHandler{posts: posts, importer: imp}
}

func (h *PostHandler) Create(c echo.Context) error {
	var req service.CreatePostInput
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	post, err := h.posts.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, post)
}

func (h *PostHandler) List(c echo.Context) error {
	f, err := listFilter(c)
	if err != nil {
		return err
	}
	posts, err := h.posts.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []domain.PostJob{}
	}
	return JSONList(c, http.StatusOK, posts, ListMeta{Count: len(posts), Limit: f.EffectiveLimit()})
}

func (h *PostHandler) Get(c echo.Context) error {
	post, err := h.posts.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, post)
}

func (h *PostHandler) Logs(c echo.Context) error {
	entries, err := h.posts.Logs(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	return JSON(c, http.StatusOK, entries)
}

func (h *PostHandler) Retry(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := h.posts.Retry(ctx, id); err != nil {
		return err
	}
	post, err := h.posts.Get(ctx, id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, post)
}

func (h *PostHandler) Delete(c echo.Context) error {
	if err := h.posts.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Import accepts a multipart "file" field holding an XLSX workbook.
func (h *PostHandler) Import(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return &domain.ValidationError{Field: "file", Message: "an XLSX upload is required"}
	}
	if fh.Size > maxImportSize {
		return &domain.ValidationError{Field: "file", Message: "workbook is too large"}
	}
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	report, err := h.importer.Import(c.Request().Context(), src)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, report)
}
