package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sumire/autopost/internal/service"
)

// Services are the dependencies of the operator API.
type Services struct {
	Auth     *service.AuthService
	Jobs     *service.JobService
	Posts    *service.PostService
	Importer Importer

	// Queue is optional; when set /health reports the post queue.
	Queue QueueStatus
}

// QueueStatus exposes the serial post queue state.
type QueueStatus interface {
	Len() int
	Draining() bool
}

type healthResponse struct {
	Status    string       `json:"status"`
	PostQueue *queueHealth `json:"post_queue,omitempty"`
}

type queueHealth struct {
	Waiting int  `json:"waiting"`
	Running bool `json:"running"`
}

// NewRouter builds the echo instance with every route registered.
func NewRouter(s Services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewAppValidator()
	e.HTTPErrorHandler = HTTPErrorHandler

	e.Use(middleware.RequestID())
	e.Use(RequestLogger())
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		resp := healthResponse{Status: "ok"}
		if s.Queue != nil {
			resp.PostQueue = &queueHealth{Waiting: s.Queue.Len(), Running: s.Queue.Draining()}
		}
		return c.JSON(http.StatusOK, resp)
	})

	authHandler := NewAuthHandler(s.Auth)
	jobHandler := NewJobHandler(s.Jobs)
	postHandler := NewPostHandler(s.Posts, s.Importer)

	api := e.Group("/api/v1")
	api.POST("/auth/refresh", authHandler.Refresh)

	protected := api.Group("", JWTAuth(s.Auth))
	protected.GET("/auth/me", authHandler.Me)

	jobs := protected.Group("/jobs")
	jobs.POST("", jobHandler.Create)
	jobs.GET("", jobHandler.List)
	jobs.GET("/:id", jobHandler.Get)
	jobs.GET("/:id/logs", jobHandler.Logs)
	jobs.POST("/:id/retry", jobHandler.Retry)
	jobs.DELETE("/:id", jobHandler.Delete)

	posts := protected.Group("/posts")
	posts.POST("", postHandler.Create)
	posts.POST("/import", postHandler.Import)
	posts.GET("", postHandler.List)
	posts.GET("/:id", postHandler.Get)
	posts.GET("/:id/logs", postHandler.Logs)
	posts.POST("/:id/retry", postHandler.Retry)
	posts.DELETE("/:id", postHandler.Delete)

	return e
}
