package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/internal/service/ratelimit"
	"SentinelX/internal/usecase"
	xhttp "SentinelX/pkg/http"
	xlogger "SentinelX/pkg/logger"
)

// HealthCheck checks one dependency for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ViewsHandler serves the view API.
type ViewsHandler struct {
	logger *xlogger.Logger
	views  *usecase.ViewManager
	rl     *ratelimit.Limiter
	checks []HealthCheck
}

func NewViewsHandler(logger *xlogger.Logger, views *usecase.ViewManager, rl *ratelimit.Limiter, checks ...HealthCheck) *ViewsHandler {
	return &ViewsHandler{
		logger: logger.With(xlogger.String("component", "views_api")),
		views:  views,
		rl:     rl,
		checks: checks,
	}
}

func (h *ViewsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/views")
	g.GET("", h.List)
	g.POST("/:view", h.Mount)
	g.DELETE("/:view", h.Unmount)
	g.GET("/:view", h.Show)
	g.GET("/:view/slots/:kind", h.Slot)
	g.POST("/:view/actions/:action", h.Action)
}

// Health reports the mounted view count and the state of every dependency.
func (h *ViewsHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	healthy := true
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			deps[hc.Name] = err.Error()
			healthy = false
			continue
		}
		deps[hc.Name] = "ok"
	}

	body := map[string]any{
		"status":       "ok",
		"mounted":      len(h.views.List()),
		"dependencies": deps,
	}
	if !healthy {
		body["status"] = "degraded"
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, body)
	}
	return xhttp.SuccessResponse(c, body)
}

func (h *ViewsHandler) List(c echo.Context) error {
	list := h.views.List()
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *ViewsHandler) Mount(c echo.Context) error {
	req := &models.ViewPath{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	v, created, err := h.views.Mount(req.View)
	if err != nil {
		return xhttp.AppErrorResponse(c, viewError(err))
	}
	info := viewInfo(v)
	if created {
		h.logger.Info("view mounted", xlogger.String("view", req.View))
		return xhttp.CreatedResponse(c, info)
	}
	return xhttp.SuccessResponse(c, info)
}

func (h *ViewsHandler) Unmount(c echo.Context) error {
	view := c.Param("view")
	if err := h.views.Unmount(c.Request().Context(), view); err != nil {
		if errors.Is(err, usecase.ErrViewNotMounted) || errors.Is(err, usecase.ErrViewNotFound) {
			return xhttp.AppErrorResponse(c, viewError(err))
		}
		h.logger.Error("unmount failed", xlogger.String("view", view), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("unmount failed").WithError(err))
	}
	h.rl.Forget(view + ":")
	h.logger.Info("view unmounted", xlogger.String("view", view))
	return xhttp.NoContentResponse(c)
}

// ViewDetail is the full state of a mounted view.
type ViewDetail struct {
	usecase.ViewInfo
	Slots map[models.Kind]models.Slot `json:"slots"`
	Stats usecase.DisplayStats        `json:"stats"`
}

func (h *ViewsHandler) Show(c echo.Context) error {
	view := c.Param("view")
	v, err := h.views.Get(view)
	if err != nil {
		return xhttp.AppErrorResponse(c, viewError(err))
	}
	stats, err := h.views.Stats(c.Request().Context(), view)
	if err != nil {
		return xhttp.AppErrorResponse(c, viewError(err))
	}
	return xhttp.SuccessResponse(c, ViewDetail{
		ViewInfo: viewInfo(v),
		Slots:    v.State().Slots,
		Stats:    stats,
	})
}

func (h *ViewsHandler) Slot(c echo.Context) error {
	req := &models.SlotPath{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	kind, ok := models.ParseKind(req.Kind)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown slot %q", req.Kind))
	}

	slot, err := h.views.Slot(c.Request().Context(), req.View, kind)
	if err != nil {
		return xhttp.AppErrorResponse(c, viewError(err))
	}
	return xhttp.SuccessResponse(c, slot)
}

// Action schedules a user action and answers before it completes.
func (h *ViewsHandler) Action(c echo.Context) error {
	req := &models.ActionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	action, ok := usecase.ParseAction(req.Action)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown action %q", req.Action))
	}

	if !h.rl.Allow(xhttp.ClientKey(c, req.View+":"+req.Action)) {
		h.logger.Warn("action rate limited",
			xlogger.String("view", req.View),
			xlogger.String("action", req.Action),
			xlogger.String("remote", c.RealIP()),
		)
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many requests"))
	}

	v, err := h.views.Get(req.View)
	if err != nil {
		return xhttp.AppErrorResponse(c, viewError(err))
	}
	tick, kinds, err := v.Submit(action, repository.Params(req.Params()))
	if err != nil {
		return xhttp.AppErrorResponse(c, viewError(err))
	}

	slots := make([]models.Slot, 0, len(kinds))
	for _, k := range kinds {
		slots = append(slots, v.Read(k))
	}
	return xhttp.AcceptedResponse(c, models.ActionAccepted{
		View:   req.View,
		Action: req.Action,
		Tick:   tick,
		Slots:  slots,
	})
}

func viewInfo(v *usecase.View) usecase.ViewInfo {
	return usecase.ViewInfo{
		Name:      v.Name(),
		Interval:  v.Spec().Interval,
		MountedAt: v.MountedAt(),
		Ticks:     v.Ticks(),
		Actions:   v.Spec().Actions,
	}
}

// viewError maps usecase errors onto API errors.
func viewError(err error) error {
	switch {
	case errors.Is(err, usecase.ErrViewNotFound):
		return xhttp.NotFoundError("unknown view").WithError(err)
	case errors.Is(err, usecase.ErrViewNotMounted), errors.Is(err, usecase.ErrViewUnmounted):
		return xhttp.NotFoundError("view is not mounted").WithError(err)
	case errors.Is(err, usecase.ErrInFlight):
		return xhttp.ConflictError("ERR_IN_FLIGHT", "the same request is still running").WithError(err)
	case errors.Is(err, usecase.ErrActionNotAllowed):
		return xhttp.NewAppError("ERR_ACTION_NOT_ALLOWED", "action", "action is not available on this view", http.StatusBadRequest).WithError(err)
	case errors.Is(err, usecase.ErrInvalidActionArgs):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("request failed").WithError(err)
	}
}
