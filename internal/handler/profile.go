package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/service"
)

// ProfileHandler serves public profiles and portfolios.
type ProfileHandler struct {
	Profiles *repository.ProfileRepo
	Reviews  *repository.ReviewRepo
	Media    *repository.MediaRepo
	MediaSvc *service.MediaService
}

// Get returns a public profile with its rating summary.  Suspended users
// are only visible to admins.
func (h *ProfileHandler) Get(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	p, err := h.Profiles.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if !p.IsActive && middleware.Role(c) != model.RoleAdmin {
		return fail(c, repository.ErrNotFound)
	}
	sum, err := h.Reviews.Summary(ctx, model.SubjectProfile, id)
	if err != nil {
		return fail(c, err)
	}
	p.Rating = &sum
	if middleware.UserID(c) != id && middleware.Role(c) != model.RoleAdmin {
		p.Phone = nil
	}
	return c.JSON(http.StatusOK, p)
}

// List pages through bookable artists and providers.
func (h *ProfileHandler) List(c echo.Context) error {
	role := strings.ToUpper(strings.TrimSpace(c.QueryParam("role")))
	if role != "" && !model.IsBookable(role) {
		return badRequest(c, "role must be ARTIST or PROVIDER")
	}
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Profiles.ListBookable(ctx, role, c.QueryParam("q"), pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

// UpdateMe applies a partial profile update.
func (h *ProfileHandler) UpdateMe(c echo.Context) error {
	var patch model.ProfilePatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, "invalid body")
	}
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" || len(name) > 100 {
			return badRequest(c, "display_name must be 1..100 characters")
		}
	}
	if patch.AvatarURL != nil && strings.TrimSpace(*patch.AvatarURL) != "" {
		u, err := url.Parse(strings.TrimSpace(*patch.AvatarURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return badRequest(c, "avatar_url must be an absolute http(s) URL")
		}
	}
	if patch.Bio != nil && len(*patch.Bio) > 2000 {
		return badRequest(c, "bio is too long")
	}

	uid := middleware.UserID(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	if err := h.Profiles.Update(ctx, uid, patch); err != nil {
		return fail(c, err)
	}
	p, err := h.Profiles.Get(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// ----- media -----

type mediaReq struct {
	Kind    string `json:"kind"`
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

// AddMedia attaches a portfolio item to the caller's profile.
func (h *ProfileHandler) AddMedia(c echo.Context) error {
	var req mediaReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	m, err := h.MediaSvc.Add(ctx, middleware.UserID(c), middleware.Role(c),
		model.Media{Kind: req.Kind, URL: req.URL, Caption: req.Caption})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// MyMedia lists the caller's media including hidden items.
func (h *ProfileHandler) MyMedia(c echo.Context) error {
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, err := h.Media.ListByOwner(ctx, middleware.UserID(c), true)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ProfileMedia lists the visible media of a profile.
func (h *ProfileHandler) ProfileMedia(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, err := h.Media.ListByOwner(ctx, id, false)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// DeleteMedia removes one of the caller's media items.
func (h *ProfileHandler) DeleteMedia(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	if err := h.Media.Delete(ctx, id, middleware.UserID(c)); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
