package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/config"
	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

const minPasswordLen = 8

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Currency string
	Users    *repository.UserRepo
	Profiles *repository.ProfileRepo
	Tokens   *repository.TokenRepo
}

func NewAuthHandler(cfg config.Config, currency string, u *repository.UserRepo, p *repository.ProfileRepo, t *repository.TokenRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Currency: currency, Users: u, Profiles: p, Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// selfRole maps a requested role onto one a user may pick at sign-up.
func selfRole(r string) string {
	switch r = strings.ToUpper(strings.TrimSpace(r)); r {
	case model.RoleOrganizer, model.RoleArtist, model.RoleProvider, model.RoleCustomer:
		return r
	}
	return model.RoleCustomer
}

// issue creates and stores a fresh access/refresh pair.
func (h *AuthHandler) issue(c echo.Context, status int, u userPart) error {
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, err)
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return fail(c, err)
	}
	return c.JSON(status, authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	})
}

// Register creates the user with a profile and an empty wallet and returns
// tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") || req.Password == "" {
		return badRequest(c, "email/password required")
	}
	if len(req.Password) < minPasswordLen {
		return badRequest(c, "password must be at least 8 characters")
	}
	role := selfRole(req.Role)
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = req.Email[:strings.Index(req.Email, "@")]
	}

	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	uid, err := h.Users.Register(ctx, req.Email, req.Password, role, name, h.Currency, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return fail(c, err)
	}
	return h.issue(c, http.StatusCreated, userPart{ID: uid, Email: req.Email, Role: role})
}

// Login verifies credentials and returns a new pair.  Suspended accounts
// are refused with 403.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email/password required")
	}

	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return fail(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account suspended"})
	}
	return h.issue(c, http.StatusOK, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
}

// Refresh rotates a refresh token: the old one is revoked and a new pair
// is issued.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return fail(c, err)
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return fail(c, err)
	}
	return h.issue(c, http.StatusOK, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
}

// RefreshAccess returns a new access token without rotating the refresh
// token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return fail(c, err)
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, userID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Logout revokes one refresh token when it is given in the body, or every
// session of the bearer otherwise.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)
	uid := middleware.UserID(c)

	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	switch {
	case raw != "":
		hash := utils.HashRefreshRaw(raw)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return fail(c, err)
		}
	case uid != 0:
		if err := h.Tokens.RevokeAllForUser(ctx, h.Tokens.DB, uid); err != nil {
			return fail(c, err)
		}
	default:
		return badRequest(c, "provide Authorization header or refresh_token")
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's account and profile.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	uid := middleware.UserID(c)
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	p, err := h.Profiles.Get(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u, "profile": p})
}
