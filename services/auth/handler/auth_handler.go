package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	auth "auction-backend/internal/authService"
	"auction-backend/internal/biddingerrors"
	model "auction-backend/internal/models"
	"auction-backend/services/bidding/helpers"
	"auction-backend/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -destination=mock_auth_service.go -package=handler auction-backend/services/auth/handler AuthServiceInterface

type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (model.User, error)
	RegisterAdmin(ctx context.Context, in auth.RegisterInput, code string) (model.User, error)
	Login(ctx context.Context, username, password string) (auth.Session, error)
	AdminLogin(ctx context.Context, username, password string) (auth.Session, error)
	GetProfile(ctx context.Context, userID string) (model.User, error)
	UpdateProfile(ctx context.Context, userID string, in auth.UpdateProfileInput) (model.User, error)
}

type AuthHandler struct {
	service AuthServiceInterface
}

func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

func toRegisterInput(req helpers.RegisterRequest) auth.RegisterInput {
	return auth.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
	}
}

// RegisterHandler handles POST /api/register
func (h *AuthHandler) RegisterHandler(c *gin.Context) {
	var req helpers.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RegisterHandler", err)
		return
	}

	user, err := h.service.Register(c.Request.Context(), toRegisterInput(req))
	if err != nil {
		helpers.RespondError(c, "RegisterHandler", err, map[string]any{"username": req.Username})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToUserResponse(user), "user registered successfully")
	helpers.LogSuccess("RegisterHandler", "user registered successfully", map[string]any{"user_id": user.UserID})
}

// RegisterAdminHandler handles POST /api/admin/register
func (h *AuthHandler) RegisterAdminHandler(c *gin.Context) {
	var req helpers.AdminRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RegisterAdminHandler", err)
		return
	}

	user, err := h.service.RegisterAdmin(c.Request.Context(), toRegisterInput(req.RegisterRequest), req.AdminCode)
	if err != nil {
		helpers.RespondError(c, "RegisterAdminHandler", err, map[string]any{"username": req.Username})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToUserResponse(user), "admin registered successfully")
	helpers.LogSuccess("RegisterAdminHandler", "admin registered successfully", map[string]any{"user_id": user.UserID})
}

// LoginHandler handles POST /api/login
func (h *AuthHandler) LoginHandler(c *gin.Context) {
	h.login(c, "LoginHandler", h.service.Login)
}

// AdminLoginHandler handles POST /api/admin/login
func (h *AuthHandler) AdminLoginHandler(c *gin.Context) {
	h.login(c, "AdminLoginHandler", h.service.AdminLogin)
}

func (h *AuthHandler) login(c *gin.Context, handlerName string, login func(context.Context, string, string) (auth.Session, error)) {
	var req helpers.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, handlerName, err)
		return
	}

	session, err := login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		helpers.RespondError(c, handlerName, err, map[string]any{"username": req.Username})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.LoginResponse{
		AccessToken: session.Token,
		ExpiresAt:   session.ExpiresAt.UTC().Format(time.RFC3339),
		User:        helpers.ToUserResponse(session.User),
	}, "login successful")
	helpers.LogSuccess(handlerName, "login successful", map[string]any{"user_id": session.User.UserID})
}

// GetProfileHandler handles GET /api/profile
func (h *AuthHandler) GetProfileHandler(c *gin.Context) {
	current, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondError(c, "GetProfileHandler", fmt.Errorf("%w - missing credentials", biddingerrors.ErrUnauthorized), nil)
		return
	}

	user, err := h.service.GetProfile(c.Request.Context(), current.UserID)
	if err != nil {
		helpers.RespondError(c, "GetProfileHandler", err, map[string]any{"user_id": current.UserID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToUserResponse(user), "profile retrieved successfully")
}

// UpdateProfileHandler handles PUT /api/profile
func (h *AuthHandler) UpdateProfileHandler(c *gin.Context) {
	current, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondError(c, "UpdateProfileHandler", fmt.Errorf("%w - missing credentials", biddingerrors.ErrUnauthorized), nil)
		return
	}

	var req helpers.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateProfileHandler", err)
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), current.UserID, auth.UpdateProfileInput{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		helpers.RespondError(c, "UpdateProfileHandler", err, map[string]any{"user_id": current.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToUserResponse(user), "profile updated successfully")
	helpers.LogSuccess("UpdateProfileHandler", "profile updated successfully", map[string]any{"user_id": user.UserID})
}
