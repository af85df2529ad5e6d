package handlers

import (
	"errors"
	"net/http"

	"spectrum_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

type signInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignRequest documents the auth payload for Swagger.
type SignRequest struct {
	Username string `json:"username" example:"operator"`
	Password string `json:"password" example:"secret"`
}

// @Summary      Register operator account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  SignRequest  true  "Credentials"
// @Success      200   {object}  map[string]int
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /auth/sign-up [post]
func (h *Handler) signUp(c *gin.Context) {
	var in signInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody + err.Error()})
		return
	}

	id, err := h.services.Authorization.SignUp(in.Username, in.Password)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to create user", "sign_up_failed", err, "username", in.Username)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// @Summary      Obtain access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  SignRequest  true  "Credentials"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/sign-in [post]
func (h *Handler) signIn(c *gin.Context) {
	var in signInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody + err.Error()})
		return
	}

	token, err := h.services.Authorization.GenerateToken(in.Username, in.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) || errors.Is(err, service.ErrInvalidPassword) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to sign in", "sign_in_failed", err, "username", in.Username)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
