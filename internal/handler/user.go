package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/service"
)

// UserHandler handles HTTP requests for rider accounts.
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterUserRequest is the HTTP request body for registering a rider.
type RegisterUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegisterUserResponse is the HTTP response for registering a rider.
type RegisterUserResponse struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// RegisterUser handles POST /register-user
func (h *UserHandler) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, existed, err := h.userService.Register(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "user registered"
	code := http.StatusCreated
	if existed {
		message = "user already registered"
		code = http.StatusOK
	}

	respondJSON(c, code, RegisterUserResponse{
		UserID:  user.ID,
		Name:    user.Name,
		Email:   user.Email,
		Message: message,
	})
}
