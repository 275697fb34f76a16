package controllers

import (
	"errors"
	"strings"

	"thesisdefense_go/database"
	"thesisdefense_go/middleware"
	"thesisdefense_go/models"
	"thesisdefense_go/services"
	"thesisdefense_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuthController struct {
	panelists *services.PanelistService
}

func NewAuthController(panelists *services.PanelistService) *AuthController {
	return &AuthController{panelists: panelists}
}

// LoginRequest accepts a username or an email as the identifier.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is a panelist self-registration.
type RegisterRequest struct {
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Department string `json:"department" validate:"max=150"`
	Expertise  string `json:"expertise"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// Login authenticates a user and returns a JWT token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	ident := strings.ToLower(strings.TrimSpace(req.Username))
	var user models.User
	if err := database.DB.Where("username = ? OR email = ?", ident, ident).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = services.ErrInvalidLogin
		}
		return serviceError(c, err, "Login failed")
	}
	if err := utils.CheckPassword(req.Password, user.Password); err != nil {
		return serviceError(c, services.ErrInvalidLogin, "Login failed")
	}

	switch user.Status {
	case models.UserStatusPending:
		return serviceError(c, services.ErrAccountPending, "Login failed")
	case models.UserStatusInactive:
		return serviceError(c, services.ErrAccountInactive, "Login failed")
	}

	token, err := middleware.GenerateToken(&user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}

	c.Locals("user", &user)
	middleware.LogActivity(c, "LOGIN", "auth", user.ID, fiber.Map{"role": user.Role})

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
		"user":    utils.ToAccount(user),
	})
}

// Register creates a pending panelist account
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	user, err := ac.panelists.Register(c.UserContext(), services.RegisterInput{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Password:   req.Password,
		Department: req.Department,
		Expertise:  req.Expertise,
	})
	if err != nil {
		return serviceError(c, err, "Failed to register")
	}

	middleware.LogActivity(c, "REGISTER", "panelists", user.ID, fiber.Map{"email": user.Email})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Registration received. An administrator will review your account.",
		"panelist": utils.ToPanelistProfile(*user),
	})
}

// Logout revokes the current token
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	middleware.BlacklistToken(c.UserContext(), claims)
	middleware.LogActivity(c, "LOGOUT", "auth", claims.UserID, nil)
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// GetProfile returns the authenticated account
func (ac *AuthController) GetProfile(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	resp := fiber.Map{"user": utils.ToAccount(*user)}
	if user.Role == models.RolePanelist {
		resp["profile"] = utils.ToPanelistProfile(*user)
	}
	return c.JSON(resp)
}

// ChangePassword replaces the password after verifying the current one
func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	var req ChangePasswordRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	if err := utils.CheckPassword(req.CurrentPassword, user.Password); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Current password is incorrect"})
	}
	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to hash password"})
	}
	if err := database.DB.Model(user).Update("password", hash).Error; err != nil {
		return serviceError(c, err, "Failed to change password")
	}

	middleware.LogActivity(c, "CHANGE_PASSWORD", "auth", user.ID, nil)
	return c.JSON(fiber.Map{"message": "Password changed successfully"})
}
