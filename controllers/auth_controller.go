package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"paper_perps/models"
	"paper_perps/pkg/auth"
	"paper_perps/pkg/database"
	"paper_perps/pkg/middleware"
	"paper_perps/pkg/redis"
)

type AuthController struct {
	db    *database.Database
	store *redis.Client
}

func NewAuthController(db *database.Database, store *redis.Client) *AuthController {
	return &AuthController{db: db, store: store}
}

// RegisterRequest 注册请求结构
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest 登录请求结构
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 用户注册
func (a *AuthController) Register(ctx *gin.Context) {
	var req RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		logrus.Warnf("注册参数错误: %v", err)
		ctx.JSON(http.StatusBadRequest, gin.H{
			"ok":      false,
			"message": "Name, email and password are required.",
			"code":    "INVALID_PARAMS",
		})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || !strings.Contains(req.Email, "@") {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"ok":      false,
			"message": "A valid name and email are required.",
			"code":    "INVALID_PARAMS",
		})
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"ok":      false,
			"message": "Password must be at least 6 characters.",
			"code":    "INVALID_PARAMS",
		})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logrus.Errorf("密码哈希失败: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"ok":      false,
			"message": "Unable to process request.",
			"code":    "STORAGE_ERROR",
		})
		return
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := a.db.CreateUser(user); err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			ctx.JSON(http.StatusConflict, gin.H{
				"ok":      false,
				"message": "Email is already registered.",
				"code":    "DUPLICATE_EMAIL",
			})
			return
		}
		logrus.Errorf("创建用户失败: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"ok":      false,
			"message": "Unable to process request.",
			"code":    "STORAGE_ERROR",
		})
		return
	}

	// 初始化默认账本
	if err := a.store.EnsureLedger(ctx.Request.Context(), user.ID); err != nil {
		logrus.Errorf("初始化账本失败 user=%d: %v", user.ID, err)
	}

	a.issueSession(ctx, user)
	logrus.Infof("用户注册成功: %s (%d)", user.Email, user.ID)

	ctx.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"user": models.PublicUser{ID: user.ID, Name: user.Name},
	})
}

// Login 用户登录
func (a *AuthController) Login(ctx *gin.Context) {
	var req LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"ok":      false,
			"message": "Email and password are required.",
			"code":    "INVALID_PARAMS",
		})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := a.db.GetUserByEmail(email)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		logrus.Warnf("登录失败: %s", email)
		ctx.JSON(http.StatusUnauthorized, gin.H{
			"ok":      false,
			"message": "Invalid email or password.",
			"code":    "INVALID_CREDENTIALS",
		})
		return
	}

	a.issueSession(ctx, user)
	logrus.Infof("用户登录成功: %s (%d)", user.Email, user.ID)

	ctx.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"user": models.PublicUser{ID: user.ID, Name: user.Name},
	})
}

// Logout 退出登录，清除会话cookie
func (a *AuthController) Logout(ctx *gin.Context) {
	ctx.SetCookie(auth.SessionCookieName, "", -1, "/", "", false, true)
	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me 返回当前登录用户信息
func (a *AuthController) Me(ctx *gin.Context) {
	userID := middleware.GetCurrentUserID(ctx)
	user, err := a.db.GetUserByID(userID)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{
			"ok":      false,
			"message": "User not found.",
			"code":    "USER_NOT_FOUND",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"user": models.PublicUser{ID: user.ID, Name: user.Name},
	})
}

func (a *AuthController) issueSession(ctx *gin.Context, user *models.User) {
	token, err := auth.GenerateToken(user.ID, user.Name)
	if err != nil {
		logrus.Errorf("生成token失败: %v", err)
		return
	}
	ctx.SetCookie(auth.SessionCookieName, token, int(auth.TokenTTL.Seconds()), "/", "", false, true)
}
