package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"paper_perps/models"
	"paper_perps/pkg/database"
	"paper_perps/pkg/middleware"
)

const maxSearchResults = 20

type UserController struct {
	db *database.Database
}

func NewUserController(db *database.Database) *UserController {
	return &UserController{db: db}
}

// SearchUsers 按名称或邮箱前缀搜索用户（转账收款人选择用），不含当前用户
func (u *UserController) SearchUsers(ctx *gin.Context) {
	query := strings.TrimSpace(ctx.Query("q"))
	if query == "" {
		ctx.JSON(http.StatusOK, gin.H{
			"ok":    true,
			"users": []models.PublicUser{},
		})
		return
	}

	currentID := middleware.GetCurrentUserID(ctx)

	users, err := u.db.SearchUsers(query, maxSearchResults+1)
	if err != nil {
		logrus.Errorf("搜索用户失败: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"ok":      false,
			"message": "Unable to process request.",
			"code":    "STORAGE_ERROR",
		})
		return
	}

	results := make([]models.PublicUser, 0, len(users))
	for _, user := range users {
		if user.ID == currentID {
			continue
		}
		results = append(results, models.PublicUser{ID: user.ID, Name: user.Name})
		if len(results) >= maxSearchResults {
			break
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"users": results,
	})
}
