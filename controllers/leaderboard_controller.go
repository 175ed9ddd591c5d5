package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"paper_perps/core"
)

type LeaderboardController struct {
	settlement *core.Settlement
}

func NewLeaderboardController(settlement *core.Settlement) *LeaderboardController {
	return &LeaderboardController{settlement: settlement}
}

// GetLeaderboard 按USD余额排名的用户列表
func (l *LeaderboardController) GetLeaderboard(ctx *gin.Context) {
	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"ok":      false,
				"message": "Limit must be a positive integer.",
				"code":    "INVALID_PARAMS",
			})
			return
		}
		limit = parsed
	}

	entries, err := l.settlement.Leaderboard(ctx.Request.Context(), limit)
	if err != nil {
		logrus.Errorf("获取排行榜失败: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"ok":      false,
			"message": "Unable to process request.",
			"code":    "STORAGE_ERROR",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"leaderboard": entries,
	})
}
