package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"paper_perps/core"
	"paper_perps/pkg/middleware"
)

type StateController struct {
	settlement *core.Settlement
}

func NewStateController(settlement *core.Settlement) *StateController {
	return &StateController{settlement: settlement}
}

// ActionRequest 账户操作请求结构，Action决定哪些字段生效
type ActionRequest struct {
	Action      string   `json:"action" binding:"required"`
	Currency    string   `json:"currency"`
	Side        string   `json:"side"`
	OrderType   string   `json:"orderType"`
	Leverage    int      `json:"leverage"`
	Amount      float64  `json:"amount"`
	ClientPrice float64  `json:"clientPrice"`
	StopLoss    *float64 `json:"stopLoss"`
	TakeProfit  *float64 `json:"takeProfit"`
	PositionID  string   `json:"positionId"`
	RecipientID int64    `json:"recipientId"`
	Note        string   `json:"note"`
	Reason      string   `json:"reason"`
}

// GetState 查询当前用户的钱包与持仓
func (s *StateController) GetState(ctx *gin.Context) {
	userID := middleware.GetCurrentUserID(ctx)

	record, repaired, err := s.settlement.UserState(ctx.Request.Context(), userID)
	if err != nil {
		s.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"wallet":    record.Wallet,
		"positions": record.Positions,
		"repaired":  repaired,
	})
}

// Apply 执行账户操作（开仓/平仓/全平/余额调整/转账）
func (s *StateController) Apply(ctx *gin.Context) {
	userID := middleware.GetCurrentUserID(ctx)

	var req ActionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		logrus.Warnf("操作参数错误: %v", err)
		ctx.JSON(http.StatusBadRequest, gin.H{
			"ok":      false,
			"message": "Action is required.",
			"code":    "INVALID_PARAMS",
		})
		return
	}

	var result *core.ActionResult
	var err error
	// 结算操作一旦开始就跑到底，客户端断开不中止写入
	rctx := context.Background()

	switch req.Action {
	case "open":
		result, err = s.settlement.Open(rctx, userID, &core.OpenRequest{
			Currency:    req.Currency,
			Side:        req.Side,
			OrderType:   req.OrderType,
			Leverage:    req.Leverage,
			Amount:      req.Amount,
			ClientPrice: req.ClientPrice,
			StopLoss:    req.StopLoss,
			TakeProfit:  req.TakeProfit,
		})
	case "close":
		result, err = s.settlement.Close(rctx, userID, req.PositionID, req.ClientPrice)
	case "closeAll":
		result, err = s.settlement.CloseAll(rctx, userID, req.Currency, req.ClientPrice)
	case "walletAdjust":
		result, err = s.settlement.WalletAdjust(rctx, userID, req.Amount, req.Reason)
	case "transfer":
		result, err = s.settlement.Transfer(rctx, userID, req.RecipientID, req.Amount, req.Note)
	default:
		ctx.JSON(http.StatusBadRequest, gin.H{
			"ok":      false,
			"message": "Unknown action.",
			"code":    "INVALID_PARAMS",
		})
		return
	}

	if err != nil {
		s.respondError(ctx, err)
		return
	}

	resp := gin.H{
		"ok":        true,
		"message":   result.Message,
		"wallet":    result.Wallet,
		"positions": result.Positions,
	}
	if result.Position != nil {
		resp["position"] = result.Position
	}
	if req.Action == "close" || req.Action == "closeAll" {
		resp["closedCount"] = result.ClosedCount
		resp["closedPnl"] = result.ClosedPnl
	}

	ctx.JSON(http.StatusOK, resp)
}

func (s *StateController) respondError(ctx *gin.Context, err error) {
	if opErr, ok := core.AsOpError(err); ok {
		if opErr.Code == core.CodeStorageError {
			logrus.Errorf("存储操作失败: %s", opErr.Message)
			ctx.JSON(opErr.Status, gin.H{
				"ok":      false,
				"message": "Unable to process request.",
				"code":    opErr.Code,
			})
			return
		}
		ctx.JSON(opErr.Status, gin.H{
			"ok":      false,
			"message": opErr.Message,
			"code":    opErr.Code,
		})
		return
	}

	logrus.Errorf("未知错误: %v", err)
	ctx.JSON(http.StatusInternalServerError, gin.H{
		"ok":      false,
		"message": "Unable to process request.",
		"code":    "STORAGE_ERROR",
	})
}
