package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"paper_perps/pkg/redis"
)

type PriceController struct {
	store      *redis.Client
	currencies []string
}

func NewPriceController(store *redis.Client, currencies []string) *PriceController {
	return &PriceController{store: store, currencies: currencies}
}

// TokenPrice 币种的最新标记价格
type TokenPrice struct {
	Currency  string  `json:"currency"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// GetCryptoTokens 返回所有跟踪币种的最新缓存价格
func (p *PriceController) GetCryptoTokens(ctx *gin.Context) {
	tokens := make([]TokenPrice, 0, len(p.currencies))

	for _, currency := range p.currencies {
		cached, err := p.store.GetMarkPrice(ctx.Request.Context(), currency)
		if err != nil {
			logrus.Errorf("读取价格缓存失败 %s: %v", currency, err)
			ctx.JSON(http.StatusInternalServerError, gin.H{
				"ok":      false,
				"message": "Unable to process request.",
				"code":    "STORAGE_ERROR",
			})
			return
		}
		if cached == nil {
			continue
		}
		tokens = append(tokens, TokenPrice{
			Currency:  cached.Currency,
			Price:     cached.Price,
			Timestamp: cached.Timestamp,
		})
	}

	ctx.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"tokens": tokens,
	})
}
