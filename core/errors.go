package core

import (
	"errors"
	"fmt"
	"net/http"
)

// 操作错误码
const (
	CodeInvalidParams       = "INVALID_PARAMS"
	CodePositionNotFound    = "POSITION_NOT_FOUND"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodePriceUnavailable    = "PRICE_UNAVAILABLE"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeStorageError        = "STORAGE_ERROR"
)

// OpError 结算操作返回的业务错误，携带错误码与HTTP状态
type OpError struct {
	Code    string
	Status  int
	Message string
}

func (e *OpError) Error() string {
	return e.Message
}

// Invalidf 参数校验失败
func Invalidf(format string, args ...interface{}) *OpError {
	return &OpError{
		Code:    CodeInvalidParams,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound 持仓不存在
func NotFound(positionID string) *OpError {
	return &OpError{
		Code:    CodePositionNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("Position %s not found.", positionID),
	}
}

// UserNotFound 用户不存在
func UserNotFound(userID int64) *OpError {
	return &OpError{
		Code:    CodeUserNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("User %d not found.", userID),
	}
}

// PriceUnavailable 无法确定可信的成交价格
func PriceUnavailable(currency string) *OpError {
	return &OpError{
		Code:    CodePriceUnavailable,
		Status:  http.StatusServiceUnavailable,
		Message: fmt.Sprintf("Unable to determine a reliable price for %s.", currency),
	}
}

// InsufficientBalance 可用余额不足
func InsufficientBalance(required, available float64) *OpError {
	return &OpError{
		Code:    CodeInsufficientBalance,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Insufficient balance: required %.2f but only %.2f available.", required, available),
	}
}

// StorageError 存储层失败
func StorageError(err error) *OpError {
	return &OpError{
		Code:    CodeStorageError,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("Storage operation failed: %v", err),
	}
}

// AsOpError 提取业务错误
func AsOpError(err error) (*OpError, bool) {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}
