package common

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrNo struct {
	ErrCode int    `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

const (
	SuccessCode  = 0
	Internal     = iota + 10000
	Validation
	NotFound
	InvalidState
	Conflict
	TokenInvalid
	PasswordErr
)

var errorMsg = map[int]string{
	SuccessCode:  "success",
	Internal:     "internal error",
	Validation:   "request invalid",
	NotFound:     "not found",
	InvalidState: "operation not legal in current state",
	Conflict:     "lost race to a concurrent update",
	TokenInvalid: "token invalid",
	PasswordErr:  "password error",
}

// httpStatus maps taxonomy codes to the status codes clients rely on.
// INVALID_STATE and CONFLICT both surface as 409; callers distinguish
// them by err_code.
var httpStatus = map[int]int{
	SuccessCode:  http.StatusOK,
	Internal:     http.StatusInternalServerError,
	Validation:   http.StatusBadRequest,
	NotFound:     http.StatusNotFound,
	InvalidState: http.StatusConflict,
	Conflict:     http.StatusConflict,
	TokenInvalid: http.StatusUnauthorized,
	PasswordErr:  http.StatusUnauthorized,
}

func (e ErrNo) Error() string {
	return fmt.Sprintf("err_code=%d, err_msg=%s", e.ErrCode, e.ErrMsg)
}

func (e ErrNo) HTTPStatus() int {
	if status, ok := httpStatus[e.ErrCode]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func NewErrNo(errCode int) error {
	return ErrNo{
		ErrCode: errCode,
		ErrMsg:  errorMsg[errCode],
	}
}

// NewErrNoMsg attaches a detail message to a taxonomy code.
func NewErrNoMsg(errCode int, format string, args ...any) error {
	return ErrNo{
		ErrCode: errCode,
		ErrMsg:  fmt.Sprintf(format, args...),
	}
}

func ConvertErr(err error) ErrNo {
	e := ErrNo{}
	if errors.As(err, &e) {
		return e
	}
	e = ErrNo{
		ErrCode: Internal,
		ErrMsg:  err.Error(),
	}
	return e
}

// IsErrCode reports whether err carries the given taxonomy code.
func IsErrCode(err error, errCode int) bool {
	e := ErrNo{}
	return errors.As(err, &e) && e.ErrCode == errCode
}
