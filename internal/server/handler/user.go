package handler

import (
	"gantry/internal/common"
	"gantry/internal/server/dao"
	"gantry/internal/server/middleware"
	"gantry/pkg/api"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func UserLogin(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, common.NewErrNo(common.Validation))
		return
	}

	user, err := dao.NewUserDao().GetByUsername(c, req.Username)
	if err != nil {
		common.Error(c, common.NewErrNo(common.PasswordErr))
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		common.Error(c, common.NewErrNo(common.PasswordErr))
		return
	}

	token, err := middleware.GenerateJWT(user.Role)
	if err != nil {
		common.Error(c, err)
		return
	}
	c.Header("Authorization", "Bearer "+token)
	common.Success(c, api.LoginResponse{Token: token})
}
