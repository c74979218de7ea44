package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/internal/service"
)

// Signup 注册账户.
//
//	@Summary	注册
//	@Tags		账户
//	@Accept		json
//	@Produce	json
//	@Param		body	body		service.SignupInput	true	"注册参数"
//	@Success	201		{object}	service.Session
//	@Failure	400		{object}	ErrorResponse
//	@Failure	409		{object}	ErrorResponse
//	@Router		/api/v1/auth/signup [post]
func (h *Handler) Signup(c *gin.Context) {
	var in service.SignupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)

		return
	}

	sess, err := h.svc.Auth.Signup(c.Request.Context(), in)
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusCreated, sess)
}

// Login 登录并签发访问令牌.
//
//	@Summary	登录
//	@Tags		账户
//	@Accept		json
//	@Produce	json
//	@Param		body	body		service.LoginInput	true	"登录参数"
//	@Success	200		{object}	service.Session
//	@Failure	401		{object}	ErrorResponse
//	@Router		/api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var in service.LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)

		return
	}

	sess, err := h.svc.Auth.Login(c.Request.Context(), in)
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, sess)
}

// Me 当前用户资料.
//
//	@Summary	当前用户
//	@Tags		账户
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	model.User
//	@Failure	401	{object}	ErrorResponse
//	@Router		/api/v1/auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	u, err := h.svc.Auth.Profile(c.Request.Context(), uid)
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, u)
}
