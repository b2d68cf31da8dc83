package middlewares

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"

	"nftdrops/src/config"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const AdminCodeHeader = "X-Admin-Code"

type adminCodeBody struct {
	AdminCode string `json:"adminCode"`
}

// AdminMiddleware gates admin routes behind the shared ADMIN_CODE, read from
// the X-Admin-Code header or the adminCode field of the JSON body. The body
// is cached so handlers can bind it again with ShouldBindBodyWith.
func AdminMiddleware(ctx *gin.Context) {
	code := ctx.GetHeader(AdminCodeHeader)
	if code == "" && ctx.Request.ContentLength != 0 {
		var body adminCodeBody
		if err := ctx.ShouldBindBodyWith(&body, binding.JSON); err == nil {
			code = body.AdminCode
		}
	}
	if code == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing admin code"})
		return
	}
	expected := config.AdminCode()
	if expected == "" {
		err := errors.New("admin code is not configured")
		log.Printf("[admin] %s\n", err.Error())
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(expected)) != 1 {
		log.Printf("[admin] Rejected admin code from %s\n", ctx.ClientIP())
		ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid admin code"})
		return
	}
	ctx.Set("admin", true)
}
