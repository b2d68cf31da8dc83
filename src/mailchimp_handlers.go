package main

import (
	"net/http"

	"nftdrops/src/boot"
	"nftdrops/src/types"
	"nftdrops/src/utils"

	"github.com/gin-gonic/gin"
)

func mailchimpHandlers(g *gin.RouterGroup, svc *boot.Services) *gin.RouterGroup {
	mc := svc.Mailchimp
	g.
		POST("/mailchimp-subscribe", func(ctx *gin.Context) {
			var body types.MailchimpSubscribeRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			member, err := mc.Subscribe(ctx.Request.Context(), body.Email, body.FirstName, body.LastName, body.Tags)
			if err != nil {
				abortWithError(ctx, "Mailchimp "+utils.MaskEmail(body.Email), err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": member})
		}).
		POST("/mailchimp-tags", func(ctx *gin.Context) {
			var body types.MailchimpTagsRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := mc.AddTags(ctx.Request.Context(), body.Email, body.Tags); err != nil {
				abortWithError(ctx, "Mailchimp "+utils.MaskEmail(body.Email), err)
				return
			}
			ctx.Status(http.StatusNoContent)
		}).
		GET("/mailchimp-member/:email", func(ctx *gin.Context) {
			var params struct {
				Email string `uri:"email" binding:"required,email"`
			}
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			member, err := mc.GetMember(ctx.Request.Context(), params.Email)
			if err != nil {
				abortWithError(ctx, "Mailchimp "+utils.MaskEmail(params.Email), err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": member})
		})
	return g
}
