package main

import (
	"net/http"

	"nftdrops/src/boot"
	"nftdrops/src/config"
	"nftdrops/src/middlewares"
	"nftdrops/src/types"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

func isERC1155(project *config.Project) bool {
	switch project.DistributionType {
	case types.ClaimToERC1155, types.SafeTransferFromERC1155:
		return true
	}
	return false
}

func adminHandlers(g *gin.RouterGroup, svc *boot.Services) *gin.RouterGroup {
	admin := g.Group("")
	admin.Use(middlewares.AdminMiddleware)

	claimConditions := func(erc1155 bool) gin.HandlerFunc {
		return func(ctx *gin.Context) {
			var body types.AdminClaimConditionsRequestBody
			if err := ctx.ShouldBindBodyWith(&body, binding.JSON); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			project, err := svc.Catalog.Get(body.ProjectName)
			if err != nil {
				abortWithError(ctx, "SetClaimConditions", err)
				return
			}
			hash, err := svc.Dispatcher.SetClaimConditions(ctx.Request.Context(), project, erc1155, body.TokenID, body.Conditions, body.Reset)
			if err != nil {
				abortWithError(ctx, "SetClaimConditions", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"transactionHash": hash})
		}
	}

	claimTo := func(erc1155 bool) gin.HandlerFunc {
		return func(ctx *gin.Context) {
			var body types.AdminClaimRequestBody
			if err := ctx.ShouldBindBodyWith(&body, binding.JSON); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			project, err := svc.Catalog.Get(body.ProjectName)
			if err != nil {
				abortWithError(ctx, "AdminClaim", err)
				return
			}
			hash, err := svc.Dispatcher.AdminClaim(ctx.Request.Context(), project, erc1155, body.Recipient, body.TokenID, body.Quantity)
			if err != nil {
				abortWithError(ctx, "AdminClaim", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"transactionHash": hash})
		}
	}

	admin.
		POST("/set-claim-conditions-erc721", claimConditions(false)).
		POST("/set-claim-conditions-erc1155", claimConditions(true)).
		POST("/claimto-erc721", claimTo(false)).
		POST("/claimto-erc1155", claimTo(true)).
		POST("/set-approval-for-all", func(ctx *gin.Context) {
			var body types.AdminApprovalRequestBody
			if err := ctx.ShouldBindBodyWith(&body, binding.JSON); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			project, err := svc.Catalog.Get(body.ProjectName)
			if err != nil {
				abortWithError(ctx, "SetApprovalForAll", err)
				return
			}
			hash, err := svc.Dispatcher.SetApprovalForAll(ctx.Request.Context(), project, isERC1155(project), body.Operator, body.Approved)
			if err != nil {
				abortWithError(ctx, "SetApprovalForAll", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"transactionHash": hash})
		}).
		POST("/resend-download-email", func(ctx *gin.Context) {
			var body types.AdminResendRequestBody
			if err := ctx.ShouldBindBodyWith(&body, binding.JSON); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			out, err := svc.Pipeline.ResendDownloadEmail(ctx.Request.Context(), body.PaymentReference)
			if err != nil {
				abortWithError(ctx, "ResendDownloadEmail", err)
				return
			}
			ctx.JSON(outcomeResponse(out))
		})
	return admin
}
