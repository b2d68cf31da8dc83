package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"nftdrops/src/boot"
	"nftdrops/src/common"
	"nftdrops/src/config"
	"nftdrops/src/types"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// checkRoutes are the per-project reconciliation endpoints.
var checkRoutes = map[string]string{
	"/dao-process-transaction":                 "DAO",
	"/happy-birthday-cakes-check-transaction": "Happy Birthday Cakes",
}

// bindWithDefaults decodes the JSON body, lets the route fill in fields the
// client may omit and validates afterwards.
func bindWithDefaults(ctx *gin.Context, obj any, defaults func()) error {
	if err := json.NewDecoder(ctx.Request.Body).Decode(obj); err != nil {
		return err
	}
	defaults()
	return binding.Validator.ValidateStruct(obj)
}

func outcomeResponse(out *common.Outcome) (int, gin.H) {
	body := gin.H{
		"paymentReference": out.Reference,
		"status":           out.Status,
		"transactionHash":  out.TransactionHash,
	}
	if out.Email != "" {
		body["email"] = out.Email
	}
	if out.Message != "" {
		body["message"] = out.Message
	}
	if out.Pending {
		body["pending"] = true
		body["redirect"] = resultRedirect(out.Project, false, out.Message)
		return http.StatusAccepted, body
	}
	body["redirect"] = resultRedirect(out.Project, out.Message == "", out.Message)
	return http.StatusOK, body
}

func abortWithRedirect(ctx *gin.Context, tag string, catalog *config.Catalog, projectName string, err error) {
	status := errorStatus(err)
	log.Printf("[%s] error (%d): %s\n", tag, status, err.Error())
	project, _ := catalog.Get(projectName)
	ctx.AbortWithStatusJSON(status, gin.H{
		"error":    err.Error(),
		"redirect": resultRedirect(project, false, err.Error()),
	})
}

func transactionHandlers(g *gin.RouterGroup, svc *boot.Services) *gin.RouterGroup {
	pl := svc.Pipeline

	g.
		POST("/crypto-purchase", func(ctx *gin.Context) {
			var body types.CryptoPurchaseRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			out, err := pl.ProcessCryptoPurchase(ctx.Request.Context(), body.Purchase(), body.PaymentTxHashCrypto)
			if err != nil {
				abortWithRedirect(ctx, "CryptoPurchase", svc.Catalog, body.ProjectName, err)
				return
			}
			ctx.JSON(outcomeResponse(out))
		}).
		POST("/transfer-nft", func(ctx *gin.Context) {
			var body types.CryptoPurchaseRequestBody
			if err := bindWithDefaults(ctx, &body, func() {
				body.DistributionType = types.SafeTransferFromERC721
			}); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			out, err := pl.ProcessCryptoPurchase(ctx.Request.Context(), body.Purchase(), body.PaymentTxHashCrypto)
			if err != nil {
				abortWithRedirect(ctx, "TransferNFT", svc.Catalog, body.ProjectName, err)
				return
			}
			ctx.JSON(outcomeResponse(out))
		})

	for route, projectName := range checkRoutes {
		projectName := projectName
		g.POST(route, func(ctx *gin.Context) {
			var body types.CheckTransactionRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			out, err := pl.CheckTransaction(ctx.Request.Context(), projectName, body.PaymentTxHash)
			if err != nil {
				abortWithRedirect(ctx, "CheckTransaction", svc.Catalog, projectName, err)
				return
			}
			ctx.JSON(outcomeResponse(out))
		})
	}

	g.
		POST("/dao-create-nft-transaction", func(ctx *gin.Context) {
			var body types.CreateNFTTransactionRequestBody
			if err := bindWithDefaults(ctx, &body, func() {
				if body.ProjectName == "" {
					body.ProjectName = "DAO"
				}
			}); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			rec, err := pl.CreateRecord(ctx.Request.Context(), &body)
			if err != nil {
				abortWithError(ctx, "CreateNFTTransaction", err)
				return
			}
			// the download code only ever leaves by email
			view := *rec
			view.DownloadCode = ""
			ctx.JSON(http.StatusOK, gin.H{"data": view})
		}).
		POST("/dao-update-nft-transaction", func(ctx *gin.Context) {
			var body types.UpdateNFTTransactionRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ok, err := pl.UpdateRecord(ctx.Request.Context(), &body)
			if err != nil {
				abortWithError(ctx, "UpdateNFTTransaction", err)
				return
			}
			if !ok {
				err := fmt.Errorf("%w: %s", types.ErrRecordNotFound, body.PaymentReference)
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"updated": true})
		}).
		POST("/nft-download", func(ctx *gin.Context) {
			var body types.DownloadRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			out, err := pl.RedeemDownload(ctx.Request.Context(), &body)
			if err != nil {
				abortWithError(ctx, "NFTDownload", err)
				return
			}
			ctx.JSON(outcomeResponse(out))
		})
	return g
}
