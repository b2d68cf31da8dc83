package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"nftdrops/src/boot"
	"nftdrops/src/common"
	"nftdrops/src/lib"
	"nftdrops/src/models"
	"nftdrops/src/types"
	"nftdrops/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
)

// handleStripeEvent processes one verified event and reports the status to
// answer Stripe with. A duplicate delivery of an event id is acknowledged
// without side effects.
func handleStripeEvent(ctx context.Context, svc *boot.Services, event stripe.Event) (int, gin.H) {
	if event.Type != stripe.EventTypeChargeSucceeded {
		lib.WebhookEventsTotal.WithLabelValues(string(event.Type), "ignored").Inc()
		return http.StatusOK, gin.H{"received": true}
	}
	first, err := svc.SeenEvents.MarkSeen(ctx, event.ID)
	if err != nil {
		log.Printf("[StripeEvent] Could not mark %s as seen: %s\n", event.ID, err.Error())
		lib.WebhookEventsTotal.WithLabelValues(string(event.Type), "error").Inc()
		return http.StatusInternalServerError, gin.H{"error": err.Error()}
	}
	if !first {
		log.Printf("[StripeEvent] %s was already handled\n", event.ID)
		lib.WebhookEventsTotal.WithLabelValues(string(event.Type), "duplicate").Inc()
		return http.StatusOK, gin.H{"received": true, "duplicate": true}
	}

	charge, err := svc.Webhooks.PurchaseFromCharge(event)
	var out *common.Outcome
	if err == nil {
		out, err = svc.Pipeline.ProcessCardPayment(ctx, charge)
	}
	if lerr := svc.Ledger.Complete(ctx, common.ProviderStripe, event.ID, err); lerr != nil {
		log.Printf("[StripeEvent] Could not complete ledger row of %s: %s\n", event.ID, lerr.Error())
	}
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			// let Stripe redeliver
			if ferr := svc.SeenEvents.Forget(ctx, event.ID); ferr != nil {
				log.Printf("[StripeEvent] Could not release %s: %s\n", event.ID, ferr.Error())
			}
		}
		log.Printf("[StripeEvent] %s failed (%d): %s\n", event.ID, status, err.Error())
		lib.WebhookEventsTotal.WithLabelValues(string(event.Type), "error").Inc()
		return status, gin.H{"error": err.Error()}
	}
	lib.WebhookEventsTotal.WithLabelValues(string(event.Type), "ok").Inc()
	return http.StatusOK, gin.H{
		"received":         true,
		"paymentReference": out.Reference,
		"status":           out.Status,
		"transactionHash":  out.TransactionHash,
		"redirect":         resultRedirect(out.Project, out.Message == "", out.Message),
	}
}

func stripeRoutes(g *gin.RouterGroup, svc *boot.Services) *gin.RouterGroup {
	g.
		POST("/stripe-webhook", func(ctx *gin.Context) {
			payload, err := io.ReadAll(ctx.Request.Body)
			if err != nil {
				log.Printf("Error reading request body: %s\n", err.Error())
				ctx.Status(http.StatusServiceUnavailable)
				return
			}
			event, err := svc.Webhooks.ConstructEvent(payload, ctx.GetHeader("Stripe-Signature"))
			if err != nil {
				log.Printf("Error verifying webhook signature: %s\n", err.Error())
				lib.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			log.Printf("[StripeEvent] %s %s livemode=%v\n", event.Type, event.ID, event.Livemode)
			if err := svc.Ledger.Record(ctx.Request.Context(), &models.WebhookEvent{
				Provider:        common.ProviderStripe,
				ProviderEventID: event.ID,
				EventType:       string(event.Type),
				Livemode:        event.Livemode,
				Payload:         string(payload),
			}); err != nil {
				log.Printf("[StripeEvent] Could not record %s: %s\n", event.ID, err.Error())
			}
			status, body := handleStripeEvent(ctx.Request.Context(), svc, event)
			ctx.JSON(status, body)
		}).
		POST("/create-payment-intent", func(ctx *gin.Context) {
			var body types.PaymentIntentRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			project, err := svc.Catalog.Get(body.ProjectName)
			if err != nil {
				abortWithError(ctx, "CreatePaymentIntent", err)
				return
			}
			if !body.DistributionType.Known() {
				abortWithError(ctx, "CreatePaymentIntent", fmt.Errorf("%w: %s", types.ErrUnknownDistributionType, body.DistributionType))
				return
			}
			amount, err := svc.Prices.EurCents(project.Name, body.TokenID, body.RequestedQuantity)
			if err != nil {
				abortWithError(ctx, "CreatePaymentIntent", err)
				return
			}
			in := &lib.PaymentIntentInput{
				AmountCents: amount,
				Currency:    string(stripe.CurrencyEUR),
				Description: fmt.Sprintf("%s #%s x%d", project.Name, body.TokenID, body.RequestedQuantity),
				Metadata:    common.PurchaseMetadata(&body.PurchaseRequest),
				Livemode:    body.Livemode,
			}
			if utils.IsEmail(body.RecipientWalletAddressOrEmail) {
				in.Email = body.RecipientWalletAddressOrEmail
			}
			pi, err := lib.CreatePaymentIntent(ctx.Request.Context(), in)
			if err != nil {
				log.Printf("[CreatePaymentIntent] Stripe error: %s\n", err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"clientSecret": pi.ClientSecret, "amount": amount})
		})
	return g
}
