package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"nftdrops/src/boot"
	"nftdrops/src/config"
	"nftdrops/src/lib"
	"nftdrops/src/middlewares"
	"nftdrops/src/types"
	"nftdrops/src/utils"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const apiPrefix = "/api"

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.Use(middlewares.SecureHeaders)
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})
	return router
}

// maintenanceModeMiddleware answers 503 while MAINTENANCE_MODE is true. An
// unset variable means the API is up.
func maintenanceModeMiddleware(g *gin.Engine) *gin.Engine {
	g.Use(func(ctx *gin.Context) {
		mm := os.Getenv("MAINTENANCE_MODE")
		if mm == "" {
			return
		}
		on, err := strconv.ParseBool(mm)
		if err != nil || on {
			err := errors.New("server is under maintenance")
			log.Println(err.Error())
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, err.Error())
			return
		}
	})
	return g
}

func apiGroup(g *gin.Engine) *gin.RouterGroup {
	return g.Group(apiPrefix)
}

// errorStatus maps pipeline errors to the status the storefront expects.
func errorStatus(err error) int {
	var mismatch *types.PaymentMismatchError
	var recipient *types.RecipientMismatchError
	var validation validator.ValidationErrors
	var mc *lib.MailchimpError
	switch {
	case errors.Is(err, types.ErrRecordNotFound),
		errors.Is(err, types.ErrTxNotFound),
		errors.Is(err, types.ErrUnknownProject):
		return http.StatusNotFound
	case errors.Is(err, types.ErrPriceUnavailable),
		errors.Is(err, lib.ErrMailchimpNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.As(err, &mismatch),
		errors.As(err, &recipient),
		errors.As(err, &validation),
		errors.Is(err, types.ErrAlreadyDownloaded),
		errors.Is(err, types.ErrUnknownDistributionType),
		errors.Is(err, types.ErrEmailCodeNotDispatchable),
		errors.Is(err, types.ErrInvalidDownloadCode),
		errors.Is(err, types.ErrInvalidTransition),
		errors.Is(err, types.ErrTxFailed),
		errors.Is(err, types.ErrTxNotConfirmed),
		errors.Is(err, types.ErrPayerMismatch),
		errors.Is(err, types.ErrNotEmailRecipient),
		errors.Is(err, types.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.As(err, &mc):
		if mc.Status >= 400 && mc.Status < 500 {
			return mc.Status
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(ctx *gin.Context, tag string, err error) {
	status := errorStatus(err)
	log.Printf("[%s] error (%d): %s\n", tag, status, err.Error())
	ctx.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// resultRedirect is the storefront result page for a finished request.
func resultRedirect(project *config.Project, ok bool, message string) string {
	resultPath := "/"
	if project != nil && project.ResultURL != "" {
		resultPath = project.ResultURL
	}
	return utils.ResultURL(resultPath, ok, message)
}

func publicRoutes(g *gin.Engine, svc *boot.Services) *gin.RouterGroup {
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := apiGroup(g)
	api.
		GET("/price/:project/:tokenId", func(ctx *gin.Context) {
			var params struct {
				Project string `uri:"project" binding:"required"`
				TokenID string `uri:"tokenId" binding:"required,numeric"`
			}
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			quote, err := svc.Prices.Quote(ctx.Request.Context(), params.Project, params.TokenID)
			if err != nil {
				abortWithError(ctx, "Price", err)
				return
			}
			ctx.JSON(http.StatusOK, quote)
		})
	return api
}

func setupRoutes(router *gin.Engine, svc *boot.Services) *gin.Engine {
	router = maintenanceModeMiddleware(router)
	api := publicRoutes(router, svc)
	stripeRoutes(api, svc)
	transactionHandlers(api, svc)
	mailchimpHandlers(api, svc)
	adminHandlers(api, svc)
	return router
}

func initLogger() {
	cwd, _ := os.Getwd()
	serverLogs := path.Join(cwd, "logs", "server.log")
	apiLogs := path.Join(cwd, "logs", "api.log")
	gin.ForceConsoleColor()

	if err := os.MkdirAll(path.Dir(apiLogs), 0o755); err != nil {
		log.Printf("Could not create log dir: %s\n", err.Error())
	}
	f, err := os.Create(apiLogs)
	if err != nil {
		gin.DefaultWriter = os.Stdout
	} else {
		gin.DefaultWriter = io.MultiWriter(f, os.Stdout)
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   serverLogs,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

// allowOrigin accepts exactly the app host origin.
func allowOrigin(appHost string) func(string) bool {
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(strings.TrimSuffix(appHost, "/")) + "$")
	return func(origin string) bool {
		if !pattern.MatchString(origin) {
			log.Printf("Origin rejected: %s\n", origin)
			return false
		}
		return true
	}
}

func corsMiddleware() gin.HandlerFunc {
	if config.APIEnv() == types.Local {
		return cors.Default()
	}
	cc := cors.DefaultConfig()
	cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "HEAD")
	cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Stripe-Signature", middlewares.AdminCodeHeader)
	cc.AllowOriginFunc = allowOrigin(config.AppHost())
	cc.AllowCredentials = true
	cc.AllowAllOrigins = false
	return cors.New(cc)
}

func main() {
	if config.APIEnv() == types.Local {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			panic(err)
		}
	}
	initLogger()

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		utils.RegisterValidators(v)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := lib.PingRedis(ctx); err != nil {
		log.Printf("Redis is not reachable: %s\n", err.Error())
	}
	svc := boot.GetServices()
	boot.InitScheduler()
	defer boot.StopScheduler()

	router := setupRouter()
	router.Use(corsMiddleware())
	router = setupRoutes(router, svc)

	srv := &http.Server{
		Addr:    ":9090",
		Handler: router,
	}
	go func() {
		var err error
		if os.Getenv("TLS_ENABLE") == "true" {
			cwd, _ := os.Getwd()
			certpath := path.Join(cwd, "certificates", "localhost.pem")
			keypath := path.Join(cwd, "certificates", "localhost-key.pem")
			err = srv.ListenAndServeTLS(certpath, keypath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %s", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %s\n", err.Error())
	}
}
