package boot

import (
	"context"
	"log"
	"sync"

	"nftdrops/src/common"
	"nftdrops/src/config"
	"nftdrops/src/db"
	"nftdrops/src/lib"
	awslib "nftdrops/src/lib/aws"

	"gorm.io/gorm"
)

// Services is the process-wide graph the handlers work with.
type Services struct {
	Catalog    *config.Catalog
	Prices     *common.PriceOracle
	Pipeline   *common.Pipeline
	Dispatcher *common.Dispatcher
	Webhooks   *common.WebhookVerifier
	SeenEvents common.SeenStore
	Ledger     common.WebhookLedger
	Mailchimp  *lib.MailchimpClient
}

var (
	services     *Services
	servicesOnce sync.Once
)

func GetServices() *Services {
	servicesOnce.Do(func() {
		if services == nil {
			services = InitServices(context.Background())
		}
	})
	return services
}

// NewServices replaces the service graph, used by tests.
func NewServices(s *Services) {
	services = s
}

func InitDb() *gorm.DB {
	d := db.GetDb()
	if err := db.Migrate(d); err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}
	return d
}

func initRelay(ctx context.Context) lib.MailRelay {
	switch config.MailRelay() {
	case "ses":
		relay, err := awslib.NewSESRelay(ctx)
		if err != nil {
			log.Printf("[boot] SES relay unavailable, falling back to SMTP: %s\n", err.Error())
			return lib.SMTPRelay{}
		}
		return relay
	default:
		return lib.SMTPRelay{}
	}
}

func initSecrets(ctx context.Context) common.SecretSource {
	fetcher, err := awslib.NewSecretFetcher(ctx)
	if err != nil {
		log.Printf("[boot] Secrets Manager unavailable, signing keys come from the environment only: %s\n", err.Error())
		return nil
	}
	return fetcher
}

func InitServices(ctx context.Context) *Services {
	catalog := config.GetCatalog()

	var (
		store       common.RecordStore
		seen        common.SeenStore
		redemptions common.SeenStore
		sends       common.SeenStore
	)
	if rdb := lib.GetRedisClient(); rdb != nil {
		store = common.NewRedisRecordStore(rdb)
		seen = common.NewRedisSeenStore(rdb, common.StripeEventPrefix, common.StripeEventTTL)
		redemptions = common.NewRedisSeenStore(rdb, common.RedeemLockPrefix, common.RedeemLockTTL)
		sends = common.NewRedisSeenStore(rdb, common.DistributeLockPrefix, common.DistributeLockTTL)
	} else {
		log.Println("[boot] REDIS_URL is not set, records are kept in memory")
		store = common.NewMemoryRecordStore()
		seen = common.NewMemorySeenStore(common.StripeEventTTL)
		redemptions = common.NewMemorySeenStore(common.RedeemLockTTL)
		sends = common.NewMemorySeenStore(common.DistributeLockTTL)
	}

	var ledger common.WebhookLedger = common.NoopWebhookLedger{}
	if config.HasDatabase() {
		ledger = common.NewGormWebhookLedger(InitDb())
	}

	var scheduler lib.TaskScheduler
	if sched, err := lib.GetScheduler(); err == nil {
		scheduler = lib.NewCronScheduler(sched)
	}

	chains := lib.NewRPCChainProvider()
	prices := &common.PriceOracle{Catalog: catalog, Rates: lib.NewPriceFeed(config.PriceAPIURL())}
	dispatcher := &common.Dispatcher{
		Keys:      &common.KeyResolver{Secrets: initSecrets(ctx)},
		Contracts: &lib.RPCContractDialer{Chains: chains},
	}
	notifier := &common.Notifier{
		Relay:       initRelay(ctx),
		From:        config.MailFrom(),
		FromName:    config.MailFromName(),
		AdminEmails: config.AdminEmails(),
		AppHost:     config.AppHost(),
		TokenSecret: config.DownloadTokenSecret(),
	}

	return &Services{
		Catalog:    catalog,
		Prices:     prices,
		Dispatcher: dispatcher,
		Webhooks:   common.NewWebhookVerifier(config.WebhookSecret),
		SeenEvents: seen,
		Ledger:     ledger,
		Mailchimp:  lib.NewMailchimpClient(config.MailchimpAPIKey(), config.MailchimpListID()),
		Pipeline: &common.Pipeline{
			Catalog:       catalog,
			Store:         store,
			Prices:        prices,
			Crypto:        common.NewCryptoVerifier(chains, prices),
			Dispatcher:    dispatcher,
			Notifier:      notifier,
			Scheduler:     scheduler,
			Redemptions:   redemptions,
			Distributions: sends,
		},
	}
}

func InitScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	log.Println("Jobs in queue:", len(sched.Jobs()))
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	if err := sched.Shutdown(); err != nil {
		log.Println("An error has occurred while shutting stopping Scheduler. Check logs for info")
	}
}
