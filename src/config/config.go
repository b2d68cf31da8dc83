package config

import (
	"fmt"
	"os"
	"strings"

	"nftdrops/src/types"
)

// const dsn = "host=localhost user=postgres password=password dbname=nftdrops port=5432 sslmode=disable TimeZone=Europe/Paris"

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

// HasDatabase reports whether the webhook ledger database is configured.
func HasDatabase() bool {
	return os.Getenv("DATABASE_HOST") != ""
}

const TIME_PARSE_FORMAT = "2006-01-02 15:04:05 -07:00"

const (
	DEFAULT_PROJECTS_FILE  = "projects.yaml"
	DEFAULT_PRICE_API_URL  = "https://api.coingecko.com/api/v3/simple/price"
	DEFAULT_MAILCHIMP_HOST = "api.mailchimp.com/3.0"
)

func APIEnv() types.Environment {
	env := os.Getenv("API_ENV")
	if env == "" {
		return types.Local
	}
	return types.Environment(env)
}

func IsProd() bool {
	return APIEnv() == types.Production
}

func AdminCode() string {
	return os.Getenv("ADMIN_CODE")
}

// WebhookSecret returns the Stripe signing secret of the mode the event was
// sent in.
func WebhookSecret(livemode bool) string {
	if livemode {
		return os.Getenv("STRIPE_WEBHOOK_SECRET_LIVE")
	}
	return os.Getenv("STRIPE_WEBHOOK_SECRET_TEST")
}

func StripeSecretKey(livemode bool) string {
	if livemode {
		return os.Getenv("STRIPE_SECRET_KEY_LIVE")
	}
	return os.Getenv("STRIPE_SECRET_KEY_TEST")
}

func ThirdwebSecretKey() string {
	return os.Getenv("THIRDWEB_API_SECRET_KEY")
}

func DownloadTokenSecret() []byte {
	return []byte(os.Getenv("DOWNLOAD_TOKEN_SECRET"))
}

func AppHost() string {
	host := os.Getenv("APP_HOST")
	return strings.TrimSuffix(host, "/")
}

func AdminEmails() []string {
	var emails []string
	for _, e := range strings.Split(os.Getenv("ADMIN_EMAILS"), ",") {
		if e = strings.TrimSpace(e); e != "" {
			emails = append(emails, e)
		}
	}
	return emails
}

func MailFrom() string {
	return os.Getenv("MAIL_FROM")
}

func MailFromName() string {
	if name := os.Getenv("MAIL_FROM_NAME"); name != "" {
		return name
	}
	return "NFT Drops"
}

func MailRelay() string {
	relay := os.Getenv("MAIL_RELAY")
	if relay == "" {
		return "smtp"
	}
	return relay
}

func ProjectsFile() string {
	if f := os.Getenv("PROJECTS_FILE"); f != "" {
		return f
	}
	return DEFAULT_PROJECTS_FILE
}

func PriceAPIURL() string {
	if u := os.Getenv("PRICE_API_URL"); u != "" {
		return u
	}
	return DEFAULT_PRICE_API_URL
}

func MailchimpAPIKey() string {
	return os.Getenv("MAILCHIMP_API_KEY")
}

func MailchimpListID() string {
	return os.Getenv("MAILCHIMP_LIST_ID")
}
