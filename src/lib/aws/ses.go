package aws

import (
	"bytes"
	"context"
	"log"
	"sync"

	"nftdrops/src/lib"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

var (
	cfgOnce sync.Once
	cfg     awssdk.Config
	cfgErr  error
)

func loadConfig(ctx context.Context) (awssdk.Config, error) {
	cfgOnce.Do(func() {
		cfg, cfgErr = config.LoadDefaultConfig(ctx)
		if cfgErr != nil {
			log.Printf("Could not load default config: %s\n", cfgErr.Error())
		}
	})
	return cfg, cfgErr
}

func GetSESClient(ctx context.Context) (*ses.Client, error) {
	c, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return ses.NewFromConfig(c), nil
}

// SESSender is the subset of the SES API the relay uses.
type SESSender interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// SESRelay sends the same MIME message the SMTP relay would, as a raw email,
// so inline QR codes survive.
type SESRelay struct {
	Client SESSender
}

func NewSESRelay(ctx context.Context) (*SESRelay, error) {
	c, err := GetSESClient(ctx)
	if err != nil {
		return nil, err
	}
	return &SESRelay{Client: c}, nil
}

func (r *SESRelay) Name() string {
	return "ses"
}

func (r *SESRelay) Send(ctx context.Context, input *lib.SendMailInput) error {
	msg, err := lib.BuildMessage(input)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}
	out, err := r.Client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		RawMessage: &types.RawMessage{Data: buf.Bytes()},
	})
	if err != nil {
		log.Printf("Error sending email: %s\n", err.Error())
		return err
	}
	log.Printf("Sent email with id: %s\n", awssdk.ToString(out.MessageId))
	return nil
}
