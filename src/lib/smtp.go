package lib

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"

	"github.com/wneessen/go-mail"
)

type SendMailInput struct {
	From     string
	FromName string
	To       []string
	Cc       []string
	Bcc      []string
	ReplyTo  string
	Subject  string
	Body     string
	Html     bool
	Embeds   []Embed
}

// Embed is an inline file referenced from an html body as cid:<ContentID>.
type Embed struct {
	Path      string
	ContentID string
}

// MailRelay delivers a fully built message.
type MailRelay interface {
	Name() string
	Send(ctx context.Context, input *SendMailInput) error
}

func GetSMTPClient() (*mail.Client, error) {
	host := os.Getenv("SMTP_HOST_NFTP")
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT_NFTP"))
	if err != nil {
		port = 587
	}
	user := os.Getenv("SMTP_USERNAME_NFTP")
	pass := os.Getenv("SMTP_PASSWORD_NFTP")
	c, err := mail.NewClient(
		host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(user),
		mail.WithPassword(pass),
	)
	if err != nil {
		log.Printf("Could not initialize smtp client: %s\n", err.Error())
		return nil, err
	}
	return c, nil
}

// BuildMessage converts the input into a MIME message. Address errors are
// returned rather than logged so a message is never sent half addressed.
func BuildMessage(input *SendMailInput) (*mail.Msg, error) {
	if len(input.To) == 0 {
		return nil, errors.New("no recipients")
	}
	msg := mail.NewMsg()
	if err := msg.FromFormat(input.FromName, input.From); err != nil {
		log.Printf("Failed to set From address: %s\n", err.Error())
		return nil, err
	}
	if err := msg.To(input.To...); err != nil {
		log.Printf("Failed to set To address: %s\n", err.Error())
		return nil, err
	}
	if input.ReplyTo != "" {
		if err := msg.ReplyTo(input.ReplyTo); err != nil {
			log.Printf("Failed to set Reply-To address: %s\n", err.Error())
		}
	}
	if len(input.Cc) > 0 {
		if err := msg.Cc(input.Cc...); err != nil {
			log.Printf("Failed to set Cc address: %s\n", err.Error())
		}
	}
	if len(input.Bcc) > 0 {
		if err := msg.Bcc(input.Bcc...); err != nil {
			log.Printf("Failed to set Bcc address: %s\n", err.Error())
		}
	}
	msg.Subject(input.Subject)
	if input.Html {
		msg.SetBodyString(mail.TypeTextHTML, input.Body)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, input.Body)
	}
	for _, e := range input.Embeds {
		msg.EmbedFile(e.Path, mail.WithFileContentID(e.ContentID))
	}
	return msg, nil
}

type SMTPRelay struct{}

func (SMTPRelay) Name() string {
	return "smtp"
}

func (SMTPRelay) Send(ctx context.Context, input *SendMailInput) error {
	c, err := GetSMTPClient()
	if err != nil {
		return err
	}
	msg, err := BuildMessage(input)
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		log.Printf("[MAILER] Error sending %q: %s\n", input.Subject, err.Error())
		return err
	}
	return nil
}
