package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"os"
	"path"
	"time"

	"nftdrops/src/config"
	"nftdrops/src/lib"
	"nftdrops/src/models"
	"nftdrops/src/types"

	"github.com/golang-jwt/jwt/v4"
	"github.com/yeqown/go-qrcode"
)

const (
	DownloadTokenTTL = 30 * 24 * time.Hour
	qrContentID      = "download-qr"
)

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "download"}}<html><body>
<h2>Your {{.Project}} NFT is ready</h2>
{{if .OffererName}}<p>{{.OffererName}} offered you this NFT.</p>{{end}}
<p>Token #{{.TokenID}}. Connect your wallet and claim it here:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>Your download code: <b>{{.DownloadCode}}</b></p>
{{if .QR}}<p><img src="cid:{{.QR}}" alt="QR code" width="200" height="200"/></p>{{end}}
<p>Payment reference: {{.Reference}}</p>
</body></html>{{end}}
{{define "trace"}}<html><body>
<h3>{{.Project}} sale</h3>
<ul>
<li>Reference: {{.Reference}}</li>
<li>Flow: {{.Flow}}</li>
<li>Recipient: {{.Recipient}}</li>
<li>Token: {{.TokenID}} x {{.Quantity}}</li>
<li>Distribution: {{.DistributionType}}</li>
<li>Status: {{.Status}}</li>
{{if .DistributionTxHash}}<li>Distribution tx: {{.DistributionTxHash}}</li>{{end}}
{{if .OffererName}}<li>Offered by: {{.OffererName}}</li>{{end}}
</ul>
</body></html>{{end}}
{{define "alert"}}<html><body>
<h3>Crypto payment anomaly on {{.Project}}</h3>
<ul>
<li>Transaction: {{.Reference}}</li>
<li>Buyer: {{.Buyer}}</li>
<li>Reason: {{.Reason}}</li>
{{if .Expected}}<li>Paid: {{.Paid}} {{.Symbol}}</li>
<li>Expected: {{.Expected}} {{.Symbol}}</li>{{end}}
</ul>
</body></html>{{end}}
`))

type CryptoAlert struct {
	Project   string
	Reference string
	Buyer     string
	Reason    string
	Paid      string
	Expected  string
	Symbol    string
}

// NewCryptoAlert describes a rejected crypto payment.
func NewCryptoAlert(project *config.Project, reference, buyer string, cause error) *CryptoAlert {
	a := &CryptoAlert{
		Project:   project.Name,
		Reference: reference,
		Buyer:     buyer,
		Reason:    cause.Error(),
		Symbol:    project.NativeSymbol,
	}
	var mismatch *types.PaymentMismatchError
	if errors.As(cause, &mismatch) {
		a.Paid = mismatch.Paid.String()
		a.Expected = mismatch.Expected.String()
	}
	return a
}

// Notifier sends the three transactional emails. Every send returns
// SEND_OK or SEND_ERROR and is never retried here.
type Notifier struct {
	Relay       lib.MailRelay
	From        string
	FromName    string
	AdminEmails []string
	AppHost     string
	TokenSecret []byte
}

// DownloadLink is a signed link to the claim page carrying the reference and
// download code.
func (n *Notifier) DownloadLink(rec *models.NFTTransaction) (string, error) {
	if len(n.TokenSecret) == 0 {
		return "", errors.New("missing download token secret")
	}
	now := time.Now()
	claims := &types.DownloadClaims{
		PaymentReference: rec.PaymentReference,
		DownloadCode:     rec.DownloadCode,
		Project:          rec.ProjectName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   rec.Recipient,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(DownloadTokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(n.TokenSecret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/download?token=%s", n.AppHost, token), nil
}

func ParseDownloadToken(secret []byte, token string) (*types.DownloadClaims, error) {
	claims := &types.DownloadClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, types.ErrInvalidDownloadCode
	}
	return claims, nil
}

func writeQRCode(reference, text string) (string, error) {
	qrc, err := qrcode.New(text)
	if err != nil {
		return "", err
	}
	filepath := path.Join(os.TempDir(), fmt.Sprintf("nft-%s.jpeg", reference))
	if err := qrc.Save(filepath); err != nil {
		log.Printf("Could not save qrcode to file [%s]: %s\n", filepath, err.Error())
		return "", err
	}
	return filepath, nil
}

func (n *Notifier) send(ctx context.Context, tmpl string, input *lib.SendMailInput, data any) types.SendResult {
	var body bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&body, tmpl, data); err != nil {
		log.Printf("[MAILER] Error rendering %s: %s\n", tmpl, err.Error())
		lib.EmailsTotal.WithLabelValues(tmpl, string(types.SEND_ERROR)).Inc()
		return types.SEND_ERROR
	}
	if n.Relay == nil || len(input.To) == 0 {
		log.Printf("[MAILER] %s not sent: no relay or recipients\n", tmpl)
		lib.EmailsTotal.WithLabelValues(tmpl, string(types.SEND_ERROR)).Inc()
		return types.SEND_ERROR
	}
	input.From = n.From
	input.FromName = n.FromName
	input.Body = body.String()
	input.Html = true
	if err := n.Relay.Send(ctx, input); err != nil {
		log.Printf("[MAILER] %s via %s failed: %s\n", tmpl, n.Relay.Name(), err.Error())
		lib.EmailsTotal.WithLabelValues(tmpl, string(types.SEND_ERROR)).Inc()
		return types.SEND_ERROR
	}
	lib.EmailsTotal.WithLabelValues(tmpl, string(types.SEND_OK)).Inc()
	return types.SEND_OK
}

func (n *Notifier) SendDownloadEmail(ctx context.Context, rec *models.NFTTransaction, project *config.Project) types.SendResult {
	link, err := n.DownloadLink(rec)
	if err != nil {
		log.Printf("[MAILER] Could not sign download link for %s: %s\n", rec.PaymentReference, err.Error())
		return types.SEND_ERROR
	}
	input := &lib.SendMailInput{
		To:      []string{rec.Recipient},
		Subject: fmt.Sprintf("Your %s NFT", project.Name),
	}
	qr := ""
	if file, err := writeQRCode(rec.PaymentReference, link); err == nil {
		defer os.Remove(file)
		input.Embeds = append(input.Embeds, lib.Embed{Path: file, ContentID: qrContentID})
		qr = qrContentID
	}
	return n.send(ctx, "download", input, map[string]any{
		"Project":      project.Name,
		"OffererName":  rec.OffererName,
		"TokenID":      rec.TokenID,
		"Link":         link,
		"DownloadCode": rec.DownloadCode,
		"Reference":    rec.PaymentReference,
		"QR":           qr,
	})
}

func (n *Notifier) SendAdminTrace(ctx context.Context, rec *models.NFTTransaction, project *config.Project) types.SendResult {
	to := n.AdminEmails
	if len(project.AdminEmails) > 0 {
		to = project.AdminEmails
	}
	input := &lib.SendMailInput{
		To:      to,
		Subject: fmt.Sprintf("[%s] sale %s %s", project.Name, rec.PaymentReference, rec.Status),
	}
	return n.send(ctx, "trace", input, map[string]any{
		"Project":            project.Name,
		"Reference":          rec.PaymentReference,
		"Flow":               rec.Flow,
		"Recipient":          rec.Recipient,
		"TokenID":            rec.TokenID,
		"Quantity":           rec.Quantity,
		"DistributionType":   rec.DistributionType,
		"Status":             rec.Status,
		"DistributionTxHash": rec.DistributionTxHash,
		"OffererName":        rec.OffererName,
	})
}

func (n *Notifier) SendCryptoAlert(ctx context.Context, alert *CryptoAlert) types.SendResult {
	input := &lib.SendMailInput{
		To:      n.AdminEmails,
		Subject: fmt.Sprintf("[%s] crypto payment anomaly %s", alert.Project, alert.Reference),
	}
	return n.send(ctx, "alert", input, alert)
}
