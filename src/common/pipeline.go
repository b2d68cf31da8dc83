package common

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"nftdrops/src/config"
	"nftdrops/src/lib"
	"nftdrops/src/models"
	"nftdrops/src/types"
	"nftdrops/src/utils"

	"github.com/shopspring/decimal"
)

const (
	RetryMessage         = "Your payment has not been confirmed on chain yet. Please check again in a few minutes."
	DefaultFollowUpDelay = 3 * time.Minute
	followUpTimeout      = 2 * time.Minute
)

// Outcome is what a pipeline step reports back to the HTTP layer.
type Outcome struct {
	Reference       string                  `json:"paymentReference"`
	Status          types.TransactionStatus `json:"status"`
	TransactionHash string                  `json:"transactionHash,omitempty"`
	Email           types.SendResult        `json:"email,omitempty"`
	Message         string                  `json:"message,omitempty"`
	Pending         bool                    `json:"pending,omitempty"`
	Project         *config.Project         `json:"-"`
}

func recordOutcome(rec *models.NFTTransaction, project *config.Project) *Outcome {
	return &Outcome{
		Reference:       rec.PaymentReference,
		Status:          rec.Status,
		TransactionHash: rec.DistributionTxHash,
		Project:         project,
	}
}

// Pipeline ties payment verification, distribution and notification to the
// record of a sale.
type Pipeline struct {
	Catalog       *config.Catalog
	Store         RecordStore
	Prices        *PriceOracle
	Crypto        *CryptoVerifier
	Dispatcher    *Dispatcher
	Notifier      *Notifier
	Scheduler     lib.TaskScheduler
	Redemptions   SeenStore
	Distributions SeenStore
	FollowUpDelay time.Duration
}

func (pl *Pipeline) setStatus(ctx context.Context, rec *models.NFTTransaction, status types.TransactionStatus) error {
	ok, err := pl.Store.UpdateStatus(ctx, rec.PaymentReference, status)
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrRecordNotFound
	}
	rec.Status = status
	return nil
}

func (pl *Pipeline) purchaseProject(p *types.PurchaseRequest) (*config.Project, bool, error) {
	project, err := pl.Catalog.Get(p.ProjectName)
	if err != nil {
		return nil, false, err
	}
	if !p.DistributionType.Known() {
		return nil, false, fmt.Errorf("%w: %q", types.ErrUnknownDistributionType, p.DistributionType)
	}
	if p.NftContractAddress != "" && !lib.SameAddress(p.NftContractAddress, project.NftContractAddress) {
		return nil, false, fmt.Errorf("%w: nftContractAddress does not belong to %s", types.ErrInvalidRequest, project.Name)
	}
	if p.BlockchainID != 0 && p.BlockchainID != project.BlockchainID {
		return nil, false, fmt.Errorf("%w: %s is not deployed on chain %d", types.ErrInvalidRequest, project.Name, p.BlockchainID)
	}
	email := utils.IsEmail(p.RecipientWalletAddressOrEmail)
	if !email && !utils.IsEthAddress(p.RecipientWalletAddressOrEmail) {
		return nil, false, fmt.Errorf("%w: recipient must be a wallet address or an email", types.ErrInvalidRequest)
	}
	if p.DistributionType == types.EmailCode && !email {
		return nil, false, types.ErrNotEmailRecipient
	}
	return project, email, nil
}

func newRecord(p *types.PurchaseRequest, reference string, flow types.PaymentFlow, email bool) *models.NFTTransaction {
	rec := &models.NFTTransaction{
		PaymentReference: reference,
		Flow:             flow,
		ProjectName:      p.ProjectName,
		Recipient:        p.RecipientWalletAddressOrEmail,
		Buyer:            p.BuyerWalletAddress,
		TokenID:          p.TokenID,
		Quantity:         p.RequestedQuantity,
		DistributionType: p.DistributionType,
		OffererName:      p.OffererName,
		Status:           models.InitialStatus(flow),
	}
	if email {
		rec.DownloadCode = utils.NewDownloadCode()
	}
	return rec
}

// ProcessCryptoPurchase handles a buyer-submitted payment hash. When the
// payment is still unmined after polling the record stays TX_PENDING, the
// outcome is Pending and a follow-up check is scheduled.
func (pl *Pipeline) ProcessCryptoPurchase(ctx context.Context, p *types.PurchaseRequest, txHash string) (*Outcome, error) {
	project, email, err := pl.purchaseProject(p)
	if err != nil {
		return nil, err
	}
	rec, err := pl.Store.Create(ctx, newRecord(p, txHash, types.FLOW_CRYPTO, email))
	if err != nil {
		return nil, err
	}
	if rec.Status != types.TX_PENDING {
		log.Printf("[Pipeline] %s already processed (%s)\n", txHash, rec.Status)
		out := recordOutcome(rec, project)
		out.Message = "This payment has already been processed."
		return out, nil
	}
	return pl.confirmCrypto(ctx, project, rec)
}

func (pl *Pipeline) confirmCrypto(ctx context.Context, project *config.Project, rec *models.NFTTransaction) (*Outcome, error) {
	tx, err := pl.Crypto.WaitConfirmed(ctx, project, rec.PaymentReference)
	switch {
	case errors.Is(err, types.ErrTxFailed):
		if serr := pl.setStatus(ctx, rec, types.TX_FAILED); serr != nil {
			log.Printf("[Pipeline] Could not mark %s failed: %s\n", rec.PaymentReference, serr.Error())
		}
		return nil, err
	case errors.Is(err, types.ErrTxNotConfirmed), errors.Is(err, types.ErrTxNotFound):
		pl.scheduleFollowUp(project, rec.PaymentReference)
		return &Outcome{
			Reference: rec.PaymentReference,
			Status:    rec.Status,
			Message:   RetryMessage,
			Pending:   true,
			Project:   project,
		}, nil
	case err != nil:
		return nil, err
	}
	if err := pl.verifyCrypto(ctx, project, rec, tx); err != nil {
		return nil, err
	}
	return pl.fulfill(ctx, project, rec)
}

// verifyCrypto checks a mined payment and confirms the record. It is the
// only place a crypto record becomes verified. Rejected payments raise the
// admin alert; a missing rate leaves the record pending.
func (pl *Pipeline) verifyCrypto(ctx context.Context, project *config.Project, rec *models.NFTTransaction, tx *lib.ChainTx) error {
	exp := &Expectation{TokenID: rec.TokenID, Quantity: rec.Quantity, Payer: rec.Buyer}
	if err := pl.Crypto.Verify(ctx, project, exp, tx); err != nil {
		if !errors.Is(err, types.ErrPriceUnavailable) {
			log.Printf("[Pipeline] Payment %s rejected: %s\n", rec.PaymentReference, err.Error())
			pl.Notifier.SendCryptoAlert(ctx, NewCryptoAlert(project, rec.PaymentReference, tx.From, err))
		}
		return err
	}
	if err := pl.markVerified(ctx, rec); err != nil {
		return err
	}
	if rec.Status != types.TX_PENDING {
		return nil
	}
	return pl.setStatus(ctx, rec, types.TX_CONFIRMED)
}

func (pl *Pipeline) markVerified(ctx context.Context, rec *models.NFTTransaction) error {
	if rec.Verified() {
		return nil
	}
	now := time.Now().UTC()
	if err := pl.Store.MarkVerified(ctx, rec.PaymentReference, now); err != nil {
		log.Printf("[Pipeline] Could not mark %s verified: %s\n", rec.PaymentReference, err.Error())
		return err
	}
	rec.VerifiedAt = &now
	return nil
}

func (pl *Pipeline) scheduleFollowUp(project *config.Project, reference string) {
	if pl.Scheduler == nil {
		return
	}
	delay := pl.FollowUpDelay
	if delay <= 0 {
		delay = DefaultFollowUpDelay
	}
	name := "nft-followup-" + reference
	_, err := pl.Scheduler.ScheduleOnce(name, time.Now().Add(delay), func() {
		ctx, cancel := context.WithTimeout(context.Background(), followUpTimeout)
		defer cancel()
		out, err := pl.CheckTransaction(ctx, project.Name, reference)
		if err != nil {
			log.Printf("[Pipeline] Follow-up of %s failed: %s\n", reference, err.Error())
			return
		}
		log.Printf("[Pipeline] Follow-up of %s: %s pending=%t\n", reference, out.Status, out.Pending)
	})
	if err != nil {
		log.Printf("[Pipeline] Could not schedule follow-up of %s: %s\n", reference, err.Error())
	}
}

// ProcessCardPayment fulfills a succeeded Stripe charge. The charged amount
// must cover the price table.
func (pl *Pipeline) ProcessCardPayment(ctx context.Context, charge *PaidCharge) (*Outcome, error) {
	p := charge.Purchase
	project, email, err := pl.purchaseProject(p)
	if err != nil {
		return nil, err
	}
	quantity := p.RequestedQuantity
	if quantity < 1 {
		quantity = 1
	}
	expected, err := pl.Prices.EurCents(project.Name, p.TokenID, quantity)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(charge.Currency, "eur") || charge.AmountCents < expected {
		lib.PaymentsVerified.WithLabelValues(string(types.FLOW_FIAT), "amount_mismatch").Inc()
		return nil, &types.PaymentMismatchError{
			Paid:     decimal.New(charge.AmountCents, -2),
			Expected: decimal.New(expected, -2),
			Symbol:   strings.ToUpper(charge.Currency),
		}
	}
	lib.PaymentsVerified.WithLabelValues(string(types.FLOW_FIAT), "ok").Inc()
	rec, err := pl.Store.Create(ctx, newRecord(p, charge.Reference, types.FLOW_FIAT, email))
	if err != nil {
		return nil, err
	}
	if err := pl.markVerified(ctx, rec); err != nil {
		return nil, err
	}
	if rec.Status != types.TX_CONFIRMED {
		log.Printf("[Pipeline] %s already fulfilled (%s)\n", charge.Reference, rec.Status)
		return recordOutcome(rec, project), nil
	}
	return pl.fulfill(ctx, project, rec)
}

// fulfill delivers a confirmed sale: a download email for email recipients,
// an on-chain distribution otherwise. The admin trace follows either way.
// Nothing is delivered for a record whose payment was never verified.
func (pl *Pipeline) fulfill(ctx context.Context, project *config.Project, rec *models.NFTTransaction) (*Outcome, error) {
	if !rec.Verified() {
		return nil, fmt.Errorf("%w: payment %s was not verified", types.ErrTxNotConfirmed, rec.PaymentReference)
	}
	if utils.IsEmail(rec.Recipient) || rec.DistributionType == types.EmailCode {
		if rec.DownloadCode == "" {
			return nil, fmt.Errorf("%w: %s has no download code", types.ErrInvalidRequest, rec.PaymentReference)
		}
		res := pl.Notifier.SendDownloadEmail(ctx, rec, project)
		next := types.EMAIL_SENT
		if res == types.SEND_ERROR {
			next = types.EMAIL_FAILED
		}
		if rec.CanTransition(next) {
			if err := pl.setStatus(ctx, rec, next); err != nil {
				return nil, err
			}
		}
		pl.Notifier.SendAdminTrace(ctx, rec, project)
		out := recordOutcome(rec, project)
		out.Email = res
		if res == types.SEND_ERROR {
			out.Message = "Your payment is confirmed but the download email could not be sent. Contact us to receive it."
		}
		return out, nil
	}

	first, err := pl.Distributions.MarkSeen(ctx, rec.PaymentReference)
	if err != nil {
		return nil, err
	}
	if !first {
		log.Printf("[Pipeline] %s is already being distributed\n", rec.PaymentReference)
		out := recordOutcome(rec, project)
		out.Message = "This payment is already being processed."
		return out, nil
	}
	hash, err := pl.Dispatcher.Dispatch(ctx, &DistributionRequest{
		Project:   project,
		Type:      distributionTypeFor(rec, project),
		Recipient: rec.Recipient,
		TokenID:   rec.TokenID,
		Quantity:  rec.Quantity,
	})
	if err != nil {
		if ferr := pl.Distributions.Forget(ctx, rec.PaymentReference); ferr != nil {
			log.Printf("[Pipeline] Could not release distribution of %s: %s\n", rec.PaymentReference, ferr.Error())
		}
		return nil, err
	}
	if err := pl.markDistributed(ctx, rec, hash); err != nil {
		return nil, err
	}
	pl.Notifier.SendAdminTrace(ctx, rec, project)
	return recordOutcome(rec, project), nil
}

func distributionTypeFor(rec *models.NFTTransaction, project *config.Project) types.DistributionType {
	if rec.DistributionType.OnChain() {
		return rec.DistributionType
	}
	return project.DistributionType
}

func (pl *Pipeline) markDistributed(ctx context.Context, rec *models.NFTTransaction, hash string) error {
	if err := pl.Store.SetDistribution(ctx, rec.PaymentReference, hash); err != nil {
		log.Printf("[Pipeline] %s distributed in %s but the record was not updated: %s\n", rec.PaymentReference, hash, err.Error())
		return err
	}
	rec.DistributionTxHash = hash
	return pl.setStatus(ctx, rec, types.NFT_DOWNLOADED)
}

// CheckTransaction re-reads a crypto payment and brings its record up to
// date, (re)sending the download email when the recipient is an email.
func (pl *Pipeline) CheckTransaction(ctx context.Context, projectName, hash string) (*Outcome, error) {
	project, err := pl.Catalog.Get(projectName)
	if err != nil {
		return nil, err
	}
	rec, err := pl.Store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if rec.ProjectName != "" {
		if owner, err := pl.Catalog.Get(rec.ProjectName); err != nil || owner.Slug != project.Slug {
			return nil, types.ErrRecordNotFound
		}
	}
	tx, state, err := pl.Crypto.Fetch(ctx, project, hash)
	if err != nil {
		return nil, err
	}
	switch state {
	case types.TX_STATE_PENDING:
		out := recordOutcome(rec, project)
		out.Pending = true
		out.Message = RetryMessage
		return out, nil
	case types.TX_STATE_FAILED:
		if rec.Status == types.TX_PENDING {
			if err := pl.setStatus(ctx, rec, types.TX_FAILED); err != nil {
				return nil, err
			}
		}
		return nil, types.ErrTxFailed
	}

	switch rec.Status {
	case types.TX_FAILED:
		return nil, fmt.Errorf("%w: %s is marked failed", types.ErrInvalidTransition, hash)
	case types.NFT_DOWNLOADED:
		return recordOutcome(rec, project), nil
	}
	if rec.Status == types.TX_PENDING || !rec.Verified() {
		if err := pl.verifyCrypto(ctx, project, rec, tx); err != nil {
			return nil, err
		}
	}
	if !utils.IsEmail(rec.Recipient) && rec.DistributionType != types.EmailCode && rec.DistributionTxHash != "" {
		return recordOutcome(rec, project), nil
	}
	return pl.fulfill(ctx, project, rec)
}

// RedeemDownload claims the NFT of an email sale to the wallet the recipient
// connected. A reference can be redeemed once.
func (pl *Pipeline) RedeemDownload(ctx context.Context, req *types.DownloadRequestBody) (*Outcome, error) {
	ref, code := req.PaymentReference, req.DownloadCode
	if req.Token != "" {
		claims, err := ParseDownloadToken(pl.Notifier.TokenSecret, req.Token)
		if err != nil {
			return nil, err
		}
		ref, code = claims.PaymentReference, claims.DownloadCode
	}
	rec, err := pl.Store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if rec.DownloadCode == "" || subtle.ConstantTimeCompare([]byte(rec.DownloadCode), []byte(code)) != 1 {
		return nil, types.ErrInvalidDownloadCode
	}
	if rec.Status == types.NFT_DOWNLOADED {
		return nil, types.ErrAlreadyDownloaded
	}
	if !rec.CanTransition(types.NFT_DOWNLOADED) {
		return nil, fmt.Errorf("%w: payment %s is %s", types.ErrTxNotConfirmed, ref, rec.Status)
	}
	if !rec.Verified() {
		return nil, fmt.Errorf("%w: payment %s was not verified", types.ErrTxNotConfirmed, ref)
	}
	project, err := pl.Catalog.Get(rec.ProjectName)
	if err != nil {
		return nil, err
	}
	first, err := pl.Redemptions.MarkSeen(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, types.ErrAlreadyDownloaded
	}
	hash, err := pl.Dispatcher.Dispatch(ctx, &DistributionRequest{
		Project:   project,
		Type:      distributionTypeFor(rec, project),
		Recipient: req.WalletAddress,
		TokenID:   rec.TokenID,
		Quantity:  rec.Quantity,
	})
	if err != nil {
		if ferr := pl.Redemptions.Forget(ctx, ref); ferr != nil {
			log.Printf("[Pipeline] Could not release redemption of %s: %s\n", ref, ferr.Error())
		}
		return nil, err
	}
	if err := pl.markDistributed(ctx, rec, hash); err != nil {
		return nil, err
	}
	return recordOutcome(rec, project), nil
}

// ResendDownloadEmail is the manual retry of a download email.
func (pl *Pipeline) ResendDownloadEmail(ctx context.Context, reference string) (*Outcome, error) {
	rec, err := pl.Store.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !utils.IsEmail(rec.Recipient) {
		return nil, types.ErrNotEmailRecipient
	}
	switch rec.Status {
	case types.NFT_DOWNLOADED:
		return nil, types.ErrAlreadyDownloaded
	case types.TX_PENDING, types.TX_FAILED:
		return nil, fmt.Errorf("%w: payment %s is %s", types.ErrTxNotConfirmed, reference, rec.Status)
	}
	project, err := pl.Catalog.Get(rec.ProjectName)
	if err != nil {
		return nil, err
	}
	return pl.fulfill(ctx, project, rec)
}

// CreateRecord stores a record supplied by an operator. The flow follows
// the shape of the reference. Crypto records start TX_PENDING; only the
// check route can confirm them.
func (pl *Pipeline) CreateRecord(ctx context.Context, body *types.CreateNFTTransactionRequestBody) (*models.NFTTransaction, error) {
	project, err := pl.Catalog.Get(body.ProjectName)
	if err != nil {
		return nil, err
	}
	flow := models.FlowForReference(body.PaymentReference)
	status := body.Status
	if status == "" {
		status = models.InitialStatus(flow)
	}
	if !models.ValidInitialStatus(flow, status) {
		return nil, fmt.Errorf("%w: a %s record cannot start in %s", types.ErrInvalidRequest, flow, status)
	}
	rec := &models.NFTTransaction{
		PaymentReference: body.PaymentReference,
		Flow:             flow,
		ProjectName:      project.Name,
		Recipient:        body.Recipient,
		TokenID:          body.TokenID,
		Quantity:         1,
		DistributionType: project.DistributionType,
		OffererName:      body.OffererName,
		Status:           status,
	}
	if utils.IsEmail(body.Recipient) {
		rec.DownloadCode = utils.NewDownloadCode()
	}
	return pl.Store.Create(ctx, rec)
}

// UpdateRecord moves a record along its lifecycle. A crypto record cannot be
// confirmed here: confirmation follows payment verification only.
func (pl *Pipeline) UpdateRecord(ctx context.Context, body *types.UpdateNFTTransactionRequestBody) (bool, error) {
	if !body.Status.Valid() {
		return false, fmt.Errorf("%w: status %q", types.ErrInvalidRequest, body.Status)
	}
	rec, err := pl.Store.Get(ctx, body.PaymentReference)
	if errors.Is(err, types.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Flow == types.FLOW_CRYPTO && !rec.Verified() && body.Status != rec.Status && body.Status != types.TX_FAILED {
		return false, fmt.Errorf("%w: %s payment %s is not verified", types.ErrInvalidTransition, rec.Flow, rec.PaymentReference)
	}
	return pl.Store.UpdateStatus(ctx, body.PaymentReference, body.Status)
}
