package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"nftdrops/src/config"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ethAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	txHashPattern     = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

func IsEthAddress(s string) bool {
	return ethAddressPattern.MatchString(s)
}

func IsTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}

func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func IsProd() bool {
	return config.IsProd()
}

var ethAddressValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	return IsEthAddress(fl.Field().String())
}

var txHashValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	return IsTxHash(fl.Field().String())
}

var walletOrEmailValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	return IsEthAddress(v) || IsEmail(v)
}

// RegisterValidators adds the request tags used by the API bodies.
func RegisterValidators(v *validator.Validate) {
	v.RegisterValidation("ethaddr", ethAddressValidatorFunc)
	v.RegisterValidation("txhash", txHashValidatorFunc)
	v.RegisterValidation("walletoremail", walletOrEmailValidatorFunc)
}

// NewValidator returns a validator reading the same `binding` tags as gin.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	RegisterValidators(v)
	return v
}

func NewDownloadCode() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// ResultURL is the storefront page a buyer lands on after a purchase.
func ResultURL(resultPath string, ok bool, message string) string {
	result := "success"
	if !ok {
		result = "error"
	}
	u := fmt.Sprintf("%s%s?paymentResult=%s", config.AppHost(), resultPath, result)
	if message != "" {
		u += "&message=" + url.QueryEscape(message)
	}
	return u
}

func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 1 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}
