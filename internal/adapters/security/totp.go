package security

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

const (
	totpPeriod     = 30
	totpSkew       = 2
	totpSecretSize = 20
	qrCodeSize     = 200
)

// TOTPAuthenticator generates and validates RFC 6238 codes. Validation accepts
// codes up to two steps either side of the current window.
type TOTPAuthenticator struct {
	issuer string
}

func NewTOTPAuthenticator(issuer string) *TOTPAuthenticator {
	if issuer == "" {
		issuer = "Inspection Auth"
	}
	return &TOTPAuthenticator{issuer: issuer}
}

func (a *TOTPAuthenticator) Enroll(accountName string) (ports.TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      a.issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return ports.TOTPEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return ports.TOTPEnrollment{}, fmt.Errorf("render totp qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ports.TOTPEnrollment{}, fmt.Errorf("encode totp qr code: %w", err)
	}

	return ports.TOTPEnrollment{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRCode:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

func (a *TOTPAuthenticator) Validate(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
