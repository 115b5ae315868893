package daraja

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the fixed-width seconds-granularity format the
// gateway expects. The same timestamp used for signing must travel with
// the request so the provider can recompute the signature.
const TimestampLayout = "20060102150405"

// Sign derives the request signature from the merchant shortcode, the
// shared passkey and a pre-formatted timestamp. Pure; fails only on
// empty input.
func Sign(merchantID, passkey, timestamp string) (string, error) {
	if merchantID == "" || passkey == "" || timestamp == "" {
		return "", fmt.Errorf("sign: merchant id, passkey and timestamp are all required")
	}
	raw := merchantID + passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), nil
}

// FormatTimestamp renders t in the gateway's timestamp layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// NormalizeMSISDN rewrites a payer phone number into the gateway's
// international digits-only format: "+254712345678" and "0712345678"
// both become "254712345678".
func NormalizeMSISDN(raw, countryCode string) string {
	msisdn := strings.TrimSpace(raw)
	msisdn = strings.ReplaceAll(msisdn, " ", "")
	msisdn = strings.TrimPrefix(msisdn, "+")
	if strings.HasPrefix(msisdn, "0") {
		msisdn = countryCode + msisdn[1:]
	}
	return msisdn
}
