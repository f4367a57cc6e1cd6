package model

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	BookingGuestCodePrefix = "BG-"
	PackageGuestCodePrefix = "PG-"

	scanCodeLength  = 8
	scanCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var (
	bookingGuestCodePattern = regexp.MustCompile(`^BG-[A-Za-z0-9]{8}$`)
	packageGuestCodePattern = regexp.MustCompile(`^PG-[A-Za-z0-9]{8}$`)
)

func IsBookingGuestCode(code string) bool {
	return bookingGuestCodePattern.MatchString(code)
}

func IsPackageGuestCode(code string) bool {
	return packageGuestCodePattern.MatchString(code)
}

// GenerateScanCode prefix + 8 碼英數 (crypto/rand)
func GenerateScanCode(prefix string) (string, error) {
	var sb strings.Builder
	sb.WriteString(prefix)
	alphaLen := big.NewInt(int64(len(scanCodeCharset)))
	for i := 0; i < scanCodeLength; i++ {
		num, err := rand.Int(rand.Reader, alphaLen)
		if err != nil {
			return "", err
		}
		sb.WriteByte(scanCodeCharset[num.Int64()])
	}
	return sb.String(), nil
}

// NormalizeLiteralCode 文字查詢前去空白，比對時不分大小寫
func NormalizeLiteralCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
