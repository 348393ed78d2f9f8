package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const codeDate = "20060102"

var batchCodePattern = regexp.MustCompile(`^(\d{8})-(.+)-([0-9A-F]{4})$`)

// BatchCode builds an internal batch code: YYYYMMDD-SKU-XXXX.
func BatchCode(at time.Time, sku string) string {
	return fmt.Sprintf("%s-%s-%s", at.UTC().Format(codeDate), strings.ToUpper(sku), randomSuffix())
}

// OpCode builds a production order code: PREFIX-YYYYMMDD-XXXX.
func OpCode(prefix string, at time.Time) string {
	if prefix == "" {
		prefix = "OP"
	}
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format(codeDate), randomSuffix())
}

// ParseBatchCode splits a batch code into its date and SKU.
func ParseBatchCode(code string) (time.Time, string, error) {
	m := batchCodePattern.FindStringSubmatch(code)
	if m == nil {
		return time.Time{}, "", fmt.Errorf("invalid batch code %q", code)
	}
	day, err := time.Parse(codeDate, m[1])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid batch code date: %w", err)
	}
	return day, m[2], nil
}

func randomSuffix() string {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "0000"
	}
	return strings.ToUpper(hex.EncodeToString(b[:]))
}
