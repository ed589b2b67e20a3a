package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrEmptySecret = errors.New("signing secret is empty")

// Param is a single query parameter.
type Param struct {
	Key   string
	Value string
}

// SignedQuery is a sorted parameter list plus the signature computed over it.
// Signature holds the raw base64 digest; Encode percent-encodes it.
type SignedQuery struct {
	Params    []Param
	Signature string
}

// Canonical returns the sorted, encoded query string the signature covers.
func (q *SignedQuery) Canonical() string {
	return canonicalize(q.Params)
}

// Encode returns the query string as it must be transmitted.
func (q *SignedQuery) Encode() string {
	return q.Canonical() + "&Signature=" + PercentEncode(q.Signature)
}

// Sign canonicalizes params and computes the HMAC-SHA1 signature the NLS
// meta endpoint expects: base64(hmac(secret+"&", METHOD&%2F&enc(canonical))).
func Sign(method string, params map[string]string, secret string) (*SignedQuery, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	sorted := sortParams(params)
	toSign := StringToSign(method, canonicalize(sorted))

	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(toSign))

	return &SignedQuery{
		Params:    sorted,
		Signature: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	}, nil
}

// CanonicalQuery joins enc(key)=enc(value) pairs in ascending key order.
func CanonicalQuery(params map[string]string) string {
	return canonicalize(sortParams(params))
}

func StringToSign(method, canonical string) string {
	return strings.ToUpper(method) + "&" + PercentEncode("/") + "&" + PercentEncode(canonical)
}

// PercentEncode encodes s per RFC 3986. Unreserved characters
// (A-Z a-z 0-9 - _ . ~) are kept, every other UTF-8 byte becomes %XX.
func PercentEncode(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	for _, b := range []byte(s) {
		if isUnreserved(b) {
			buf.WriteByte(b)
		} else {
			fmt.Fprintf(&buf, "%%%02X", b)
		}
	}
	return buf.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' || c == '~'
}

func sortParams(params map[string]string) []Param {
	sorted := make([]Param, 0, len(params))
	for k, v := range params {
		sorted = append(sorted, Param{Key: k, Value: v})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	return sorted
}

func canonicalize(params []Param) string {
	pairs := make([]string, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, PercentEncode(p.Key)+"="+PercentEncode(p.Value))
	}
	return strings.Join(pairs, "&")
}
