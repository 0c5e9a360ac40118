package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const signatureParam = "signature"

// SignParams computes an HMAC-SHA256 over the sorted key=value pairs,
// excluding the signature parameter itself.
func SignParams(secret string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == signatureParam {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifyParams(secret string, params url.Values) bool {
	got := params.Get(signatureParam)
	if got == "" {
		return false
	}

	want := SignParams(secret, params)
	return hmac.Equal([]byte(got), []byte(want))
}
