package tradernet

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Credentials 包含 API 凭证和签名方法
type Credentials struct {
	apiKey    string
	apiSecret string
}

func NewCredentials(apiKey, apiSecret string) *Credentials {
	return &Credentials{apiKey: apiKey, apiSecret: apiSecret}
}

// Sign 生成 HMAC-SHA256 签名 (hex)
func (c *Credentials) Sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Credentials) APIKey() string {
	return c.apiKey
}

// signaturePayload builds "apiKey=..&cmd=..&nonce=..[&params=k=v&k=v]".
// Params are joined in key order so the payload is deterministic.
func signaturePayload(apiKey, cmd, nonce string, params map[string]string) string {
	var b strings.Builder
	b.WriteString("apiKey=" + apiKey + "&cmd=" + cmd + "&nonce=" + nonce)
	if len(params) == 0 {
		return b.String()
	}
	keys := sortedKeys(params)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	b.WriteString("&params=" + strings.Join(pairs, "&"))
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
