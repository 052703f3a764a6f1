// Package codec implements the upstream's request encryption scheme and
// its "sign" slot-nonce decoding.
//
// Every order-placement request is encrypted with a fresh per-request
// AES-128-ECB key; that key and the millisecond timestamp are in turn
// RSA-encrypted with the upstream's published public key and carried in
// the "sid"/"tim" headers. No RSA/AES client library appears anywhere
// in the retrieved example corpus, so this package is built directly on
// crypto/aes, crypto/cipher, crypto/rsa and crypto/x509 — the corpus
// gives no third-party alternative to ground a library choice on.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"
)

// GenerateAESKey produces a 16-character key drawn from uppercase
// letters and digits, matching the upstream's expected key shape.
func GenerateAESKey() (string, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("codec: read random bytes: %w", err)
	}
	key := make([]byte, 16)
	for i, b := range buf {
		key[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(key), nil
}

// pkcs7Pad pads data to a multiple of blockSize per PKCS#7.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

// AESEncryptECB encrypts plaintext under key using AES-128 in ECB mode
// with PKCS#7 padding, returning the base64-encoded ciphertext. ECB is
// the upstream's chosen mode, not a security recommendation; crypto/cipher
// intentionally omits an ECB implementation, so it is hand-rolled here,
// block by block, directly on top of the cipher.Block returned by
// aes.NewCipher.
func AESEncryptECB(key, plaintext string) (string, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("codec: new AES cipher: %w", err)
	}
	padded := pkcs7Pad([]byte(plaintext), block.BlockSize())
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], padded[i:i+block.BlockSize()])
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Encryptor holds the upstream's RSA public key and encrypts small
// values (AES keys, timestamps) with PKCS#1 v1.5, matching the
// upstream's own scheme.
type Encryptor struct {
	pub *rsa.PublicKey
}

// NewEncryptor parses a PEM-encoded RSA public key. It never panics: a
// missing or malformed key yields an *Encryptor without a key, for which
// Valid reports false and RSA encryption returns an error.
func NewEncryptor(publicKeyPEM string) *Encryptor {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return &Encryptor{}
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return &Encryptor{}
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return &Encryptor{}
	}
	return &Encryptor{pub: rsaKey}
}

// Valid reports whether the encryptor was constructed from a usable key.
func (e *Encryptor) Valid() bool { return e.pub != nil }

// RSAEncrypt encrypts data with PKCS#1 v1.5 and returns it base64-encoded.
func (e *Encryptor) RSAEncrypt(data string) (string, error) {
	if e.pub == nil {
		return "", errors.New("codec: encryptor has no public key")
	}
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, e.pub, []byte(data))
	if err != nil {
		return "", fmt.Errorf("codec: rsa encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecodedSign is the parsed contents of a slot's base64 "sign" field.
type DecodedSign struct {
	Start string
	End   string
	Date  string
}

var timeRangeRE = regexp.MustCompile(`(\d{1,2}:\d{2})\s*-\s*(\d{1,2}:\d{2})`)
var twoTimesRE = regexp.MustCompile(`(\d{1,2}:\d{2}).*?(\d{1,2}:\d{2})`)

// DecodeSign base64-decodes a slot's sign token and tries, in order: a
// JSON object carrying start/end/date fields under any of their known
// aliases, then a regex scan for two HH:MM tokens in free text. This
// mirrors _decode_sign in the upstream Python client.
func DecodeSign(sign string) (DecodedSign, bool) {
	raw, err := base64.StdEncoding.DecodeString(sign)
	if err != nil {
		return DecodedSign{}, false
	}
	text := string(raw)

	if gjson.Valid(text) {
		parsed := gjson.Parse(text)
		if parsed.IsObject() {
			d := DecodedSign{
				Start: firstNonEmpty(parsed, "startTime", "start", "beginTime"),
				End:   firstNonEmpty(parsed, "endTime", "end", "finishTime"),
				Date:  firstNonEmpty(parsed, "date", "reserveDate"),
			}
			if d.Start != "" && d.End != "" {
				return d, true
			}
		}
	}

	if m := timeRangeRE.FindStringSubmatch(text); m != nil {
		return DecodedSign{Start: m[1], End: m[2]}, true
	}
	if m := twoTimesRE.FindStringSubmatch(text); m != nil {
		return DecodedSign{Start: m[1], End: m[2]}, true
	}
	return DecodedSign{}, false
}

func firstNonEmpty(result gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := result.Get(k); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// EncodeSignForTest base64-encodes raw text into a sign token. Exported
// only for tests exercising DecodeSign's round trip; production code
// never constructs signs, it only decodes ones the upstream issues.
func EncodeSignForTest(raw string) string {
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
