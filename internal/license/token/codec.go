// Package token encodes signed license payloads into the distributable
// BITBONSAI key format and strictly parses them back.
package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bitbonsai/license-server/internal/keys"
	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
)

const prefix = "BITBONSAI-"

// b64 is base64url without padding. The alphabet contains no '.', which is
// what makes the payload/signature delimiter unambiguous.
var b64 = base64.RawURLEncoding

// SignedLicense is a successfully decoded and signature-verified token.
type SignedLicense struct {
	Payload   licensedomain.Payload
	Signature []byte
}

// Codec turns payloads into tokens and back. It is stateless apart from the
// keypair and safe for concurrent use.
type Codec struct {
	keys *keys.Manager
}

func NewCodec(km *keys.Manager) *Codec {
	return &Codec{keys: km}
}

// Encode serializes payload to its canonical JSON bytes, signs them and
// assembles the token. Serialization is deterministic: re-encoding a decoded
// payload signs byte-identical input.
func (c *Codec) Encode(payload licensedomain.Payload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	signature := c.keys.Sign(raw)

	return fmt.Sprintf("%s%s-%s.%s",
		prefix,
		payload.Tier.Prefix(),
		b64.EncodeToString(raw),
		b64.EncodeToString(signature),
	), nil
}

// Decode parses and verifies a token. It returns nil for anything that is
// not a well-formed, authentically signed token; malformed and tampered
// input are deliberately indistinguishable. The payload is only parsed
// after the signature has been verified.
func (c *Codec) Decode(key string) *SignedLicense {
	if !strings.HasPrefix(key, prefix) {
		return nil
	}

	rest := key[len(prefix):]
	hyphen := strings.IndexByte(rest, '-')
	if hyphen == -1 {
		return nil
	}
	body := rest[hyphen+1:]

	dot := strings.LastIndexByte(body, '.')
	if dot == -1 {
		return nil
	}

	payloadB64 := body[:dot]
	signatureB64 := body[dot+1:]
	if payloadB64 == "" || signatureB64 == "" {
		return nil
	}

	raw, err := b64.DecodeString(payloadB64)
	if err != nil {
		return nil
	}
	signature, err := b64.DecodeString(signatureB64)
	if err != nil {
		return nil
	}

	if !c.keys.Verify(raw, signature) {
		return nil
	}

	var payload licensedomain.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}

	return &SignedLicense{Payload: payload, Signature: signature}
}
