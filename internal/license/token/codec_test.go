package token

import (
	"strings"
	"testing"
	"time"

	"github.com/bitbonsai/license-server/internal/keys"
	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"go.uber.org/zap"
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	manager, err := keys.Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("open keys: %v", err)
	}
	return NewCodec(manager)
}

func samplePayload(tier licensedomain.Tier) licensedomain.Payload {
	return licensedomain.Payload{
		Email:             "user@example.com",
		Tier:              tier,
		MaxNodes:          5,
		MaxConcurrentJobs: 10,
		IssuedAt:          time.Now().UTC().Truncate(time.Second),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := newCodec(t)

	expires := time.Now().UTC().Add(365 * 24 * time.Hour).Truncate(time.Second)
	payload := samplePayload(licensedomain.TierPatreonPro)
	payload.ExpiresAt = &expires

	key, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	signed := codec.Decode(key)
	if signed == nil {
		t.Fatalf("expected decode to succeed")
	}
	got := signed.Payload
	if got.Email != payload.Email {
		t.Fatalf("expected email %s, got %s", payload.Email, got.Email)
	}
	if got.Tier != payload.Tier {
		t.Fatalf("expected tier %s, got %s", payload.Tier, got.Tier)
	}
	if got.MaxNodes != payload.MaxNodes || got.MaxConcurrentJobs != payload.MaxConcurrentJobs {
		t.Fatalf("expected limits %d/%d, got %d/%d",
			payload.MaxNodes, payload.MaxConcurrentJobs, got.MaxNodes, got.MaxConcurrentJobs)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("expected expiry %v, got %v", expires, got.ExpiresAt)
	}
	if !got.IssuedAt.Equal(payload.IssuedAt) {
		t.Fatalf("expected issued at %v, got %v", payload.IssuedAt, got.IssuedAt)
	}
}

func TestTokenTierPrefix(t *testing.T) {
	codec := newCodec(t)

	tests := []struct {
		tier licensedomain.Tier
		want string
	}{
		{licensedomain.TierFree, "BITBONSAI-FRE-"},
		{licensedomain.TierPatreonSupporter, "BITBONSAI-PAT-"},
		{licensedomain.TierCommercialEnterprise, "BITBONSAI-COM-"},
	}

	for _, tt := range tests {
		key, err := codec.Encode(samplePayload(tt.tier))
		if err != nil {
			t.Fatalf("encode %s: %v", tt.tier, err)
		}
		if !strings.HasPrefix(key, tt.want) {
			t.Fatalf("tier %s: expected prefix %s, got %s", tt.tier, tt.want, key)
		}
	}
}

func TestDecodeRejectsTamper(t *testing.T) {
	codec := newCodec(t)

	key, err := codec.Encode(samplePayload(licensedomain.TierCommercialPro))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Swap a payload byte while keeping base64url valid.
	body := []byte(key)
	idx := len("BITBONSAI-COM-")
	if body[idx] != 'A' {
		body[idx] = 'A'
	} else {
		body[idx] = 'B'
	}
	if codec.Decode(string(body)) != nil {
		t.Fatalf("expected tampered payload to be rejected")
	}

	// Truncate the signature.
	dot := strings.LastIndexByte(key, '.')
	if codec.Decode(key[:dot+5]) != nil {
		t.Fatalf("expected truncated signature to be rejected")
	}
}

func TestDecodeRejectsForeignKey(t *testing.T) {
	codec := newCodec(t)
	other := newCodec(t)

	key, err := other.Encode(samplePayload(licensedomain.TierFree))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if codec.Decode(key) != nil {
		t.Fatalf("expected token signed by another keypair to be rejected")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	codec := newCodec(t)

	inputs := []string{
		"",
		"not-a-key",
		"BITBONSAI-",
		"BITBONSAI-FRE",
		"BITBONSAI-FRE-",
		"BITBONSAI-FRE-nodot",
		"BITBONSAI-FRE-.sig",
		"BITBONSAI-FRE-payload.",
		"BITBONSAI-FRE-!!!.!!!",
		"bitbonsai-FRE-abc.def",
	}

	for _, input := range inputs {
		if codec.Decode(input) != nil {
			t.Fatalf("expected %q to be rejected", input)
		}
	}
}

func TestEncodeDeterministic(t *testing.T) {
	codec := newCodec(t)
	payload := samplePayload(licensedomain.TierPatreonPlus)

	first, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("encode again: %v", err)
	}
	if first != second {
		t.Fatalf("expected deterministic encoding, got\n%s\n%s", first, second)
	}
}
