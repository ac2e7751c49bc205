package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bitbonsai/license-server/internal/keys"
	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"github.com/bitbonsai/license-server/internal/license/repository"
	pricingdomain "github.com/bitbonsai/license-server/internal/pricing/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type pricingStub struct {
	limits map[licensedomain.Tier]licensedomain.Limits
}

func (p *pricingStub) ListTiers(ctx context.Context, activeOnly bool) ([]pricingdomain.PricingTier, error) {
	return nil, nil
}

func (p *pricingStub) GetByName(ctx context.Context, name string) (*pricingdomain.PricingTier, error) {
	return nil, pricingdomain.ErrTierNotFound
}

func (p *pricingStub) GetByStripePriceID(ctx context.Context, priceID string) (*pricingdomain.PricingTier, error) {
	return nil, pricingdomain.ErrTierNotFound
}

func (p *pricingStub) Create(ctx context.Context, req pricingdomain.CreateRequest) (*pricingdomain.PricingTier, error) {
	return nil, nil
}

func (p *pricingStub) Update(ctx context.Context, id snowflake.ID, req pricingdomain.UpdateRequest) (*pricingdomain.PricingTier, error) {
	return nil, nil
}

func (p *pricingStub) Publish(ctx context.Context, id snowflake.ID, req pricingdomain.PublishRequest) (*pricingdomain.PricingTier, error) {
	return nil, nil
}

func (p *pricingStub) Deactivate(ctx context.Context, id snowflake.ID) (*pricingdomain.PricingTier, error) {
	return nil, nil
}

func (p *pricingStub) MapPatreonTier(ctx context.Context, id snowflake.ID, patreonTierID string) (*pricingdomain.PricingTier, error) {
	return nil, nil
}

func (p *pricingStub) TierLimits(ctx context.Context, tier licensedomain.Tier) (licensedomain.Limits, bool) {
	if p.limits != nil {
		if limits, ok := p.limits[tier]; ok {
			return limits, true
		}
	}
	limits, ok := licensedomain.FallbackLimits[tier]
	return limits, ok
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func setupLicenseService(t *testing.T, pricing pricingdomain.Service) (licensedomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	prepareLicenseSchema(t, db)

	manager, err := keys.Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("open keys: %v", err)
	}

	service := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   mustNode(t),
		Keys:    manager,
		Repo:    repository.Provide(),
		Pricing: pricing,
	})
	return service, db
}

func prepareLicenseSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`CREATE TABLE licenses (
		id INTEGER PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		tier TEXT NOT NULL,
		max_nodes INTEGER NOT NULL,
		max_concurrent_jobs INTEGER NOT NULL,
		expires_at DATETIME,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		provider TEXT NOT NULL DEFAULT 'MANUAL',
		provider_customer_id TEXT,
		provider_email TEXT,
		revoked_at DATETIME,
		revoked_reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create licenses table: %v", err)
	}
}

func TestCreateUsesTierLimits(t *testing.T) {
	service, _ := setupLicenseService(t, &pricingStub{})

	license, err := service.Create(context.Background(), licensedomain.CreateRequest{
		Email: "user@example.com",
		Tier:  "PATREON_PRO",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if license.Tier != licensedomain.TierPatreonPro {
		t.Fatalf("expected PATREON_PRO, got %s", license.Tier)
	}
	if license.MaxNodes != 5 || license.MaxConcurrentJobs != 10 {
		t.Fatalf("expected limits 5/10, got %d/%d", license.MaxNodes, license.MaxConcurrentJobs)
	}
	if !strings.HasPrefix(license.Key, "BITBONSAI-PAT-") {
		t.Fatalf("unexpected key prefix: %s", license.Key)
	}
	if license.Provider != licensedomain.ProviderManual {
		t.Fatalf("expected MANUAL provider, got %s", license.Provider)
	}
}

func TestCreateHonorsOverrides(t *testing.T) {
	service, _ := setupLicenseService(t, &pricingStub{})

	nodes, jobs := 7, 14
	license, err := service.Create(context.Background(), licensedomain.CreateRequest{
		Email:             "user@example.com",
		Tier:              "FREE",
		MaxNodes:          &nodes,
		MaxConcurrentJobs: &jobs,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if license.MaxNodes != 7 || license.MaxConcurrentJobs != 14 {
		t.Fatalf("expected overridden limits 7/14, got %d/%d", license.MaxNodes, license.MaxConcurrentJobs)
	}
}

func TestCreatePrefersPricingRowLimits(t *testing.T) {
	pricing := &pricingStub{
		limits: map[licensedomain.Tier]licensedomain.Limits{
			licensedomain.TierCommercialStarter: {MaxNodes: 20, MaxConcurrentJobs: 40},
		},
	}
	service, _ := setupLicenseService(t, pricing)

	license, err := service.Create(context.Background(), licensedomain.CreateRequest{
		Email: "user@example.com",
		Tier:  "COMMERCIAL_STARTER",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if license.MaxNodes != 20 || license.MaxConcurrentJobs != 40 {
		t.Fatalf("expected pricing limits 20/40, got %d/%d", license.MaxNodes, license.MaxConcurrentJobs)
	}
}

func TestCreateValidation(t *testing.T) {
	service, _ := setupLicenseService(t, &pricingStub{})

	if _, err := service.Create(context.Background(), licensedomain.CreateRequest{
		Email: "not-an-email",
		Tier:  "FREE",
	}); !errors.Is(err, licensedomain.ErrInvalidEmail) {
		t.Fatalf("expected invalid email error, got %v", err)
	}

	if _, err := service.Create(context.Background(), licensedomain.CreateRequest{
		Email: "user@example.com",
		Tier:  "DIAMOND",
	}); !errors.Is(err, licensedomain.ErrUnknownTier) {
		t.Fatalf("expected unknown tier error, got %v", err)
	}
}

func TestVerifyValid(t *testing.T) {
	service, _ := setupLicenseService(t, &pricingStub{})

	license, err := service.Create(context.Background(), licensedomain.CreateRequest{
		Email: "user@example.com",
		Tier:  "COMMERCIAL_PRO",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := service.Verify(context.Background(), license.Key)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid, got error %q", result.Error)
	}
	if result.License == nil || result.License.Tier != licensedomain.TierCommercialPro {
		t.Fatalf("expected payload tier COMMERCIAL_PRO, got %+v", result.License)
	}
	if result.License.MaxNodes != 50 || result.License.MaxConcurrentJobs != 100 {
		t.Fatalf("expected payload limits 50/100, got %d/%d",
			result.License.MaxNodes, result.License.MaxConcurrentJobs)
	}
}

func TestVerifyBadSignature(t *testing.T) {
	service, _ := setupLicenseService(t, &pricingStub{})

	for _, key := range []string{"", "garbage", "BITBONSAI-FRE-abc.def"} {
		result, err := service.Verify(context.Background(), key)
		if err != nil {
			t.Fatalf("verify %q: %v", key, err)
		}
		if result.Valid {
			t.Fatalf("expected %q to be invalid", key)
		}
		if result.Error != "Invalid license key signature" {
			t.Fatalf("expected signature error, got %q", result.Error)
		}
	}
}

func TestVerifyExpired(t *testing.T) {
	service, _ := setupLicenseService(t, &pricingStub{})

	expired := time.Now().UTC().Add(-time.Hour)
	license, err := service.Create(context.Background(), licensedomain.CreateRequest{
		Email:     "user@example.com",
		Tier:      "FREE",
		ExpiresAt: &expired,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := service.Verify(context.Background(), license.Key)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected expired license to be invalid")
	}
	if result.Error != "License expired" {
		t.Fatalf("expected expiry error, got %q", result.Error)
	}
}

func TestVerifyRevoked(t *testing.T) {
	service, _ := setupLicenseService(t, &pricingStub{})

	license, err := service.Create(context.Background(), licensedomain.CreateRequest{
		Email: "user@example.com",
		Tier:  "FREE",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Revoke(context.Background(), license.ID, "chargeback"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	result, err := service.Verify(context.Background(), license.Key)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected revoked license to be invalid")
	}
	if result.Error != "License revoked" {
		t.Fatalf("expected revocation error, got %q", result.Error)
	}
}

func TestVerifyStoreUnavailable(t *testing.T) {
	service, db := setupLicenseService(t, &pricingStub{})

	license, err := service.Create(context.Background(), licensedomain.CreateRequest{
		Email: "user@example.com",
		Tier:  "FREE",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := db.Exec("DROP TABLE licenses").Error; err != nil {
		t.Fatalf("drop table: %v", err)
	}

	result, err := service.Verify(context.Background(), license.Key)
	if err == nil {
		t.Fatalf("expected an error when the status lookup fails")
	}
	if result.Valid || result.Error != "" {
		t.Fatalf("lookup failure must not produce a verdict, got %+v", result)
	}
}

func TestRevokeTwice(t *testing.T) {
	service, _ := setupLicenseService(t, &pricingStub{})

	license, err := service.Create(context.Background(), licensedomain.CreateRequest{
		Email: "user@example.com",
		Tier:  "FREE",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	revoked, err := service.Revoke(context.Background(), license.ID, "abuse")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Status != licensedomain.StatusRevoked {
		t.Fatalf("expected REVOKED status, got %s", revoked.Status)
	}
	if revoked.RevokedReason == nil || *revoked.RevokedReason != "abuse" {
		t.Fatalf("expected reason to be recorded, got %v", revoked.RevokedReason)
	}

	if _, err := service.Revoke(context.Background(), license.ID, "again"); !errors.Is(err, licensedomain.ErrAlreadyRevoked) {
		t.Fatalf("expected already revoked error, got %v", err)
	}

	if _, err := service.Revoke(context.Background(), mustNode(t).Generate(), "ghost"); !errors.Is(err, licensedomain.ErrLicenseNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestUpgradeFromWebhook(t *testing.T) {
	service, _ := setupLicenseService(t, &pricingStub{})

	created, err := service.CreateFromWebhook(context.Background(), licensedomain.WebhookCreateRequest{
		Email:              "patron@example.com",
		Tier:               licensedomain.TierPatreonSupporter,
		Provider:           licensedomain.ProviderPatreon,
		ProviderCustomerID: "member_1",
	})
	if err != nil {
		t.Fatalf("create from webhook: %v", err)
	}

	upgraded, err := service.UpgradeFromWebhook(
		context.Background(), licensedomain.ProviderPatreon, "member_1", licensedomain.TierPatreonUltimate)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if upgraded == nil {
		t.Fatalf("expected upgraded license")
	}
	if upgraded.ID != created.ID {
		t.Fatalf("expected same license record, got %s vs %s", upgraded.ID, created.ID)
	}
	if upgraded.Tier != licensedomain.TierPatreonUltimate {
		t.Fatalf("expected PATREON_ULTIMATE, got %s", upgraded.Tier)
	}
	if upgraded.MaxNodes != 10 || upgraded.MaxConcurrentJobs != 20 {
		t.Fatalf("expected limits 10/20, got %d/%d", upgraded.MaxNodes, upgraded.MaxConcurrentJobs)
	}
	if upgraded.Key == created.Key {
		t.Fatalf("expected a freshly minted key on upgrade")
	}

	// The replacement token carries the new entitlements.
	result, err := service.Verify(context.Background(), upgraded.Key)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected upgraded key to verify, got %q", result.Error)
	}
	if result.License.Tier != licensedomain.TierPatreonUltimate {
		t.Fatalf("expected payload tier PATREON_ULTIMATE, got %s", result.License.Tier)
	}
}

func TestUpgradeUnknownCustomer(t *testing.T) {
	service, _ := setupLicenseService(t, &pricingStub{})

	license, err := service.UpgradeFromWebhook(
		context.Background(), licensedomain.ProviderStripe, "cus_missing", licensedomain.TierCommercialPro)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if license != nil {
		t.Fatalf("expected nil license for unknown customer, got %+v", license)
	}
}
