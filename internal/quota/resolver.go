// Package quota decides which upstream credential pays for a generation.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/promptcraft/promptcraft/internal/apperr"
	"github.com/promptcraft/promptcraft/internal/config"
	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/promptcraft/promptcraft/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Decision is the credential chosen for one generation.
type Decision struct {
	UseShared  bool
	Credential string
	TierID     string
	Quota      int64
	Used       int64
}

// Usage is a user's current tier and counter.
type Usage struct {
	Tier         models.Tier
	Used         int64
	Subscription *models.Subscription
}

// Remaining returns the shared generations left this period.
func (u Usage) Remaining() int64 {
	if left := u.Tier.MonthlyQuota - u.Used; left > 0 {
		return left
	}
	return 0
}

// Resolver applies the shared-quota then bring-your-own-key policy.
type Resolver struct {
	db     *gorm.DB
	shared *config.SharedCredentials
	cipher *security.Cipher
}

// NewResolver constructs a Resolver.
func NewResolver(db *gorm.DB, shared *config.SharedCredentials, cipher *security.Cipher) *Resolver {
	return &Resolver{db: db, shared: shared, cipher: cipher}
}

// LoadUsage returns the user's tier and usage. Users without a subscription row
// are on the free tier with zero usage.
func (r *Resolver) LoadUsage(ctx context.Context, userID string) (Usage, error) {
	var sub models.Subscription
	errFind := r.db.WithContext(ctx).Preload("Tier").Where("user_id = ?", userID).Take(&sub).Error
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return Usage{}, fmt.Errorf("quota: load subscription: %w", errFind)
	}
	if errFind == nil {
		if sub.Tier != nil {
			return Usage{Tier: *sub.Tier, Used: sub.UsageCount, Subscription: &sub}, nil
		}
		log.WithField("tier", sub.TierID).Warn("quota: subscription references missing tier, using free tier")
		free, errFree := r.freeTier(ctx)
		if errFree != nil {
			return Usage{}, errFree
		}
		return Usage{Tier: free, Used: sub.UsageCount, Subscription: &sub}, nil
	}

	free, errFree := r.freeTier(ctx)
	if errFree != nil {
		return Usage{}, errFree
	}
	return Usage{Tier: free}, nil
}

// Resolve picks the shared credential while usage is under quota, otherwise
// the user's own credential for the model's provider.
func (r *Resolver) Resolve(ctx context.Context, userID string, model models.ModelConfig) (Decision, error) {
	usage, errUsage := r.LoadUsage(ctx, userID)
	if errUsage != nil {
		return Decision{}, errUsage
	}
	decision := Decision{TierID: usage.Tier.ID, Quota: usage.Tier.MonthlyQuota, Used: usage.Used}

	if usage.Used < usage.Tier.MonthlyQuota {
		credential, ok := r.shared.Lookup(model.EnvKey)
		if !ok || strings.TrimSpace(credential) == "" {
			return Decision{}, &apperr.ConfigurationError{Name: model.Name}
		}
		decision.UseShared = true
		decision.Credential = credential
		return decision, nil
	}

	credential, found, errCred := r.userCredential(ctx, userID, model.Provider)
	if errCred != nil {
		return Decision{}, errCred
	}
	if !found {
		return Decision{}, &apperr.QuotaExceededError{Quota: usage.Tier.MonthlyQuota}
	}
	if strings.TrimSpace(credential) == "" {
		return Decision{}, &apperr.ConfigurationError{Name: model.Name}
	}
	decision.Credential = credential
	return decision, nil
}

func (r *Resolver) userCredential(ctx context.Context, userID, provider string) (string, bool, error) {
	var cred models.UserCredential
	if errFind := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Take(&cred).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("quota: load user credential: %w", errFind)
	}
	if strings.TrimSpace(cred.EncryptedKey) == "" {
		return "", false, nil
	}
	plain, errOpen := r.cipher.Open(cred.EncryptedKey, security.CredentialAAD(userID, provider))
	if errOpen != nil {
		log.WithError(errOpen).WithField("provider", provider).Warn("quota: open user credential")
		return "", true, nil
	}
	return plain, true, nil
}

func (r *Resolver) freeTier(ctx context.Context) (models.Tier, error) {
	var tier models.Tier
	if errFind := r.db.WithContext(ctx).Where("id = ?", models.FreeTierID).Take(&tier).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.DefaultFreeTier(), nil
		}
		return models.Tier{}, fmt.Errorf("quota: load free tier: %w", errFind)
	}
	return tier, nil
}
