package billing

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"
)

const (
	defaultPriceSyncInterval = 6 * time.Hour
	priceSyncTimeout         = time.Minute
)

// PriceLister lists active prices with their products expanded.
type PriceLister interface {
	ListPrices(ctx context.Context) ([]*stripe.Price, error)
}

// PriceSyncer keeps cached tier prices in line with the billing provider when
// webhook deliveries are missed.
type PriceSyncer struct {
	db       *gorm.DB
	lister   PriceLister
	interval time.Duration
}

// NewPriceSyncer constructs a price syncer.
func NewPriceSyncer(db *gorm.DB, lister PriceLister, interval time.Duration) *PriceSyncer {
	if db == nil || lister == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultPriceSyncInterval
	}
	return &PriceSyncer{db: db, lister: lister, interval: interval}
}

// Start runs the sync loop in the background.
func (s *PriceSyncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("price syncer started (interval=%s)", s.interval)
}

func (s *PriceSyncer) run(ctx context.Context) {
	if _, err := s.SyncOnce(ctx); err != nil {
		log.WithError(err).Warn("price syncer: initial sync failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncOnce(ctx); err != nil {
				log.WithError(err).Warn("price syncer: sync failed")
			}
		}
	}
}

// SyncOnce applies every active price and its product. It returns the number
// of prices that updated a tier.
func (s *PriceSyncer) SyncOnce(ctx context.Context) (int, error) {
	if s == nil || s.db == nil || s.lister == nil {
		return 0, fmt.Errorf("price syncer: not configured")
	}
	requestCtx, cancel := context.WithTimeout(ctx, priceSyncTimeout)
	defer cancel()

	prices, err := s.lister.ListPrices(requestCtx)
	if err != nil {
		return 0, err
	}

	applied := 0
	seenProducts := make(map[string]struct{})
	for _, price := range prices {
		if price == nil || !price.Active {
			continue
		}
		if product := price.Product; product != nil && product.Name != "" {
			if _, seen := seenProducts[product.ID]; !seen {
				seenProducts[product.ID] = struct{}{}
				if _, errProduct := ApplyProduct(requestCtx, s.db, product); errProduct != nil {
					return applied, errProduct
				}
			}
		}
		outcome, errPrice := ApplyPrice(requestCtx, s.db, price)
		if errPrice != nil {
			return applied, errPrice
		}
		if outcome == OutcomeApplied {
			applied++
		}
	}
	log.Debugf("price syncer: %d of %d prices applied", applied, len(prices))
	return applied, nil
}
