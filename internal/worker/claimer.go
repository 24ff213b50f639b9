package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/epivar-cloud/epivar/internal/metrics"
	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/internal/pipeline"
)

// Claimer hands out pending studies under a node lease. At
// most one node holds a study at a time; leases left behind
// by a crashed node expire and the study is reclaimed.
type Claimer struct {
	nodeID   string
	db       *gorm.DB
	leaseTTL time.Duration
}

func NewClaimer(nodeID string, conn *gorm.DB, leaseTTL time.Duration) *Claimer {
	if conn == nil {
		panic("worker claimer requires a database connection")
	}
	if strings.TrimSpace(nodeID) == "" {
		nodeID = "unknown-node"
	}
	if leaseTTL <= 0 {
		leaseTTL = pipeline.DefaultLeaseTTL
	}

	return &Claimer{
		nodeID:   nodeID,
		db:       conn,
		leaseTTL: leaseTTL,
	}
}

// ClaimNext claims one pending study, or returns nil when
// none are available.
func (c *Claimer) ClaimNext(ctx context.Context) (*models.Study, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	leaseExpiry := now.Add(c.leaseTTL)
	var claimed *models.Study

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []models.Study
		err := tx.
			Where(
				"status = ? AND (claimed_by = '' OR claim_expires_at IS NULL OR claim_expires_at < ?)",
				string(models.IntegrationPending),
				now,
			).
			Order("created_at ASC").
			Limit(64).
			Find(&candidates).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		for _, candidate := range candidates {
			result := tx.Model(&models.Study{}).
				Where(
					"id = ? AND status = ? AND (claimed_by = '' OR claim_expires_at IS NULL OR claim_expires_at < ?)",
					candidate.ID,
					string(models.IntegrationPending),
					now,
				).
				Updates(map[string]interface{}{
					"claimed_by":       c.nodeID,
					"claim_expires_at": leaseExpiry,
					"claim_attempt":    candidate.ClaimAttempt + 1,
				})
			if result.Error != nil {
				if isClaimContentionErr(result.Error) {
					metrics.WorkerClaimContentionTotal.WithLabelValues(c.nodeID).Inc()
				}
				return result.Error
			}
			if result.RowsAffected == 0 {
				// Another node won the race.
				metrics.WorkerClaimContentionTotal.WithLabelValues(c.nodeID).Inc()
				continue
			}

			claimedStudy := &models.Study{}
			if err := tx.First(claimedStudy, "id = ?", candidate.ID).Error; err != nil {
				return err
			}
			claimed = claimedStudy
			break
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed != nil {
		metrics.WorkerClaimsTotal.WithLabelValues(c.nodeID).Inc()
	}

	return claimed, nil
}

// ReclaimExpired returns running studies whose lease expired
// to the pending queue so another node can pick them up.
func (c *Claimer) ReclaimExpired(ctx context.Context) error {
	now := time.Now().UTC()
	result := c.db.WithContext(ctx).
		Model(&models.Study{}).
		Where(
			"status = ? AND claim_expires_at IS NOT NULL AND claim_expires_at < ?",
			string(models.IntegrationRunning),
			now,
		).
		Updates(map[string]interface{}{
			"status":           string(models.IntegrationPending),
			"claimed_by":       "",
			"claim_expires_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		metrics.WorkerLeaseExpirationsTotal.WithLabelValues(c.nodeID).Add(float64(result.RowsAffected))
	}
	return nil
}

func isClaimContentionErr(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
