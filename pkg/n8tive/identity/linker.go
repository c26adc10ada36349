package identity

import (
	"strings"
	"time"

	"github.com/n8tive/platform/pkg/n8tive/config"
	"github.com/n8tive/platform/pkg/n8tive/models"
	"github.com/n8tive/platform/pkg/n8tive/permissions"
	"github.com/n8tive/platform/pkg/n8tive/subscriptions"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Linker maps external identity-provider principals onto local users.
type Linker struct {
	db  *gorm.DB
	cfg *config.Config
	log zerolog.Logger
}

// NewLinker creates a linker.
func NewLinker(db *gorm.DB, cfg *config.Config, log zerolog.Logger) *Linker {
	return &Linker{db: db, cfg: cfg, log: log}
}

// SyncInput is one identity observation from the external provider.
type SyncInput struct {
	PrincipalID  string
	Email        string
	Name         string
	AuthProvider string
}

// ResolveOrCreate resolves the input to exactly one local user.
//
// Resolution order: exact principal-id match first, then exact email match
// (which attaches the principal to the email-anchored row), then a fresh row.
// When a principal row and a distinct email row both exist they are merged:
// the email-anchored row keeps its local id, grants and subscriptions, and the
// stale principal row is soft-deleted.
func (l *Linker) ResolveOrCreate(in SyncInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	principalID := strings.TrimSpace(in.PrincipalID)
	now := time.Now()

	var resolved *models.User
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var byPrincipal models.User
		principalErr := tx.Where("principal_id = ?", principalID).First(&byPrincipal).Error

		if principalErr == nil {
			if strings.EqualFold(byPrincipal.Email, email) {
				updates := map[string]interface{}{"last_seen_at": now}
				if in.Name != "" {
					updates["name"] = in.Name
				}
				if in.AuthProvider != "" {
					updates["auth_provider"] = in.AuthProvider
				}
				if err := tx.Model(&byPrincipal).Updates(updates).Error; err != nil {
					return err
				}
				resolved = &byPrincipal
				return nil
			}

			// The principal now reports a different email. If another row
			// already anchors that email, merge into it; otherwise follow the
			// email change on the principal row.
			var byEmail models.User
			if err := tx.Where("email = ?", email).First(&byEmail).Error; err == nil && byEmail.ID != byPrincipal.ID {
				if err := tx.Model(&byPrincipal).Update("principal_id", nil).Error; err != nil {
					return err
				}
				if err := tx.Delete(&byPrincipal).Error; err != nil {
					return err
				}
				return l.attachPrincipal(tx, &byEmail, principalID, in, now, &resolved)
			}

			updates := map[string]interface{}{"email": email, "last_seen_at": now}
			if in.Name != "" {
				updates["name"] = in.Name
			}
			if err := tx.Model(&byPrincipal).Updates(updates).Error; err != nil {
				return err
			}
			byPrincipal.Email = email
			resolved = &byPrincipal
			return nil
		}

		var byEmail models.User
		if err := tx.Where("email = ?", email).First(&byEmail).Error; err == nil {
			return l.attachPrincipal(tx, &byEmail, principalID, in, now, &resolved)
		}

		user := models.User{
			PrincipalID:  &principalID,
			Email:        email,
			Name:         in.Name,
			AuthProvider: in.AuthProvider,
			Role:         models.RoleUser,
			Tier:         "free",
			LastSeenAt:   &now,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		resolved = &user
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := l.promoteIfPrivileged(resolved); err != nil {
		return nil, err
	}
	if err := l.backfillSubscriptions(resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

// attachPrincipal links an external principal to an existing email-anchored
// row. The row's local id and accumulated state are preserved.
func (l *Linker) attachPrincipal(tx *gorm.DB, user *models.User, principalID string, in SyncInput, now time.Time, out **models.User) error {
	updates := map[string]interface{}{
		"principal_id": principalID,
		"last_seen_at": now,
	}
	if in.Name != "" {
		updates["name"] = in.Name
	}
	if in.AuthProvider != "" {
		updates["auth_provider"] = in.AuthProvider
	}
	if err := tx.Model(user).Updates(updates).Error; err != nil {
		return err
	}
	user.PrincipalID = &principalID
	*out = user
	return nil
}

// promoteIfPrivileged forces role and flag for allowlisted emails and ensures
// the grant set. Works the same whether the user was just created or has
// existed for months, so an ordinary account is promoted retroactively as
// soon as its email lands on the allowlist.
func (l *Linker) promoteIfPrivileged(user *models.User) error {
	if !l.cfg.IsPrivilegedEmail(user.Email) {
		return nil
	}

	if user.Role != models.RoleAdmin || !user.IsPrivileged {
		updates := map[string]interface{}{
			"role":          models.RoleAdmin,
			"is_privileged": true,
		}
		if err := l.db.Model(user).Updates(updates).Error; err != nil {
			return err
		}
		user.Role = models.RoleAdmin
		user.IsPrivileged = true
	}

	return permissions.EnsurePrivilegedGrants(l.db, user.ID)
}

// backfillSubscriptions adopts subscription rows that arrived before this
// user existed, then refreshes the denormalized tier cache.
func (l *Linker) backfillSubscriptions(user *models.User) error {
	res := l.db.Model(&models.Subscription{}).
		Where("user_id IS NULL AND customer_email = ?", user.Email).
		Update("user_id", user.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		l.log.Info().
			Uint("user_id", user.ID).
			Int64("adopted", res.RowsAffected).
			Msg("backfilled unowned subscriptions")
	}

	if user.TierOverride {
		return nil
	}
	state := subscriptions.CurrentForUser(l.db, user.ID)
	if state.Plan != user.Tier {
		if err := l.db.Model(user).Update("tier", state.Plan).Error; err != nil {
			return err
		}
		user.Tier = state.Plan
	}
	return nil
}
