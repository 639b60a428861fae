package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/unithread/chat-service/internal/domain"
)

// GormUserDirectory implements UserDirectory against the users table.
type GormUserDirectory struct {
	db *gorm.DB
}

// NewGormUserDirectory creates a new GORM-based user directory.
func NewGormUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{db: db}
}

// Exists reports whether a user with the given ID is registered.
func (d *GormUserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&domain.UserModel{}).
		Where("id = ?", userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
