package repository

import (
	"context"
	"errors"

	"github.com/lmoretti/whatsflow/models"
	"gorm.io/gorm"
)

// ContactRepositoryImpl implements ContactRepository. The dispatch engine
// treats contacts as a read-only foreign reference.
type ContactRepositoryImpl struct {
	db *gorm.DB
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{db: db}
}

func (r *ContactRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// ByID retrieves a contact with its current attributes
func (r *ContactRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Contact, error) {
	db := r.getDB(ctx)

	var contact models.Contact
	if err := db.First(&contact, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

// ListByTag resolves the audience for a tag name: all contacts that carry the
// active tag. Pure query; membership reflects the database at call time.
func (r *ContactRepositoryImpl) ListByTag(ctx context.Context, tagName string) ([]*models.Contact, error) {
	db := r.getDB(ctx)

	var contacts []*models.Contact
	err := db.
		Joins("JOIN contact_tags ON contact_tags.contact_id = contacts.id").
		Joins("JOIN tags ON tags.id = contact_tags.tag_id").
		Where("tags.name = ? AND tags.is_active = ?", tagName, true).
		Order("contacts.id ASC").
		Find(&contacts).Error
	if err != nil {
		return nil, err
	}
	return contacts, nil
}
