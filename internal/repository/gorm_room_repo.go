package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/log"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// Create persists a new room together with its participant records.
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	l := log.Ctx(ctx)

	room.ID = uuid.New().String()

	model := domain.RoomToModel(room)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Msg("failed to create room in db")
		return err
	}

	room.CreatedAt = model.CreatedAt
	l.Debug().Str(log.FieldRoomID, room.ID).Msg("room created in db")
	return nil
}

// GetByID retrieves a non-deleted room with its participants.
func (r *GormRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	var model domain.RoomModel
	err := r.db.WithContext(ctx).
		Preload("Participants").
		First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, id).Msg("failed to get room by id")
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save writes room metadata and upserts every participant record in one
// transaction, so concurrent per-room writers never observe a torn room.
func (r *GormRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	model := domain.RoomToModel(room)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"name":            model.Name,
			"last_message":    model.LastMessage,
			"last_message_at": model.LastMessageAt,
		}
		if err := tx.Model(&domain.RoomModel{}).Where("id = ?", room.ID).Updates(updates).Error; err != nil {
			return err
		}

		for i := range model.Participants {
			p := model.Participants[i]
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"connected", "unread_count", "leaved", "when_leaved", "notifications_enabled",
				}),
			}).Create(&p).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, room.ID).Msg("failed to save room")
		return err
	}
	return nil
}

// SoftDelete marks the room deleted; history stays in place.
func (r *GormRoomRepository) SoftDelete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.RoomModel{}, "id = ?", id)
	if result.Error != nil {
		log.Ctx(ctx).Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to soft-delete room")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

// FindByReferencePair looks up the deduplicated room for an origin
// reference and a participant pair.
func (r *GormRoomRepository) FindByReferencePair(ctx context.Context, referenceID, senderID, receiverID string) (*domain.Room, error) {
	senderRooms := r.db.Model(&domain.ParticipantModel{}).
		Select("room_id").Where("user_id = ?", senderID)
	receiverRooms := r.db.Model(&domain.ParticipantModel{}).
		Select("room_id").Where("user_id = ?", receiverID)

	var model domain.RoomModel
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("reference_id = ?", referenceID).
		Where("id IN (?)", senderRooms).
		Where("id IN (?)", receiverRooms).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListActiveByUser returns non-deleted rooms the user participates in and
// has not left, newest activity first.
func (r *GormRoomRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	memberRooms := r.db.Model(&domain.ParticipantModel{}).
		Select("room_id").Where("user_id = ? AND leaved = ?", userID, false)

	var models []domain.RoomModel
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("id IN (?)", memberRooms).
		Order("last_message_at DESC").
		Find(&models).Error
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list rooms")
		return nil, err
	}

	rooms := make([]*domain.Room, len(models))
	for i := range models {
		rooms[i] = models[i].ToDomain()
	}
	return rooms, nil
}
