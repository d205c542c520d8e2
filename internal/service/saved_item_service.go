package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/model/dto"
	"github.com/qs3c/rizz_server/internal/pkg/clock"
	"github.com/qs3c/rizz_server/internal/pkg/kv"
	"github.com/qs3c/rizz_server/internal/repository"
)

var (
	ErrSavedItemNotFound = errors.New("收藏不存在")
	ErrEmptyContent      = errors.New("收藏内容不能为空")
)

// 访客最多保留的收藏条数，超出时丢弃最旧的
const maxGuestSavedItems = 200

type SavedItemService struct {
	repo   *repository.SavedItemRepository
	guests *kv.Store
	clock  clock.Clock
}

func NewSavedItemService(repo *repository.SavedItemRepository, guests *kv.Store, clk clock.Clock) *SavedItemService {
	return &SavedItemService{
		repo:   repo,
		guests: guests,
		clock:  clk,
	}
}

func guestSavedKey(id model.Identity) string {
	return id.DeviceID + ":saved"
}

// List 最新的在前
func (s *SavedItemService) List(ctx context.Context, id model.Identity, limit int) ([]*dto.SavedItemInfo, error) {
	var items []*model.SavedItem
	if id.IsGuest() {
		var stored []*model.SavedItem
		if _, err := s.guests.GetJSON(ctx, guestSavedKey(id), &stored); err != nil {
			return nil, err
		}
		items = stored
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}
	} else {
		var err error
		items, err = s.repo.ListByProfileID(id.UserID, limit)
		if err != nil {
			return nil, err
		}
	}

	result := make([]*dto.SavedItemInfo, 0, len(items))
	for _, item := range items {
		result = append(result, toSavedItemInfo(item))
	}
	return result, nil
}

func (s *SavedItemService) Add(ctx context.Context, id model.Identity, req *dto.CreateSavedItemRequest) (*dto.SavedItemInfo, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	item := &model.SavedItem{
		ID:        uuid.NewString(),
		ProfileID: id.UserID,
		Content:   content,
		Category:  req.Category,
		CreatedAt: s.clock.Now(),
	}

	if !id.IsGuest() {
		if err := s.repo.Create(item); err != nil {
			return nil, err
		}
		return toSavedItemInfo(item), nil
	}

	err := s.guests.Update(ctx, guestSavedKey(id), func(current []byte) ([]byte, error) {
		var items []*model.SavedItem
		if current != nil {
			if err := json.Unmarshal(current, &items); err != nil {
				return nil, err
			}
		}
		items = append([]*model.SavedItem{item}, items...)
		if len(items) > maxGuestSavedItems {
			items = items[:maxGuestSavedItems]
		}
		return json.Marshal(items)
	})
	if err != nil {
		return nil, err
	}
	return toSavedItemInfo(item), nil
}

func (s *SavedItemService) Delete(ctx context.Context, id model.Identity, itemID string) error {
	if !id.IsGuest() {
		deleted, err := s.repo.Delete(itemID, id.UserID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrSavedItemNotFound
		}
		return nil
	}

	found := false
	err := s.guests.Update(ctx, guestSavedKey(id), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrSavedItemNotFound
		}
		var items []*model.SavedItem
		if err := json.Unmarshal(current, &items); err != nil {
			return nil, err
		}
		kept := items[:0]
		for _, item := range items {
			if item.ID == itemID {
				found = true
				continue
			}
			kept = append(kept, item)
		}
		if !found {
			return nil, ErrSavedItemNotFound
		}
		return json.Marshal(kept)
	})
	return err
}

func toSavedItemInfo(item *model.SavedItem) *dto.SavedItemInfo {
	return &dto.SavedItemInfo{
		ID:        item.ID,
		Content:   item.Content,
		Category:  item.Category,
		CreatedAt: item.CreatedAt.Format(time.RFC3339),
	}
}
