package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/ports"
)

type DeviceTokenUseCase struct {
	store ports.DeviceTokenStore
}

func NewDeviceTokenUseCase(store ports.DeviceTokenStore) *DeviceTokenUseCase {
	return &DeviceTokenUseCase{store: store}
}

// RegisterToken replaces the stored push token.
func (uc *DeviceTokenUseCase) RegisterToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.WrapError(domain.ErrInvalidInput, "register device token", errors.New("token is required"))
	}
	if err := uc.store.SaveToken(ctx, token); err != nil {
		return fmt.Errorf("save device token: %w", err)
	}
	return nil
}
