package repository

import (
	"errors"

	"github.com/Dhoini/findxo-settlement/internal/domain"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = domain.ErrNotFound

	// ErrDuplicate нарушено ограничение уникальности (вторая активная подписка)
	ErrDuplicate = errors.New("duplicate record")
)
