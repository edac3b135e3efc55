package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories WMS仓库集合
type Repositories struct {
	User     *UserRepository
	Document *DocumentRepository
	Series   *SeriesRepository
}

// NewRepositories 创建WMS仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:     NewUserRepository(db),
		Document: NewDocumentRepository(db),
		Series:   NewSeriesRepository(db),
	}
}
