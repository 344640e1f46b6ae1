package db

import (
	"time"

	"gorm.io/datatypes"
)

type Player struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type GameSession struct {
	ID              string         `gorm:"type:uuid;primaryKey"`
	PlayerOneID     string         `gorm:"type:uuid;index;not null"`
	PlayerTwoID     *string        `gorm:"type:uuid;index"`
	Status          string         `gorm:"size:32;not null;index"`
	TargetColorName string         `gorm:"size:64;not null"`
	TargetColorHex  string         `gorm:"size:7;not null"`
	TargetChannels  datatypes.JSON `gorm:"type:jsonb;not null"`
	WinnerID        *string        `gorm:"type:uuid"`
	CreatedAt       time.Time      `gorm:"not null"`
	UpdatedAt       time.Time      `gorm:"not null"`
}

type BattleRecord struct {
	ID                   uint    `gorm:"primaryKey"`
	SessionID            *string `gorm:"type:uuid;uniqueIndex"`
	PlayerOneID          string  `gorm:"type:uuid;index;not null"`
	PlayerTwoID          *string `gorm:"type:uuid;index"`
	PlayerOneBestMixHex  *string `gorm:"size:7"`
	PlayerOneBestMixName *string `gorm:"size:64"`
	PlayerOneDifference  *float64
	PlayerTwoBestMixHex  *string `gorm:"size:7"`
	PlayerTwoBestMixName *string `gorm:"size:64"`
	PlayerTwoDifference  *float64
	TargetColorHex       string         `gorm:"size:7;not null"`
	TargetColorName      string         `gorm:"size:64;not null"`
	TargetChannels       datatypes.JSON `gorm:"type:jsonb;not null"`
	Winner               string         `gorm:"size:16;not null"`
	StatusDetail         string         `gorm:"size:96"`
	BattleTimestamp      time.Time      `gorm:"not null"`
	CreatedAt            time.Time      `gorm:"not null"`
}
