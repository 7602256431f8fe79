package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Account contains the login information and ladder standing of a registered player.
type Account struct {
	ID uint64 `gorm:"primaryKey"`
	// Case-folded name used for lookups.
	Username string `gorm:"unique; not null"`
	// Name as the player first registered it.
	DisplayName      string `gorm:"not null"`
	Password         string `gorm:"not null"`
	Score            int    `gorm:"index"`
	MatchScore       int
	Wins             int
	Losses           int
	LastIP           string
	RegistrationDate time.Time
	GM               bool `gorm:"default:false"`
	Banned           bool `gorm:"default:false"`
	DeletedAt        gorm.DeletedAt
}

// FindAccountByUsername searches for an account with the specified username, returning the
// *Account instance if found or nil if there is no match.
func FindAccountByUsername(db *gorm.DB, username string) (*Account, error) {
	var account Account
	err := db.Where("username = ?", username).First(&account).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &account, nil
}

// CreateAccount persists the Account record to the database.
func CreateAccount(db *gorm.DB, account *Account) error {
	return db.Create(account).Error
}

// UpdateAccount saves every field of account.
func UpdateAccount(db *gorm.DB, account *Account) error {
	return db.Save(account).Error
}

// DeleteAccount soft-deletes an Account record from the database.
func DeleteAccount(db *gorm.DB, account *Account) error {
	return db.Delete(account).Error
}

// CountAccountsAbove returns how many active accounts have a score strictly
// higher than score.
func CountAccountsAbove(db *gorm.DB, score int) (int64, error) {
	var count int64
	err := db.Model(&Account{}).Where("score > ? AND banned = ?", score, false).Count(&count).Error
	return count, err
}

// TopAccounts returns up to limit accounts ordered by descending score.
func TopAccounts(db *gorm.DB, limit int) ([]Account, error) {
	var accounts []Account
	err := db.Where("banned = ?", false).Order("score desc").Order("id").Limit(limit).Find(&accounts).Error
	return accounts, err
}
