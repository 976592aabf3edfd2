// services/user_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/zaledjen/gameserver/models"
	"github.com/zaledjen/gameserver/persistence"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUserExists        = errors.New("user already exists")
	ErrItemNotFound      = errors.New("item not found")
	ErrAlreadyOwned      = errors.New("item already owned")
	ErrNotOwned          = errors.New("item not owned")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownPlan       = errors.New("unknown subscription plan")
)

const (
	startingCoins = 100
	startingGems  = 10
)

// UserService is the user directory: identity, currency, inventory and
// stats. The game core only consumes ResolvePlayer/ResolveByID,
// IncrementStat and IsOwned; the rest backs the REST surface.
type UserService struct {
	db        persistence.Database
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewUserService(db persistence.Database, jwtSecret string, tokenTTL time.Duration) *UserService {
	if tokenTTL <= 0 {
		tokenTTL = 30 * 24 * time.Hour
	}
	return &UserService{db: db, jwtSecret: []byte(jwtSecret), tokenTTL: tokenTTL}
}

// Register creates a user with the starting wallet and zeroed stats and
// returns a signed token.
func (s *UserService) Register(username, email, password string) (token string, user *models.GormUser, err error) {
	if _, err := s.db.FindUserByUsernameOrEmail(username, email); err == nil {
		return "", nil, ErrUserExists
	} else if err != persistence.ErrRecordNotFound {
		return "", nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}

	user = &models.GormUser{
		UserID:       uuid.New().String(),
		Username:     username,
		Email:        email,
		Password:     string(hash),
		Coins:        startingCoins,
		Gems:         startingGems,
		OwnedPowers:  []string{},
		OwnedSkins:   []string{"default"},
		EquippedSkin: "default",
		Stats:        models.DefaultStats(),
	}
	if err := s.db.CreateUser(user); err != nil {
		return "", nil, err
	}

	token, err = s.CreateToken(user.UserID)
	return token, user, err
}

// Login verifies credentials and returns a fresh token.
func (s *UserService) Login(email, password string) (token string, user *models.GormUser, err error) {
	user, err = s.db.FindUserByEmail(email)
	if err != nil {
		if err == persistence.ErrRecordNotFound {
			return "", nil, ErrUnauthorized
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return "", nil, ErrUnauthorized
	}

	token, err = s.CreateToken(user.UserID)
	return token, user, err
}

// CreateToken signs a bearer token carrying the user ID.
func (s *UserService) CreateToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(s.tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// ParseToken returns the user ID inside a valid token.
func (s *UserService) ParseToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrUnauthorized
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrUnauthorized
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", ErrUnauthorized
	}
	return userID, nil
}

// ResolvePlayer turns a bearer token into the in-room player snapshot.
func (s *UserService) ResolvePlayer(token string) (*models.PlayerSnapshot, error) {
	userID, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}
	return s.ResolveByID(userID)
}

// ResolveByID fetches the snapshot for a known player ID.
func (s *UserService) ResolveByID(userID string) (*models.PlayerSnapshot, error) {
	user, err := s.db.FindUserByID(userID)
	if err != nil {
		if err == persistence.ErrRecordNotFound {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return &models.PlayerSnapshot{
		ID:           user.UserID,
		Username:     user.Username,
		EquippedSkin: user.EquippedSkin,
	}, nil
}

// GetUser returns the full user document.
func (s *UserService) GetUser(userID string) (*models.GormUser, error) {
	user, err := s.db.FindUserByID(userID)
	if err == persistence.ErrRecordNotFound {
		return nil, ErrUnauthorized
	}
	return user, err
}

// IncrementStat bumps one stats counter, best effort.
func (s *UserService) IncrementStat(userID, stat string, delta int) error {
	return s.db.IncrementStat(userID, stat, delta)
}

// IsOwned reports whether the player owns a shop item.
func (s *UserService) IsOwned(userID, itemID string) (bool, error) {
	user, err := s.db.FindUserByID(userID)
	if err != nil {
		return false, err
	}
	for _, id := range user.OwnedPowers {
		if id == itemID {
			return true, nil
		}
	}
	for _, id := range user.OwnedSkins {
		if id == itemID {
			return true, nil
		}
	}
	return false, nil
}

// Purchase buys a catalog item with coins or gems. Wallet check, debit and
// inventory append run in one transaction.
func (s *UserService) Purchase(userID, itemID, currency string) error {
	item := FindShopItem(itemID)
	if item == nil {
		return ErrItemNotFound
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var user models.GormUser
		if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
			return err
		}

		owned := user.OwnedPowers
		if item.Type == "skin" {
			owned = user.OwnedSkins
		}
		for _, id := range owned {
			if id == itemID {
				return ErrAlreadyOwned
			}
		}

		switch currency {
		case "gems":
			if user.Gems < int64(item.PriceGems) {
				return ErrInsufficientFunds
			}
			user.Gems -= int64(item.PriceGems)
		default:
			if user.Coins < int64(item.PriceCoins) {
				return ErrInsufficientFunds
			}
			user.Coins -= int64(item.PriceCoins)
		}

		if item.Type == "skin" {
			user.OwnedSkins = append(user.OwnedSkins, itemID)
		} else {
			user.OwnedPowers = append(user.OwnedPowers, itemID)
		}

		return tx.Save(&user).Error
	})
}

// Subscribe flags the account premium under the named plan. Payment itself
// happens elsewhere.
func (s *UserService) Subscribe(userID, plan string) error {
	if _, ok := PremiumPlans[plan]; !ok {
		return ErrUnknownPlan
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var user models.GormUser
		if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
			return err
		}
		user.IsPremium = true
		user.SubscriptionType = plan
		return tx.Save(&user).Error
	})
}

// EquipSkin switches the active skin; the skin must be owned.
func (s *UserService) EquipSkin(userID, skinID string) error {
	user, err := s.db.FindUserByID(userID)
	if err != nil {
		return err
	}
	owned := skinID == "default"
	for _, id := range user.OwnedSkins {
		if id == skinID {
			owned = true
		}
	}
	if !owned {
		return ErrNotOwned
	}
	user.EquippedSkin = skinID
	return s.db.SaveUser(user)
}

// SaveBLEDevice records the paired bluetooth glove on the profile.
func (s *UserService) SaveBLEDevice(userID string, device models.BLEDevice) error {
	user, err := s.db.FindUserByID(userID)
	if err != nil {
		return err
	}
	user.BLEDevice = map[string]any{
		"device_id":    device.DeviceID,
		"device_name":  device.DeviceName,
		"connected_at": device.ConnectedAt.Format(time.RFC3339),
	}
	return s.db.SaveUser(user)
}

// RemoveBLEDevice clears the paired device.
func (s *UserService) RemoveBLEDevice(userID string) error {
	user, err := s.db.FindUserByID(userID)
	if err != nil {
		return err
	}
	user.BLEDevice = nil
	return s.db.SaveUser(user)
}

// Leaderboard returns the top players by one stat category. "wins" is an
// alias the clients use for games_won.
func (s *UserService) Leaderboard(category string, limit int) ([]models.LeaderboardEntry, error) {
	if category == "wins" {
		category = "games_won"
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.db.Leaderboard(category, limit)
}
