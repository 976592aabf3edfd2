// services/shop.go
package services

import (
	"github.com/zaledjen/gameserver/models"
)

// ShopItems is the static catalog of powers and skins.
var ShopItems = []models.ShopItem{
	{
		ID:          "super_freeze",
		Name:        "Super Freeze",
		Description: "Zamrzni bilo koga trenutno sa udaljenosti do 5m!",
		Type:        "power",
		PriceCoins:  500,
		PriceGems:   50,
		Icon:        "snowflake",
		Rarity:      "epic",
		Effect:      map[string]any{"range": 5, "instant": true},
	},
	{
		ID:          "ultra_thaw",
		Name:        "Ultra Thaw",
		Description: "Automatski se odledi nakon 5 sekundi!",
		Type:        "power",
		PriceCoins:  300,
		PriceGems:   30,
		Icon:        "fire",
		Rarity:      "rare",
		Effect:      map[string]any{"auto_thaw": 5},
	},
	{
		ID:          "shield",
		Name:        "Shield",
		Description: "Zastitni stit - ne mozes biti zaledjen 10 sekundi!",
		Type:        "power",
		PriceCoins:  400,
		PriceGems:   40,
		Icon:        "shield",
		Rarity:      "epic",
		Effect:      map[string]any{"immunity": 10},
	},
	{
		ID:          "second_chance",
		Name:        "Second Chance",
		Description: "Imas 2 sekunde da pobegnes nakon dodira!",
		Type:        "power",
		PriceCoins:  250,
		PriceGems:   25,
		Icon:        "clock",
		Rarity:      "rare",
		Effect:      map[string]any{"escape_time": 2},
	},
	{
		ID:          "ghost_mode",
		Name:        "Ghost Mode",
		Description: "Prolazis kroz igrace bez zamrzavanja 15 sekundi!",
		Type:        "power",
		PriceCoins:  600,
		PriceGems:   60,
		Icon:        "ghost",
		Rarity:      "legendary",
		Effect:      map[string]any{"ghost": 15},
	},
	{
		ID:          "skin_fire",
		Name:        "Vatreni Skin",
		Description: "Specijalna vatrena animacija i zvukovi!",
		Type:        "skin",
		PriceCoins:  1000,
		PriceGems:   100,
		Icon:        "fire",
		Rarity:      "epic",
	},
	{
		ID:          "skin_ice_king",
		Name:        "Ice King",
		Description: "Kraljevski ledeni izgled sa krunom!",
		Type:        "skin",
		PriceCoins:  1500,
		PriceGems:   150,
		Icon:        "crown",
		Rarity:      "legendary",
	},
	{
		ID:          "skin_neon",
		Name:        "Neon Glow",
		Description: "Svetleci neon efekti!",
		Type:        "skin",
		PriceCoins:  800,
		PriceGems:   80,
		Icon:        "flash",
		Rarity:      "rare",
	},
	{
		ID:          "skin_rainbow",
		Name:        "Rainbow",
		Description: "Dugine boje koje se menjaju!",
		Type:        "skin",
		PriceCoins:  2000,
		PriceGems:   200,
		Icon:        "color-palette",
		Rarity:      "legendary",
	},
}

// PremiumPlans maps plan name to its feature set and monthly price.
var PremiumPlans = map[string]map[string]any{
	"basic": {
		"price":    2.99,
		"features": []string{"no_ads", "private_rooms", "basic_stats"},
	},
	"pro_monthly": {
		"price":    4.99,
		"features": []string{"no_ads", "private_rooms", "full_stats", "premium_skins", "xp_boost", "priority_matching", "special_badge"},
	},
	"pro_yearly": {
		"price":    39.99,
		"features": []string{"no_ads", "private_rooms", "full_stats", "premium_skins", "xp_boost", "priority_matching", "special_badge", "exclusive_yearly_skin"},
	},
}

// FindShopItem looks an item up by ID, nil when absent.
func FindShopItem(id string) *models.ShopItem {
	for i := range ShopItems {
		if ShopItems[i].ID == id {
			return &ShopItems[i]
		}
	}
	return nil
}
