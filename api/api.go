// api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zaledjen/gameserver/broadcast"
	"github.com/zaledjen/gameserver/logger"
	"github.com/zaledjen/gameserver/models"
	"github.com/zaledjen/gameserver/persistence"
	"github.com/zaledjen/gameserver/room"
	"github.com/zaledjen/gameserver/services"
)

var startTime = time.Now()

// Handler bundles what the REST surface needs: the user directory for all
// the CRUD, the room registry so REST joins and socket joins agree, and
// the broadcaster for pushing inventory updates to live sessions.
type Handler struct {
	users       *services.UserService
	rooms       *room.Manager
	db          persistence.Database
	broadcaster broadcast.Broadcaster
}

func NewHandler(users *services.UserService, rooms *room.Manager, db persistence.Database, broadcaster broadcast.Broadcaster) *Handler {
	return &Handler{users: users, rooms: rooms, db: db, broadcaster: broadcaster}
}

// NewRouter builds the gin engine. The websocket endpoint is mounted by
// the caller so the gateway owns its own upgrade path.
func NewRouter(h *Handler, wsHandler gin.HandlerFunc, development bool) *gin.Engine {
	if !development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.GET("/ws", wsHandler)

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)

		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.GET("/auth/me", h.Me)

		api.POST("/rooms/create", h.CreateRoom)
		api.POST("/rooms/join", h.JoinRoom)
		api.GET("/rooms/public", h.PublicRooms)
		api.GET("/rooms/:code", h.GetRoom)

		api.GET("/shop/items", h.ShopItems)
		api.GET("/shop/premium", h.PremiumPlans)
		api.POST("/shop/purchase", h.Purchase)
		api.POST("/shop/subscribe", h.Subscribe)
		api.POST("/shop/equip-skin", h.EquipSkin)

		api.GET("/leaderboard", h.Leaderboard)
		api.GET("/stats/:user_id", h.UserStats)

		api.POST("/ble/save-device", h.SaveBLEDevice)
		api.DELETE("/ble/remove-device", h.RemoveBLEDevice)
		api.GET("/ble/device", h.GetBLEDevice)
	}

	return r
}

// token pulls the bearer token from the Authorization header, falling back
// to the query parameter older clients still send.
func token(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("token")
}

func (h *Handler) currentUser(c *gin.Context) (*models.GormUser, bool) {
	userID, err := h.users.ParseToken(token(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
		return nil, false
	}
	user, err := h.users.GetUser(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
		return nil, false
	}
	return user, true
}

func userResponse(u *models.GormUser) gin.H {
	return gin.H{
		"id":                u.UserID,
		"username":          u.Username,
		"email":             u.Email,
		"coins":             u.Coins,
		"gems":              u.Gems,
		"is_premium":        u.IsPremium,
		"subscription_type": u.SubscriptionType,
		"owned_powers":      u.OwnedPowers,
		"owned_skins":       u.OwnedSkins,
		"equipped_skin":     u.EquippedSkin,
		"stats":             u.Stats,
	}
}

// --- health ---

func (h *Handler) Health(c *gin.Context) {
	dbStatus := "connected"
	if err := h.db.Ping(); err != nil {
		logger.Log.Errorf("database ping failed: %v", err)
		dbStatus = "disconnected"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": dbStatus,
		"uptime":   int(time.Since(startTime).Seconds()),
		"version":  "1.0",
	})
}

// --- auth ---

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	tok, user, err := h.users.Register(req.Username, req.Email, req.Password)
	if err == services.ErrUserExists {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "user already exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": tok, "user": userResponse(user)})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	tok, user, err := h.users.Login(req.Email, req.Password)
	if err == services.ErrUnauthorized {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "wrong credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": tok, "user": userResponse(user)})
}

func (h *Handler) Me(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userResponse(user))
}

// --- rooms ---

type createRoomRequest struct {
	Name       string `json:"name" binding:"required"`
	MaxPlayers int    `json:"max_players"`
	IsPrivate  bool   `json:"is_private"`
}

func (h *Handler) CreateRoom(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	host := models.PlayerSnapshot{
		ID:           user.UserID,
		Username:     user.Username,
		EquippedSkin: user.EquippedSkin,
	}
	r, err := h.rooms.CreateRoom(host, req.Name, req.MaxPlayers, req.IsPrivate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": r.Snapshot()})
}

type joinRoomRequest struct {
	RoomCode string `json:"room_code" binding:"required"`
}

func (h *Handler) JoinRoom(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	snapshot := models.PlayerSnapshot{
		ID:           user.UserID,
		Username:     user.Username,
		EquippedSkin: user.EquippedSkin,
	}
	r, err := h.rooms.JoinRoom(req.RoomCode, snapshot)
	switch err {
	case nil:
		c.JSON(http.StatusOK, gin.H{"room": r.Snapshot()})
	case room.ErrRoomNotFound, room.ErrRoomNotJoinable:
		c.JSON(http.StatusNotFound, gin.H{"detail": "room not found or already playing"})
	case room.ErrRoomFull:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "room is full"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
	}
}

func (h *Handler) PublicRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.rooms.ListPublicWaiting(20))
}

func (h *Handler) GetRoom(c *gin.Context) {
	code := c.Param("code")
	if r, ok := h.rooms.GetRoom(code); ok {
		c.JSON(http.StatusOK, r.Snapshot())
		return
	}
	// Fall back to the mirror for rooms already evicted from the registry.
	snap, err := h.db.FindRoom(strings.ToUpper(code))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "room not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// --- shop ---

func (h *Handler) ShopItems(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": services.ShopItems})
}

func (h *Handler) PremiumPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": services.PremiumPlans})
}

type purchaseRequest struct {
	ItemID   string `json:"item_id" binding:"required"`
	Currency string `json:"currency"`
}

func (h *Handler) Purchase(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	err := h.users.Purchase(user.UserID, req.ItemID, req.Currency)
	switch err {
	case nil:
	case services.ErrItemNotFound:
		c.JSON(http.StatusNotFound, gin.H{"detail": "item not found"})
		return
	case services.ErrAlreadyOwned:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "item already owned"})
		return
	case services.ErrInsufficientFunds:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "insufficient funds"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	// Push the new inventory to the buyer's live sessions so the in-game
	// UI updates without a refetch.
	if fresh, err := h.users.GetUser(user.UserID); err == nil {
		h.broadcaster.BroadcastToPlayers([]string{user.UserID}, "inventory_update", gin.H{
			"owned_powers":  fresh.OwnedPowers,
			"owned_skins":   fresh.OwnedSkins,
			"coins":         fresh.Coins,
			"gems":          fresh.Gems,
			"equipped_skin": fresh.EquippedSkin,
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type subscribeRequest struct {
	Plan string `json:"plan" binding:"required"`
}

func (h *Handler) Subscribe(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if err := h.users.Subscribe(user.UserID, req.Plan); err != nil {
		if err == services.ErrUnknownPlan {
			c.JSON(http.StatusNotFound, gin.H{"detail": "plan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type equipSkinRequest struct {
	SkinID string `json:"skin_id" binding:"required"`
}

func (h *Handler) EquipSkin(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req equipSkinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if err := h.users.EquipSkin(user.UserID, req.SkinID); err != nil {
		if err == services.ErrNotOwned {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "skin not owned"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- leaderboard & stats ---

func (h *Handler) Leaderboard(c *gin.Context) {
	category := c.DefaultQuery("category", "xp")
	entries, err := h.users.Leaderboard(category, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func (h *Handler) UserStats(c *gin.Context) {
	user, err := h.users.GetUser(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username": user.Username,
		"stats":    user.Stats,
		"level":    user.Stats["level"],
		"xp":       user.Stats["xp"],
	})
}

// --- BLE device bookkeeping ---

type bleDeviceRequest struct {
	DeviceID   string `json:"device_id" binding:"required"`
	DeviceName string `json:"device_name" binding:"required"`
}

func (h *Handler) SaveBLEDevice(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req bleDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	device := models.BLEDevice{
		DeviceID:    req.DeviceID,
		DeviceName:  req.DeviceName,
		ConnectedAt: time.Now(),
	}
	if err := h.users.SaveBLEDevice(user.UserID, device); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) RemoveBLEDevice(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := h.users.RemoveBLEDevice(user.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) GetBLEDevice(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": user.BLEDevice})
}
