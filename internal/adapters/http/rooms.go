package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/banterhq/banter/internal/app"
	"github.com/banterhq/banter/internal/domain"
)

// RoomAPI is the collaborator-facing request/response surface for room
// lifecycle; the live event traffic stays on the websocket.
type RoomAPI struct {
	Orch *app.Orchestrator
}

type roomDTO struct {
	Name       domain.RoomName      `json:"name"`
	Code       domain.RoomCode      `json:"code"`
	Visibility domain.Visibility    `json:"visibility"`
	Policy     domain.MessagePolicy `json:"message_policy"`
	Members    int                  `json:"member_count"`
}

func (a *RoomAPI) dto(room domain.Room) roomDTO {
	return roomDTO{
		Name:       room.Name,
		Code:       room.Code,
		Visibility: room.Visibility,
		Policy:     room.Policy,
		Members:    len(a.Orch.Registry.MembersOfRoom(room.Name)),
	}
}

// identity returns the caller's session username; empty when anonymous.
func identity(c *gin.Context) string {
	sess := sessions.Default(c)
	name, _ := sess.Get("username").(string)
	return name
}

// List sweeps, then returns the public rooms.
func (a *RoomAPI) List(c *gin.Context) {
	a.Orch.SweepAndNotify()
	out := make([]roomDTO, 0)
	for _, room := range a.Orch.Rooms.List() {
		if room.Visibility != domain.VisibilityPublic {
			continue
		}
		out = append(out, a.dto(room))
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

// Create is idempotent by name: an existing room answers with its original
// code and attributes untouched.
func (a *RoomAPI) Create(c *gin.Context) {
	var req struct {
		Name       string `json:"name"`
		Visibility string `json:"visibility"`
		Policy     string `json:"message_policy"`
		Expiry     string `json:"expiry"`
		Inactivity string `json:"inactivity"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	visibility, err := domain.ParseVisibility(req.Visibility)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policy, err := domain.ParseMessagePolicy(req.Policy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	expiry, err := domain.ParseExpiryOption(req.Expiry)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inactivity, err := domain.ParseInactivityOption(req.Inactivity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := a.Orch.Rooms.CreateOrGet(req.Name, visibility, identity(c), policy, expiry, inactivity)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrRoomNameEmpty) || errors.Is(err, domain.ErrRoomNameTooLong) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a.dto(room))
}

// LookupByCode resolves a join code to a room name.
func (a *RoomAPI) LookupByCode(c *gin.Context) {
	code := domain.RoomCode(c.Param("code"))
	name, ok := a.Orch.Rooms.LookupByCode(code)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": name})
}

func (a *RoomAPI) Get(c *gin.Context) {
	a.Orch.SweepAndNotify()
	name := domain.RoomName(c.Param("name"))
	room, ok := a.Orch.Rooms.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
		return
	}
	c.JSON(http.StatusOK, a.dto(room))
}

// Promote adds a moderator to a room; only its creator may.
func (a *RoomAPI) Promote(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	if err := c.BindJSON(&req); err != nil || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	name := domain.RoomName(c.Param("name"))
	err := a.Orch.PromoteModerator(c.Request.Context(), name, identity(c), req.Username)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, domain.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
	case errors.Is(err, domain.ErrNotPermitted):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Delete removes a room; only its creator may.
func (a *RoomAPI) Delete(c *gin.Context) {
	name := domain.RoomName(c.Param("name"))
	err := a.Orch.RemoveRoom(name, identity(c))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, domain.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
	case errors.Is(err, domain.ErrNotPermitted):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
