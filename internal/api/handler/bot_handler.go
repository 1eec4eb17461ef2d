package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/bot-runner/internal/api/dto"
	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/cuongbtq/bot-runner/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultBotLimit = 100
	maxBotLimit     = 500
)

// BotHandler manages bot configurations
type BotHandler struct {
	logger *slog.Logger
	bots   BotStore
}

// NewBotHandler creates a new BotHandler instance
func NewBotHandler(deps *Dependencies) *BotHandler {
	return &BotHandler{
		logger: deps.Logger,
		bots:   deps.Bots,
	}
}

// CreateBot handles POST /api/v1/bots
// The script identifier is stored as given; the worker resolves it per job.
func (h *BotHandler) CreateBot(c *gin.Context) {
	var req dto.CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	now := time.Now().UTC()
	bot := &domain.BotConfiguration{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Description:       req.Description,
		ScriptIdentifier:  req.ScriptIdentifier,
		ParameterSchema:   req.ParameterSchema,
		DefaultParameters: req.DefaultParameters,
		IsEnabled:         true,
		CreatedBy:         userID(c),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.IsEnabled != nil {
		bot.IsEnabled = *req.IsEnabled
	}

	if err := h.bots.CreateBot(c.Request.Context(), bot); err != nil {
		respondError(c, h.logger, err, "Failed to create bot configuration")
		return
	}

	c.JSON(http.StatusCreated, bot)
}

// ListBots handles GET /api/v1/bots
func (h *BotHandler) ListBots(c *gin.Context) {
	var req dto.ListBotsRequest
	if err := c.ShouldBindQuery(&req); err != nil || req.Skip < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultBotLimit
	}
	if req.Limit > maxBotLimit {
		req.Limit = maxBotLimit
	}

	bots, err := h.bots.ListBots(c.Request.Context(), storage.BotFilter{
		Skip:      req.Skip,
		Limit:     req.Limit,
		IsEnabled: req.IsEnabled,
	})
	if err != nil {
		respondError(c, h.logger, err, "Failed to list bot configurations")
		return
	}

	c.JSON(http.StatusOK, gin.H{"bots": bots})
}

// GetBot handles GET /api/v1/bots/:bot_id
func (h *BotHandler) GetBot(c *gin.Context) {
	botID, ok := uuidParam(c, "bot_id")
	if !ok {
		return
	}

	bot, err := h.bots.GetBotByID(c.Request.Context(), botID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get bot configuration")
		return
	}
	c.JSON(http.StatusOK, bot)
}

// GetBotByName handles GET /api/v1/bots/by-name/:name
func (h *BotHandler) GetBotByName(c *gin.Context) {
	bot, err := h.bots.GetBotByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get bot configuration")
		return
	}
	c.JSON(http.StatusOK, bot)
}

// UpdateBot handles PUT /api/v1/bots/:bot_id
func (h *BotHandler) UpdateBot(c *gin.Context) {
	botID, ok := uuidParam(c, "bot_id")
	if !ok {
		return
	}

	var req dto.UpdateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	ctx := c.Request.Context()
	bot, err := h.bots.GetBotByID(ctx, botID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get bot configuration")
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
			return
		}
		bot.Name = *req.Name
	}
	if req.Description != nil {
		bot.Description = req.Description
	}
	if req.ScriptIdentifier != nil {
		if *req.ScriptIdentifier == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "script_identifier must not be empty"})
			return
		}
		bot.ScriptIdentifier = *req.ScriptIdentifier
	}
	if req.ParameterSchema != nil {
		bot.ParameterSchema = req.ParameterSchema
	}
	if req.DefaultParameters != nil {
		bot.DefaultParameters = req.DefaultParameters
	}
	if req.IsEnabled != nil {
		bot.IsEnabled = *req.IsEnabled
	}
	bot.UpdatedAt = time.Now().UTC()

	if err := h.bots.UpdateBot(ctx, bot); err != nil {
		respondError(c, h.logger, err, "Failed to update bot configuration")
		return
	}

	h.logger.Info("Bot configuration updated",
		slog.String("bot_id", bot.ID),
		slog.Bool("is_enabled", bot.IsEnabled),
	)
	c.JSON(http.StatusOK, bot)
}

// DeleteBot handles DELETE /api/v1/bots/:bot_id
// Refused while any job still references the bot
func (h *BotHandler) DeleteBot(c *gin.Context) {
	botID, ok := uuidParam(c, "bot_id")
	if !ok {
		return
	}

	if err := h.bots.DeleteBot(c.Request.Context(), botID); err != nil {
		respondError(c, h.logger, err, "Failed to delete bot configuration")
		return
	}
	c.Status(http.StatusNoContent)
}
