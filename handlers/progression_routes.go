// handlers/progression_routes.go
package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"devxp-progression-system/middleware"
	"devxp-progression-system/models"
	"devxp-progression-system/services"
)

func SetupProgressionRoutes(app *fiber.App, progressionService *services.ProgressionService, badgeService *services.BadgeService) {
	// 🔐 Secured routes — require user context from the gateway.
	// The gateway forwards paths like /api/v1/progression/s/user/progress -> /s/user/progress
	securedGroup := app.Group("/s", middleware.UserContextMiddleware())

	securedGroup.Get("/user/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		state, err := progressionService.EnsureState(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load progression state",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"user_id":          state.UserID,
			"total_xp":         state.TotalXP,
			"level":            state.Level,
			"current_level_xp": state.CurrentLevelXP,
			"xp_to_next_level": state.XPToNextLevel,
			"counters":         state.Counters,
			"last_activity":    state.LastActivityDate,
			"last_level_up":    state.LastLevelUpAt,
		})
	})

	securedGroup.Get("/user/progress/badges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var earned []models.UserBadge
		if err := badgeService.DB.
			Where("user_id = ?", userID).
			Order("awarded_at DESC").
			Find(&earned).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load badges",
				"cause": err.Error(),
			})
		}

		// Join against the static catalog in memory; the catalog is tiny.
		type badgeView struct {
			Code      string    `json:"code"`
			Name      string    `json:"name"`
			Category  string    `json:"category"`
			IconURL   string    `json:"icon_url,omitempty"`
			Trigger   string    `json:"trigger,omitempty"`
			AwardedAt time.Time `json:"awarded_at"`
		}
		views := make([]badgeView, 0, len(earned))
		for _, ub := range earned {
			v := badgeView{Code: ub.BadgeCode, Trigger: ub.Trigger, AwardedAt: ub.AwardedAt}
			if bt, ok := models.CatalogByCode[ub.BadgeCode]; ok {
				v.Name = bt.Name
				v.Category = string(bt.Category)
				v.IconURL = bt.IconURL
			}
			views = append(views, v)
		}

		return c.JSON(fiber.Map{
			"user_id": userID,
			"badges":  views,
			"total":   len(views),
		})
	})

	securedGroup.Get("/user/progress/activity", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		page, _ := strconv.Atoi(c.Query("page", "1"))
		if page < 1 {
			page = 1
		}
		size, _ := strconv.Atoi(c.Query("size", "20"))
		if size < 1 || size > 100 {
			size = 20
		}

		var entries []models.Activity
		if err := progressionService.DB.
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Offset((page - 1) * size).
			Limit(size).
			Find(&entries).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load activity feed",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"user_id": userID,
			"page":    page,
			"size":    size,
			"entries": entries,
		})
	})

	securedGroup.Get("/user/progress/stats", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		granularity := c.Query("granularity", models.GranularityDaily)
		if granularity != models.GranularityDaily && granularity != models.GranularityWeekly {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "granularity must be daily or weekly",
			})
		}
		limit, _ := strconv.Atoi(c.Query("limit", "30"))
		if limit < 1 || limit > 365 {
			limit = 30
		}

		// The weekly weekend_activity rows exist only for the weekend badge
		// rule; they are not a reportable action type. The +1 in the row cap
		// leaves room for manual_grant rows alongside the provider types.
		var rows []models.ActivityStat
		if err := progressionService.DB.
			Where("user_id = ? AND granularity = ? AND action_type <> ?", userID, granularity, models.StatWeekendActivity).
			Order("timeframe_id DESC").
			Limit(limit * (len(models.AllActionTypes) + 1)).
			Find(&rows).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load activity stats",
				"cause": err.Error(),
			})
		}

		// Fold per-action rows into one object per timeframe.
		type bucket struct {
			TimeframeID string           `json:"timeframe_id"`
			Counts      map[string]int64 `json:"counts"`
			XPGained    int64            `json:"xp_gained"`
		}
		byTimeframe := make(map[string]*bucket)
		order := make([]string, 0)
		for _, row := range rows {
			b, ok := byTimeframe[row.TimeframeID]
			if !ok {
				b = &bucket{TimeframeID: row.TimeframeID, Counts: make(map[string]int64)}
				byTimeframe[row.TimeframeID] = b
				order = append(order, row.TimeframeID)
			}
			b.Counts[string(row.ActionType)] = row.Count
			b.XPGained += row.XPGained
		}
		buckets := make([]bucket, 0, len(order))
		for _, tf := range order {
			if len(buckets) == limit {
				break
			}
			buckets = append(buckets, *byTimeframe[tf])
		}

		return c.JSON(fiber.Map{
			"user_id":     userID,
			"granularity": granularity,
			"buckets":     buckets,
		})
	})

	// Admin: manual XP grants flow through the same progression path as
	// webhook-driven actions, so feed entries, stats, and level-ups stay
	// consistent.
	adminGroup := app.Group("/s/admin", middleware.GatewayAuthMiddleware(), middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/xp/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
			Amount int64  `json:"amount"`
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}
		if req.UserID == "" || req.Amount <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_id and a positive amount are required",
			})
		}

		update, err := progressionService.GrantXP(req.UserID, req.Amount, req.Reason)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to grant XP",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"user_id":    req.UserID,
			"granted":    req.Amount,
			"total_xp":   update.State.TotalXP,
			"level":      update.State.Level,
			"leveled_up": update.LeveledUp,
		})
	})
}
