// Package handlers exposes the pipeline's collaborator entry points over
// HTTP: run-and-handoff, run-only, and handoff-only, plus the viewer
// websocket and health.
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"eirbridge/internal/browser"
	"eirbridge/internal/page"
	"eirbridge/internal/pipeline"
)

// SessionFunc lazily provides the browser session extraction runs against.
type SessionFunc func(ctx context.Context) (*browser.Session, error)

// ExportHandler serves the three pipeline entry points.
type ExportHandler struct {
	pipeline *pipeline.Pipeline
	session  SessionFunc
}

// NewExportHandler creates an export handler.
func NewExportHandler(p *pipeline.Pipeline, session SessionFunc) *ExportHandler {
	return &ExportHandler{pipeline: p, session: session}
}

type exportRequest struct {
	// URL optionally navigates the session before extraction; empty uses
	// the page the browser is already on.
	URL string `json:"url"`
}

// HandleFull runs the full pipeline and offers the handoff: extract,
// normalize, assemble, store, open the viewer, and run the handshake.
func (h *ExportHandler) HandleFull(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), pipeline.Deadline)
	defer cancel()

	pg, pageURL, err := h.preparePage(ctx, c)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	result, err := h.pipeline.RunAndHandoff(ctx, pageURL, pg)
	if err != nil {
		log.Printf("❌ [EXPORT] Full pipeline failed: %v", err)
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"provider":   result.Provider,
		"entries":    len(result.Document.Entries),
		"key":        result.Key,
		"viewer_url": result.ViewerURL,
		"expires_at": result.ExpiresAt.Format(time.RFC3339),
		"delivered":  result.Delivered,
	})
}

// HandleFiles runs the pipeline without handoff and returns the export
// artifacts for the file-export collaborator.
func (h *ExportHandler) HandleFiles(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), pipeline.Deadline)
	defer cancel()

	pg, pageURL, err := h.preparePage(ctx, c)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	result, err := h.pipeline.Run(ctx, pageURL, pg)
	if err != nil {
		log.Printf("❌ [EXPORT] Pipeline failed: %v", err)
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"provider": result.Provider,
		"entries":  len(result.Document.Entries),
		"text":     result.Files.Text,
		"eir":      result.Files.EIR,
	})
}

// HandleHandoff performs the handoff only, using the last-assembled
// document.
func (h *ExportHandler) HandleHandoff(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), pipeline.Deadline)
	defer cancel()

	result, err := h.pipeline.HandoffOnly(ctx)
	if err != nil {
		log.Printf("❌ [EXPORT] Handoff failed: %v", err)
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"key":        result.Key,
		"viewer_url": result.ViewerURL,
		"expires_at": result.ExpiresAt.Format(time.RFC3339),
		"delivered":  result.Delivered,
	})
}

// HandleScreenshot captures the current portal page, for diagnosing
// selector drift.
func (h *ExportHandler) HandleScreenshot(c *fiber.Ctx) error {
	session, err := h.session(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	png, err := session.Screenshot(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	c.Set("Content-Type", "image/png")
	return c.Send(png)
}

func (h *ExportHandler) preparePage(ctx context.Context, c *fiber.Ctx) (page.Page, string, error) {
	session, err := h.session(ctx)
	if err != nil {
		return nil, "", err
	}

	var req exportRequest
	_ = c.BodyParser(&req)

	if req.URL != "" {
		if err := session.Navigate(ctx, req.URL); err != nil {
			return nil, "", err
		}
	}

	pg := session.Page()
	url, err := pg.URL(ctx)
	if err != nil {
		return nil, "", err
	}
	return pg, url, nil
}
