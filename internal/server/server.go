// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Package server is the web front-end of the pipeline: file upload,
// background runs with SSE progress, and result downloads. All state is
// in-memory plus per-session directories on disk.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"

	"github.com/glycomics/glycoprep/pkg/config"
	"github.com/glycomics/glycoprep/pkg/pipeline"
)

const (
	matchedFilename   = "matched_glycans.tsv"
	unmatchedFilename = "unmatched_peaks.tsv"
	sqliteFilename    = "results.db"

	streamTimeout = 10 * time.Minute
)

var allowedExtensions = map[string]bool{".xlsx": true, ".xls": true}

var downloadWhitelist = map[string]bool{
	matchedFilename:   true,
	unmatchedFilename: true,
	sqliteFilename:    true,
}

// Server wires the session tracker and pipeline to HTTP handlers.
type Server struct {
	cfg     *config.Config
	tracker *Tracker
}

// New builds the fiber application with all routes registered.
func New(cfg *config.Config) (*Server, *fiber.App) {
	s := &Server{cfg: cfg, tracker: NewTracker()}

	app := fiber.New(fiber.Config{
		AppName:   cfg.AppName,
		BodyLimit: int(cfg.MaxUploadBytes) * 4,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
	}))

	app.Get("/api/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "app": cfg.AppName})
	})
	app.Post("/api/upload", s.Upload)
	app.Get("/api/session/:id", s.GetSession)
	app.Get("/api/session/:id/stream", s.StreamSSE)
	app.Get("/api/download/:id/:filename", s.Download)

	go s.janitor(cfg.CleanupInterval, cfg.SessionMaxAge)

	return s, app
}

// janitor periodically expires old sessions so finished runs do not
// accumulate on disk forever.
func (s *Server) janitor(interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for range t.C {
		s.cleanupSessions(time.Now(), maxAge)
	}
}

// cleanupSessions removes session directories whose last modification is
// older than maxAge, together with their tracker entries. Best effort: an
// undeletable directory is logged and retried on the next sweep.
func (s *Server) cleanupSessions(now time.Time, maxAge time.Duration) {
	entries, err := os.ReadDir(s.cfg.SessionsRoot)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.cfg.SessionsRoot, e.Name())); err != nil {
			slog.Warn("failed to remove expired session", "session", e.Name(), "error", err)
			continue
		}
		s.tracker.Remove(e.Name())
	}
}

// Upload accepts the input workbooks, registers a session, and starts the
// pipeline in the background.
func (s *Server) Upload(c fiber.Ctx) error {
	if s.tracker.ActiveCount() >= s.cfg.MaxSessions {
		return c.Status(fiber.StatusServiceUnavailable).
			JSON(fiber.Map{"error": "too many active sessions, try again later"})
	}

	peaksFile, err := c.FormFile("peaks_file")
	if err != nil {
		return badRequest(c, "peaks_file is required")
	}
	metadataFile, err := c.FormFile("metadata_file")
	if err != nil {
		return badRequest(c, "metadata_file is required")
	}
	referenceFile, _ := c.FormFile("glycan_db_file") // optional

	for label, fh := range map[string]*multipart.FileHeader{
		"peaks_file": peaksFile, "metadata_file": metadataFile, "glycan_db_file": referenceFile,
	} {
		if fh == nil {
			continue
		}
		if err := s.validateUpload(fh); err != nil {
			return badRequest(c, fmt.Sprintf("%s: %v", label, err))
		}
	}

	ppmThreshold, err := strconv.ParseFloat(c.FormValue("ppm_threshold", "100"), 64)
	if err != nil || ppmThreshold <= 0 {
		return badRequest(c, "ppm_threshold must be a positive number")
	}
	skipRows, err := strconv.Atoi(c.FormValue("skip_rows", "2"))
	if err != nil || skipRows < 0 {
		return badRequest(c, "skip_rows must be a non-negative integer")
	}
	var minSN *float64
	if v := c.FormValue("min_sn"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return badRequest(c, "min_sn must be a number")
		}
		minSN = &f
	}

	sid := uuid.NewString()
	dir := filepath.Join(s.cfg.SessionsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create session directory"})
	}

	peaksPath := filepath.Join(dir, "peaks.xlsx")
	metadataPath := filepath.Join(dir, "metadata.xlsx")
	referencePath := s.cfg.BundledReferencePath
	if err := c.SaveFile(peaksFile, peaksPath); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store peaks file"})
	}
	if err := c.SaveFile(metadataFile, metadataPath); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store metadata file"})
	}
	if referenceFile != nil {
		referencePath = filepath.Join(dir, "glycan_db.xlsx")
		if err := c.SaveFile(referenceFile, referencePath); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store reference file"})
		}
	}

	s.tracker.Create(sid, dir)
	opt := pipeline.Options{
		PeaksPath:     peaksPath,
		MetadataPath:  metadataPath,
		ReferencePath: referencePath,
		OutputPath:    filepath.Join(dir, matchedFilename),
		UnmatchedPath: filepath.Join(dir, unmatchedFilename),
		SQLitePath:    filepath.Join(dir, sqliteFilename),
		PPMThreshold:  ppmThreshold,
		SkipRows:      skipRows,
		MinSN:         minSN,
		Workers:       s.cfg.Workers,
	}
	go s.runPipeline(sid, opt)

	return c.JSON(fiber.Map{
		"session_id": sid,
		"status":     StatusRunning,
		"stream_url": "/api/session/" + sid + "/stream",
	})
}

func (s *Server) runPipeline(sid string, opt pipeline.Options) {
	lastStep := 0
	emit := func(ev pipeline.Event) {
		lastStep = ev.Step
		typ := "progress"
		if ev.Status == "done" {
			typ = "step_complete"
		}
		s.tracker.Publish(sid, StreamEvent{
			Type:       typ,
			Step:       ev.Step,
			TotalSteps: ev.TotalSteps,
			Label:      ev.Label,
			Detail:     ev.Detail,
		})
	}

	res, err := pipeline.Run(context.Background(), opt, emit)
	if err != nil {
		slog.Error("pipeline failed", "session", sid, "step", lastStep, "error", err)
		s.tracker.Fail(sid, lastStep, err.Error())
		return
	}
	slog.Info("pipeline complete", "session", sid,
		"match_rows", res.Stats.MatchRows, "samples", len(res.Shifts))
	s.tracker.Complete(sid, buildPayload(sid, res))
}

// GetSession polls session status. Sessions lost to a restart fall back to
// their on-disk downloads.
func (s *Server) GetSession(c fiber.Ctx) error {
	sid := c.Params("id")
	if _, err := uuid.Parse(sid); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	if sess, ok := s.tracker.Get(sid); ok {
		return c.JSON(sess)
	}

	dir := filepath.Join(s.cfg.SessionsRoot, sid)
	if entries, err := os.ReadDir(dir); err == nil {
		var downloads []string
		for _, e := range entries {
			if downloadWhitelist[e.Name()] {
				downloads = append(downloads, e.Name())
			}
		}
		if len(downloads) > 0 {
			return c.JSON(Session{
				ID:     sid,
				Status: StatusDone,
				Result: &ResultPayload{SessionID: sid, Downloads: downloads},
				Note:   "session restored from disk; only downloads are available",
			})
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
}

// StreamSSE streams pipeline progress as server-sent events until the run
// completes or fails.
func (s *Server) StreamSSE(c fiber.Ctx) error {
	sid := c.Params("id")
	if _, ok := s.tracker.Get(sid); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	// Subscribing returns the session state from the same critical
	// section, so a run that finished between the lookup above and the
	// registration still surfaces here instead of leaving the stream
	// waiting for a terminal event that was published to nobody.
	ch, sess := s.tracker.Subscribe(sid)
	if sess.Status == StatusDone || sess.Status == StatusError {
		s.tracker.Unsubscribe(sid, ch)
		ev := StreamEvent{Type: "complete", Result: sess.Result}
		if sess.Status == StatusError {
			ev = StreamEvent{Type: "error", Message: sess.Error}
		}
		data, _ := json.Marshal(ev)
		return c.SendString(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data))
	}
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer s.tracker.Unsubscribe(sid, ch)
		timeout := time.After(streamTimeout)
		for {
			select {
			case ev, open := <-ch:
				if !open {
					return
				}
				data, _ := json.Marshal(ev)
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
				w.Flush()
				if ev.Type == "complete" || ev.Type == "error" {
					return
				}
			case <-timeout:
				slog.Warn("SSE stream timeout", "session", sid)
				return
			}
		}
	})
}

// Download serves one of the whitelisted result files of a session.
func (s *Server) Download(c fiber.Ctx) error {
	sid := c.Params("id")
	filename := c.Params("filename")
	// Session ids are always UUIDs; anything else cannot name a session
	// directory and must not reach the path join.
	if _, err := uuid.Parse(sid); err != nil {
		return badRequest(c, "invalid session id")
	}
	if !downloadWhitelist[filename] {
		return badRequest(c, fmt.Sprintf("file %q is not available for download", filename))
	}
	path := filepath.Join(s.cfg.SessionsRoot, sid, filename)
	if _, err := os.Stat(path); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "file not found for session"})
	}
	return c.Download(path, filename)
}

func (s *Server) validateUpload(fh *multipart.FileHeader) error {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported file type %q, use .xlsx or .xls", ext)
	}
	if fh.Size > s.cfg.MaxUploadBytes {
		return fmt.Errorf("file exceeds %d byte limit", s.cfg.MaxUploadBytes)
	}
	return nil
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
