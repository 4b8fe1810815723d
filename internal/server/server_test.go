// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/glycomics/glycoprep/pkg/config"
)

func testServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()
	cfg := config.Load()
	cfg.SessionsRoot = t.TempDir()
	s, app := New(cfg)
	return s, app
}

func TestHealth(t *testing.T) {
	_, app := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("health body = %v", body)
	}
}

func TestUploadRejectsMissingFiles(t *testing.T) {
	_, app := testServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing files", resp.StatusCode)
	}
}

func TestUploadRejectsBadExtension(t *testing.T) {
	_, app := testServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, field := range []struct{ name, filename string }{
		{"peaks_file", "peaks.csv"},
		{"metadata_file", "meta.xlsx"},
	} {
		fw, err := mw.CreateFormFile(field.name, field.filename)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, "not a workbook")
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a .csv upload", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("unsupported file type")) {
		t.Errorf("body = %s", body)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	_, app := testServer(t)

	// Both a well-formed unknown id and a malformed id come back 404; a
	// malformed id must never reach the filesystem.
	for _, sid := range []string{uuid.NewString(), "nope", "..%2f..%2fetc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/session/"+sid, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("session %q: status = %d, want 404", sid, resp.StatusCode)
		}
	}
}

func TestGetSessionRestoredFromDisk(t *testing.T) {
	s, app := testServer(t)

	sid := uuid.NewString()
	dir := filepath.Join(s.cfg.SessionsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, matchedFilename), []byte("header\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/session/"+sid, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatal(err)
	}
	if sess.Status != StatusDone || sess.Result == nil {
		t.Errorf("restored session = %+v", sess)
	}
	if len(sess.Result.Downloads) != 1 || sess.Result.Downloads[0] != matchedFilename {
		t.Errorf("restored downloads = %v", sess.Result.Downloads)
	}
}

func TestDownloadWhitelist(t *testing.T) {
	_, app := testServer(t)
	sid := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/api/download/"+sid+"/secrets.txt", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a non-whitelisted file", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/download/"+sid+"/"+matchedFilename, nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for a missing session file", resp.StatusCode)
	}
}

func TestDownloadRejectsMalformedSessionID(t *testing.T) {
	_, app := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/download/not-a-uuid/"+matchedFilename, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a malformed session id", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("invalid session id")) {
		t.Errorf("body = %s", body)
	}
}

func TestCleanupSessions(t *testing.T) {
	s, _ := testServer(t)

	stale := uuid.NewString()
	fresh := uuid.NewString()
	for _, sid := range []string{stale, fresh} {
		dir := filepath.Join(s.cfg.SessionsRoot, sid)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		s.tracker.Create(sid, dir)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(filepath.Join(s.cfg.SessionsRoot, stale), old, old); err != nil {
		t.Fatal(err)
	}

	s.cleanupSessions(time.Now(), 2*time.Hour)

	if _, err := os.Stat(filepath.Join(s.cfg.SessionsRoot, stale)); !os.IsNotExist(err) {
		t.Errorf("stale session directory still exists (err=%v)", err)
	}
	if _, ok := s.tracker.Get(stale); ok {
		t.Error("stale session still tracked after cleanup")
	}
	if _, err := os.Stat(filepath.Join(s.cfg.SessionsRoot, fresh)); err != nil {
		t.Errorf("fresh session directory was removed: %v", err)
	}
	if _, ok := s.tracker.Get(fresh); !ok {
		t.Error("fresh session dropped from the tracker")
	}
}
