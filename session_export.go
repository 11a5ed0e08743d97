package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"droidctl/pkg/types"
)

// ========================================
// Session Export/Import
// ========================================

// exportManifest is the first line of an exported archive
type exportManifest struct {
	FormatVersion int                  `json:"formatVersion"` // 1
	ExportTime    int64                `json:"exportTime"`    // Unix ms
	Session       types.CaptureSession `json:"session"`
}

// ExportSession writes a recorded session to a gzipped JSONL archive:
// one manifest line followed by one line per log entry. Returns the
// final output path.
func ExportSession(store *SessionStore, sessionID, outputPath string) (string, error) {
	session, err := store.GetSession(sessionID)
	if err != nil {
		return "", err
	}

	if outputPath == "" {
		safeName := strings.ReplaceAll(session.Name, " ", "_")
		safeName = strings.ReplaceAll(safeName, "/", "_")
		ts := time.UnixMilli(session.StartTime).Format("2006-01-02")
		outputPath = fmt.Sprintf("%s_%s.jsonl.gz", safeName, ts)
	}
	if !strings.HasSuffix(outputPath, ".jsonl.gz") {
		outputPath += ".jsonl.gz"
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	LogInfo("session_export").Str("sessionId", session.ID).Str("path", outputPath).Msg("Starting session export")

	f, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	encoder := json.NewEncoder(gz)

	manifest := exportManifest{
		FormatVersion: 1,
		ExportTime:    time.Now().UnixMilli(),
		Session:       session,
	}
	if err := encoder.Encode(manifest); err != nil {
		gz.Close()
		os.Remove(outputPath)
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}

	exported := 0
	const pageSize = 5000
	for offset := 0; ; offset += pageSize {
		page, err := store.QueryEntries(types.SessionQuery{
			SessionID: sessionID,
			Limit:     pageSize,
			Offset:    offset,
		})
		if err != nil {
			gz.Close()
			os.Remove(outputPath)
			return "", fmt.Errorf("failed to read entries: %w", err)
		}
		for _, entry := range page.Entries {
			if err := encoder.Encode(entry); err != nil {
				gz.Close()
				os.Remove(outputPath)
				return "", fmt.Errorf("failed to encode entry: %w", err)
			}
			exported++
		}
		if len(page.Entries) < pageSize {
			break
		}
	}

	if err := gz.Close(); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}

	LogInfo("session_export").
		Str("sessionId", session.ID).
		Int("entryCount", exported).
		Str("path", outputPath).
		Msg("Session exported successfully")

	return outputPath, nil
}

// ImportSession reads an archive written by ExportSession into the
// store under a fresh session ID. Returns the new ID.
func ImportSession(store *SessionStore, inputPath string) (string, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to read archive: %w", err)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		return "", fmt.Errorf("invalid archive: missing manifest")
	}
	var manifest exportManifest
	if err := json.Unmarshal(scanner.Bytes(), &manifest); err != nil {
		return "", fmt.Errorf("failed to parse manifest: %w", err)
	}
	if manifest.FormatVersion != 1 {
		return "", fmt.Errorf("unsupported archive format version: %d", manifest.FormatVersion)
	}

	session, err := store.StartSession(manifest.Session.DeviceID, manifest.Session.Name+" (imported)")
	if err != nil {
		return "", err
	}
	imported := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry types.LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			LogWarn("session_import").Err(err).Msg("Skipping malformed entry line")
			continue
		}
		store.AppendEntry(session.ID, entry)
		imported++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read entries: %w", err)
	}

	if err := store.EndSession(session.ID); err != nil {
		return "", err
	}

	LogInfo("session_import").
		Str("oldId", manifest.Session.ID).
		Str("newId", session.ID).
		Int("entryCount", imported).
		Msg("Session imported successfully")

	return session.ID, nil
}
