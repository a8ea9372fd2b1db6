// Package recordings lists and resolves artifact files the agent engine
// leaves on disk: browser recordings and agent history documents. The kernel
// only serves them; producing them is the engine's business.
package recordings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Recording is one playable recording file.
type Recording struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

var videoExtensions = map[string]bool{
	".webm": true,
	".mp4":  true,
	".mkv":  true,
}

type Store struct {
	logger       *slog.Logger
	recordingDir string
	historyDir   string
}

func NewStore(logger *slog.Logger, recordingDir, historyDir string) *Store {
	return &Store{
		logger:       logger,
		recordingDir: recordingDir,
		historyDir:   historyDir,
	}
}

// RecordingDir returns dir, or the configured default when dir is empty.
func (s *Store) RecordingDir(dir string) string {
	if dir == "" {
		return s.recordingDir
	}
	return dir
}

// HistoryDir returns dir, or the configured default when dir is empty.
func (s *Store) HistoryDir(dir string) string {
	if dir == "" {
		return s.historyDir
	}
	return dir
}

// ListRecordings returns the video files under dir, oldest first, numbered
// the way the UI presents them. A missing directory lists as empty.
func (s *Store) ListRecordings(dir string) ([]Recording, error) {
	dir = s.RecordingDir(dir)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []Recording{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}

	type fileInfo struct {
		name    string
		modTime int64
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime < files[j].modTime })

	out := make([]Recording, 0, len(files))
	for i, f := range files {
		out = append(out, Recording{
			Path: filepath.Join(dir, f.name),
			Name: fmt.Sprintf("%d. %s", i+1, f.name),
		})
	}
	return out, nil
}

// ResolveRecording returns the on-disk path for filename inside dir,
// rejecting traversal outside it.
func (s *Store) ResolveRecording(dir, filename string) (string, error) {
	return resolveWithin(s.RecordingDir(dir), filename)
}

// ListHistoryFiles returns the .json history documents under dir, newest
// first.
func (s *Store) ListHistoryFiles(dir string) ([]string, error) {
	dir = s.HistoryDir(dir)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing history files: %w", err)
	}

	type fileInfo struct {
		name    string
		modTime int64
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime > files[j].modTime })

	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.name)
	}
	return out, nil
}

// ResolveHistory returns the on-disk path for a history document.
func (s *Store) ResolveHistory(dir, filename string) (string, error) {
	return resolveWithin(s.HistoryDir(dir), filename)
}

// resolveWithin joins filename onto dir and verifies the result stays inside
// it, then checks the file exists.
func resolveWithin(dir, filename string) (string, error) {
	cleanPath := filepath.Clean(filepath.Join(dir, filepath.Base(filename)))

	rel, err := filepath.Rel(dir, cleanPath)
	if err != nil || filepath.IsAbs(rel) || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid file path: directory traversal detected")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return "", fmt.Errorf("file not found: %w", err)
	}
	return cleanPath, nil
}
