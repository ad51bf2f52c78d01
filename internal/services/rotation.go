package services

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Timestamp layout for rotated file names. Lexicographic order matches
// chronological order, so pruning can sort on the name alone.
const rotatedTimeLayout = "20060102-150405"

// rotateIfNeeded renames the active store file to a timestamp-suffixed
// name once it reaches the configured size threshold, then prunes old
// rotated files beyond the retention count. Any open handle is closed
// first; the caller reopens lazily on the next write. Rotation failures
// are logged and swallowed so they can never abort a write.
// Caller holds s.mu.
func (s *AuditService) rotateIfNeeded() {
	path := s.dbPath()
	info, err := os.Stat(path)
	if err != nil {
		// Missing file means a fresh store; nothing to rotate.
		return
	}
	threshold := int64(s.cfg.MaxDBSizeMB) * 1024 * 1024
	if info.Size() < threshold {
		return
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing audit store for rotation")
		}
		s.db = nil
	}

	rotated := rotatedName(path, time.Now())
	if err := os.Rename(path, rotated); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to rotate audit store file")
		return
	}
	log.Info().Str("rotated", rotated).Msg("Rotated audit store file")

	s.pruneRotated()
}

// pruneRotated deletes all but the newest MaxRotatedFiles rotated
// store files in the data directory. Caller holds s.mu.
func (s *AuditService) pruneRotated() {
	names, err := s.rotatedFiles()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list rotated audit files")
		return
	}
	if len(names) <= s.cfg.MaxRotatedFiles {
		return
	}
	for _, name := range names[s.cfg.MaxRotatedFiles:] {
		full := filepath.Join(s.cfg.DataDir, name)
		if err := os.Remove(full); err != nil {
			log.Warn().Err(err).Str("path", full).Msg("Failed to delete old rotated audit file")
			continue
		}
		log.Info().Str("path", full).Msg("Deleted old rotated audit file")
	}
}

// rotatedFiles lists rotated store file names, newest first.
func (s *AuditService) rotatedFiles() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	prefix, suffix := rotatedAffixes(ActiveDBFile)
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == ActiveDBFile {
			continue
		}
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
			names = append(names, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// rotatedName builds the timestamp-suffixed name for a rotated store,
// e.g. audit.db -> audit-20260830-141500.db.
func rotatedName(activePath string, now time.Time) string {
	dir := filepath.Dir(activePath)
	prefix, suffix := rotatedAffixes(filepath.Base(activePath))
	return filepath.Join(dir, prefix+now.UTC().Format(rotatedTimeLayout)+suffix)
}

func rotatedAffixes(base string) (prefix, suffix string) {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-", ext
}
