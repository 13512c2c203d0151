// Package config resolves runtime settings from built-in defaults, DUPFINDER_*
// environment variables, the persisted settings table and command-line flags,
// in that order of increasing precedence.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dupfinder/imageprocessor"
	"dupfinder/logging"
	"dupfinder/types"
)

// Persisted setting keys
const (
	KeyThreshold      = "similarity_threshold"
	KeyScanMode       = "scan_mode"
	KeyAlgorithm      = "hash_algorithm"
	KeyWorkers        = "workers"
	KeyAutoDeleteDays = "auto_delete_days"
	KeyExcluded       = "excluded_folders"
	KeyTrashDir       = "trash_dir"
	KeyLastScan       = "last_scan"
)

const (
	DefaultThreshold      = 0.9
	DefaultAutoDeleteDays = 30
	DefaultDatabaseName   = "dupfinder.db"
	trashDirName          = ".trash"
)

// KV is the persisted key/value store settings are read from and written to
type KV interface {
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

// Settings holds every user-tunable value
type Settings struct {
	Threshold      float64
	Mode           types.ScanMode
	Algorithm      string
	Workers        int // 0 picks a CPU-based default
	AutoDeleteDays int
	Excluded       []string
	TrashDir       string
	DatabasePath   string
	LastScan       time.Time
}

// Defaults returns the built-in settings for a database at dbPath
func Defaults(dbPath string) Settings {
	return Settings{
		Threshold:      DefaultThreshold,
		Mode:           types.ModeSimilar,
		Algorithm:      imageprocessor.AlgorithmDCT,
		AutoDeleteDays: DefaultAutoDeleteDays,
		DatabasePath:   dbPath,
		TrashDir:       filepath.Join(filepath.Dir(dbPath), trashDirName),
	}
}

// DatabasePath picks the database location before anything else is loaded,
// since persisted settings live inside it
func DatabasePath(args map[string]string, fallback string) string {
	if v := args["database"]; v != "" {
		return v
	}
	if v := args["db"]; v != "" {
		return v
	}
	return getEnv("DUPFINDER_DATABASE", fallback)
}

// Load resolves settings for the database at dbPath. kv may be nil when no
// database is open.
func Load(ctx context.Context, kv KV, dbPath string, args map[string]string) (Settings, error) {
	s := Defaults(dbPath)
	s.applyEnv()

	if kv != nil {
		stored, err := kv.All(ctx)
		if err != nil {
			return s, err
		}
		s.applyValues(stored, "persisted")
	}

	if err := s.ApplyArgs(args); err != nil {
		return s, err
	}
	s.Normalize()
	return s, nil
}

func (s *Settings) applyEnv() {
	s.Threshold = getEnvFloat("DUPFINDER_THRESHOLD", s.Threshold)
	if v := getEnv("DUPFINDER_MODE", ""); v != "" {
		if m, err := types.ParseScanMode(v); err == nil {
			s.Mode = m
		} else {
			logging.LogWarning("Ignoring DUPFINDER_MODE: %v", err)
		}
	}
	s.Algorithm = getEnv("DUPFINDER_HASH_ALGORITHM", s.Algorithm)
	s.Workers = getEnvInt("DUPFINDER_WORKERS", s.Workers)
	s.AutoDeleteDays = getEnvInt("DUPFINDER_AUTO_DELETE_DAYS", s.AutoDeleteDays)
	s.Excluded = getEnvList("DUPFINDER_EXCLUDE", s.Excluded)
	s.TrashDir = getEnv("DUPFINDER_TRASH_DIR", s.TrashDir)
}

// applyValues overlays stored key/value pairs. Malformed values are logged and
// skipped so a bad row never blocks startup.
func (s *Settings) applyValues(values map[string]string, source string) {
	for k, v := range values {
		var err error
		switch k {
		case KeyThreshold:
			s.Threshold, err = parseFloat(v, s.Threshold)
		case KeyScanMode:
			var m types.ScanMode
			if m, err = types.ParseScanMode(v); err == nil {
				s.Mode = m
			}
		case KeyAlgorithm:
			s.Algorithm = v
		case KeyWorkers:
			s.Workers, err = parseInt(v, s.Workers)
		case KeyAutoDeleteDays:
			s.AutoDeleteDays, err = parseInt(v, s.AutoDeleteDays)
		case KeyExcluded:
			s.Excluded = splitList(v)
		case KeyTrashDir:
			s.TrashDir = v
		case KeyLastScan:
			var ms int64
			if ms, err = strconv.ParseInt(v, 10, 64); err == nil {
				s.LastScan = time.UnixMilli(ms)
			}
		default:
			logging.DebugLog("Ignoring unknown %s setting %q", source, k)
		}
		if err != nil {
			logging.LogWarning("Ignoring %s setting %s=%q: %v", source, k, v, err)
		}
	}
}

// ApplyArgs overlays command-line flags. Unlike stored values, a malformed
// flag is an error.
func (s *Settings) ApplyArgs(args map[string]string) error {
	if v, ok := args["threshold"]; ok {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid --threshold %q: %w", v, err)
		}
		s.Threshold = t
	}
	if v, ok := args["mode"]; ok {
		m, err := types.ParseScanMode(v)
		if err != nil {
			return fmt.Errorf("invalid --mode: %w", err)
		}
		s.Mode = m
	}
	if v, ok := args["algorithm"]; ok {
		s.Algorithm = strings.ToLower(v)
	}
	if v, ok := args["workers"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid --workers %q: %w", v, err)
		}
		s.Workers = n
	}
	if v, ok := args["auto-delete-days"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid --auto-delete-days %q: %w", v, err)
		}
		s.AutoDeleteDays = n
	}
	if v, ok := args["exclude"]; ok {
		s.Excluded = splitList(v)
	}
	if v, ok := args["trash-dir"]; ok && v != "" {
		s.TrashDir = v
	}
	return nil
}

// Normalize clamps values into their valid ranges
func (s *Settings) Normalize() {
	if s.Threshold < 0 {
		s.Threshold = 0
	}
	if s.Threshold > 1 {
		s.Threshold = 1
	}
	if s.AutoDeleteDays < 1 {
		s.AutoDeleteDays = 1
	}
	if s.Workers < 0 {
		s.Workers = 0
	}
	if s.Mode == "" {
		s.Mode = types.ModeSimilar
	}
	if s.Algorithm == "" {
		s.Algorithm = imageprocessor.AlgorithmDCT
	}
}

// Values renders the persisted subset of s. DatabasePath is never stored.
func (s Settings) Values() map[string]string {
	v := map[string]string{
		KeyThreshold:      strconv.FormatFloat(s.Threshold, 'f', -1, 64),
		KeyScanMode:       string(s.Mode),
		KeyAlgorithm:      s.Algorithm,
		KeyWorkers:        strconv.Itoa(s.Workers),
		KeyAutoDeleteDays: strconv.Itoa(s.AutoDeleteDays),
		KeyExcluded:       strings.Join(s.Excluded, ","),
		KeyTrashDir:       s.TrashDir,
	}
	if !s.LastScan.IsZero() {
		v[KeyLastScan] = strconv.FormatInt(s.LastScan.UnixMilli(), 10)
	}
	return v
}

// Save normalizes s and persists it
func Save(ctx context.Context, kv KV, s Settings) error {
	s.Normalize()
	for k, v := range s.Values() {
		if err := kv.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// RecordScan stores the time of the last completed scan
func RecordScan(ctx context.Context, kv KV, at time.Time) error {
	return kv.Set(ctx, KeyLastScan, strconv.FormatInt(at.UnixMilli(), 10))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		n, err := parseInt(value, defaultValue)
		if err != nil {
			logging.LogWarning("Ignoring %s=%q: %v", key, value, err)
		}
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := parseFloat(value, defaultValue)
		if err != nil {
			logging.LogWarning("Ignoring %s=%q: %v", key, value, err)
		}
		return f
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitList(value)
	}
	return defaultValue
}

func parseInt(s string, fallback int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback, err
	}
	return n, nil
}

func parseFloat(s string, fallback float64) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fallback, err
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
