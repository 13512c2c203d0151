package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Commands understood by the CLI
var commands = map[string]bool{
	"scan":     true,
	"trash":    true,
	"cleanup":  true,
	"settings": true,
	"formats":  true,
}

// ParseArguments converts command-line arguments into a map of flags and values
func ParseArguments() map[string]string {
	return ParseArgs(os.Args[1:])
}

// ParseArgs does the work of ParseArguments on an explicit argument list.
// The first known command goes under "command", the first positional word
// after it under "subcommand" (trash only) and remaining positionals,
// newline-joined, under "args".
func ParseArgs(argv []string) map[string]string {
	args := make(map[string]string)
	var positional []string

	for i := 0; i < len(argv); i++ {
		arg := argv[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flagName := strings.TrimPrefix(parts[0], "--")
			args[flagName] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value)
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// Check if this is a boolean flag (no value)
			if i+1 >= len(argv) || strings.HasPrefix(argv[i+1], "--") || isBoolFlag(flagName) {
				args[flagName] = "true"
			} else {
				args[flagName] = argv[i+1]
				i++ // Skip the value in the next iteration
			}
			continue
		}

		if _, ok := args["command"]; !ok && commands[arg] {
			args["command"] = arg
			continue
		}
		if args["command"] == "trash" && args["subcommand"] == "" {
			args["subcommand"] = arg
			continue
		}
		positional = append(positional, arg)
	}

	if len(positional) > 0 {
		args["args"] = strings.Join(positional, "\n")
	}
	return args
}

// Flags that never take a value, so "--debug scan" parses as intended
var boolFlags = map[string]bool{
	"debug":   true,
	"trash":   true,
	"once":    true,
	"dry-run": true,
	"yes":     true,
	"help":    true,
}

func isBoolFlag(name string) bool { return boolFlags[name] }

// Positionals returns the positional arguments collected by ParseArgs
func Positionals(args map[string]string) []string {
	if args["args"] == "" {
		return nil
	}
	return strings.Split(args["args"], "\n")
}

// FlagSet reports whether a boolean flag was given and not explicitly false
func FlagSet(args map[string]string, name string) bool {
	v, ok := args[name]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}

// GetDefaultDatabasePath returns the default path for the database file
func GetDefaultDatabasePath() string {
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "dupfinder.db"
	}
	return filepath.Join(filepath.Dir(exePath), "dupfinder.db")
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	name := filepath.Base(os.Args[0])
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s scan [FOLDER...] [--folder=PATH[:PATH]] [--mode=exact|similar] [--threshold=VALUE]\n", name)
	fmt.Printf("       [--algorithm=dct|dhash|phash64] [--workers=N] [--exclude=a,b] [--output=FILE.xlsx|FILE.json]\n")
	fmt.Printf("       [--min-size=SIZE] [--max-size=SIZE] [--since=DATE] [--until=DATE] [--kind=exact,similar,both]\n")
	fmt.Printf("       [--mime=image/jpeg,...] [--in-folder=a,b] [--trash]\n")
	fmt.Printf("  %s trash list|restore ID...|delete ID...|empty\n", name)
	fmt.Printf("  %s cleanup [--once] [--interval=DURATION]\n", name)
	fmt.Printf("  %s settings [--threshold=VALUE] [--mode=MODE] [--algorithm=NAME] [--auto-delete-days=N] [--exclude=a,b] [--trash-dir=PATH]\n", name)
	fmt.Printf("  %s formats\n", name)
	fmt.Printf("\nCommon parameters:\n")
	fmt.Printf("  --database    : Path to database file (default: %s)\n", GetDefaultDatabasePath())
	fmt.Printf("  --debug       : Enable debug mode (logs detailed information)\n")
	fmt.Printf("  --logfile     : Specify custom log file path (default: dupfinder.log)\n")
	fmt.Printf("\nScan parameters:\n")
	fmt.Printf("  --threshold   : Similarity threshold (0.0-1.0, default: 0.9)\n")
	fmt.Printf("  --mode        : exact finds byte-identical files only; similar also compares perceptual hashes\n")
	fmt.Printf("  --output      : Write the report to an .xlsx or .json file\n")
	fmt.Printf("  --trash       : Move every duplicate except the earliest-modified image of each group to the trash\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s scan ~/Pictures --threshold=0.85 --output=dupes.xlsx\n", name)
	fmt.Printf("  %s trash restore 12 13\n", name)
}

// ParseThreshold parses and validates the threshold value from string
func ParseThreshold(thresholdStr string) (float64, error) {
	parsedThreshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil || parsedThreshold < 0 || parsedThreshold > 1 {
		return 0.9, fmt.Errorf("invalid threshold value '%s', using default (0.9)", thresholdStr)
	}
	return parsedThreshold, nil
}

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"G", 1 << 30},
	{"M", 1 << 20},
	{"K", 1 << 10},
	{"B", 1},
}

// ParseSize parses a byte count with an optional K/KB/M/MB/G/GB suffix
func ParseSize(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(v, u.suffix) {
			v = strings.TrimSpace(strings.TrimSuffix(v, u.suffix))
			mult = u.mult
			break
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(f * float64(mult)), nil
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 and returns local time
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
	}
	return t, nil
}

// SplitList splits a comma separated flag value, dropping empty parts
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FormatBytes renders a byte count for humans
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
