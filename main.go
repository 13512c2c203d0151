package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"dupfinder/config"
	"dupfinder/database"
	"dupfinder/grouping"
	"dupfinder/hashing"
	"dupfinder/imageprocessor"
	"dupfinder/logging"
	"dupfinder/media"
	"dupfinder/report"
	"dupfinder/scanner"
	"dupfinder/signalhandler"
	"dupfinder/trash"
	"dupfinder/types"
	"dupfinder/utils"

	"github.com/schollz/progressbar/v3"
)

func main() {
	ctx, cancel := signalhandler.SetupHandler(context.Background())
	defer cancel()

	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	args := utils.ParseArguments()
	command, hasCommand := args["command"]
	if !hasCommand || utils.FlagSet(args, "help") {
		utils.PrintUsage()
		if !hasCommand {
			os.Exit(1)
		}
		return
	}

	if utils.FlagSet(args, "debug") {
		logPath := "dupfinder.log"
		if customLogPath, ok := args["logfile"]; ok && customLogPath != "" {
			logPath = customLogPath
		}
		if err := logging.SetupLogger(logPath); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", logPath)
		}
		defer logging.CloseLogger()
	}

	if command == "formats" {
		printFormats()
		return
	}

	dbPath := config.DatabasePath(args, utils.GetDefaultDatabasePath())
	db, err := openDatabase(dbPath)
	if err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	defer db.Close()

	kv := database.NewSettingsStore(db)
	settings, err := config.Load(ctx, kv, dbPath, args)
	if err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	switch command {
	case "scan":
		err = handleScanCommand(ctx, db, kv, settings, args)
	case "trash":
		err = handleTrashCommand(ctx, db, settings, args)
	case "cleanup":
		err = handleCleanupCommand(ctx, db, settings, args)
	case "settings":
		err = handleSettingsCommand(ctx, db, kv, settings, args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}

	if errors.Is(err, scanner.ErrCancelled) {
		fmt.Println("\nCancelled.")
		os.Exit(130)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// openDatabase retries briefly since another instance may hold the write lock
func openDatabase(dbPath string) (*sql.DB, error) {
	var db *sql.DB
	var err error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		db, err = database.InitDatabase(dbPath)
		if err == nil {
			return db, nil
		}
		if i < maxRetries-1 {
			log.Printf("Error initializing database (attempt %d/%d): %v - retrying...", i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxRetries, err)
}

func handleScanCommand(ctx context.Context, db *sql.DB, kv *database.SettingsStore, settings config.Settings, args map[string]string) error {
	roots := utils.Positionals(args)
	if folder := args["folder"]; folder != "" {
		roots = append(roots, filepath.SplitList(folder)...)
	}
	if len(roots) == 0 {
		return errors.New("no folder to scan (pass one or more folders or --folder=PATH)")
	}

	criteria, err := filterCriteria(args)
	if err != nil {
		return err
	}

	hasher, err := imageprocessor.NewHasher(settings.Algorithm, imageprocessor.NewImageLoaderRegistry())
	if err != nil {
		return err
	}

	source := media.NewFileSource(roots, settings.Excluded)
	defer source.Close()

	workers := settings.Workers
	if workers == 0 {
		workers = signalhandler.GetOptimalProcs()
	}

	s := &scanner.Scanner{
		Source:    source,
		Cache:     database.NewHashCache(db),
		Hasher:    hasher,
		Digest:    hashing.DigestFile,
		Threshold: settings.Threshold,
		Mode:      settings.Mode,
		Workers:   workers,
	}

	fmt.Printf("Scanning %d folder(s), mode %s, threshold %.2f, hash %s, %d workers\n",
		len(roots), settings.Mode, settings.Threshold, hasher.Name(), workers)

	result, err := runWithProgress(ctx, s)
	if err != nil {
		return err
	}
	if err := config.RecordScan(ctx, kv, result.Timestamp); err != nil {
		logging.LogWarning("Cannot record scan time: %v", err)
	}

	if criteria.HasActiveFilters() {
		result.Groups = grouping.ApplyFilter(result.Groups, criteria)
		result.TotalDuplicates, result.PotentialSavings = 0, 0
		for _, g := range result.Groups {
			result.TotalDuplicates += len(g.Images) - 1
			result.PotentialSavings += g.PotentialSavings
		}
	}

	printResult(result)

	if out := args["output"]; out != "" {
		if err := report.Write(out, result); err != nil {
			return fmt.Errorf("cannot write report: %w", err)
		}
		fmt.Printf("Report written to %s\n", out)
	}

	if utils.FlagSet(args, "trash") && result.HasDuplicates() {
		m, err := newTrashManager(db, settings)
		if err != nil {
			return err
		}
		var victims []types.ImageRecord
		for _, g := range result.Groups {
			victims = append(victims, g.Duplicates()...)
		}
		moved, err := m.MoveToTrash(ctx, victims)
		fmt.Printf("Moved %d of %d duplicates to %s (kept for %d days)\n", moved, len(victims), m.Dir(), settings.AutoDeleteDays)
		if err != nil {
			return err
		}
	}
	return nil
}

// runWithProgress consumes the scan event stream and renders each phase
// as a progress bar
func runWithProgress(ctx context.Context, s *scanner.Scanner) (*types.ScanResult, error) {
	var bar *progressbar.ProgressBar
	var phase types.ScanPhase

	for ev := range scanner.Events(ctx, s) {
		if ev.Result != nil || ev.Err != nil {
			if bar != nil {
				_ = bar.Finish()
				fmt.Println()
			}
			return ev.Result, ev.Err
		}

		p := ev.Progress
		if p.Phase.Terminal() {
			continue
		}
		if p.Phase != phase || bar == nil {
			if bar != nil {
				_ = bar.Finish()
				fmt.Println()
			}
			phase = p.Phase
			bar = progressbar.Default(int64(p.Total), string(p.Phase))
		}
		if p.Total > 0 {
			bar.ChangeMax(p.Total)
		}
		_ = bar.Set(p.Current)
		if p.Message != "" {
			bar.Describe(p.Message)
		}
	}
	return nil, scanner.ErrCancelled
}

func printResult(result *types.ScanResult) {
	fmt.Printf("\nScan completed in %v\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("- Images scanned: %d\n", result.TotalImages)
	if len(result.Unhashed) > 0 {
		fmt.Printf("- Images that could not be hashed: %d\n", len(result.Unhashed))
		if !logging.Enabled() {
			fmt.Println("  (run with --debug to log the reason for each one)")
		}
	}
	fmt.Printf("- Duplicate groups: %d\n", len(result.Groups))
	fmt.Printf("- Duplicate images: %d\n", result.TotalDuplicates)
	fmt.Printf("- Potential savings: %s\n", utils.FormatBytes(result.PotentialSavings))

	limit := 10
	for i, g := range result.Groups {
		if i == limit {
			fmt.Printf("\n... and %d more groups\n", len(result.Groups)-limit)
			break
		}
		fmt.Printf("\n%d. %s match, score %.3f, saves %s\n", i+1, g.Kind, g.Score, utils.FormatBytes(g.PotentialSavings))
		for j, img := range g.Images {
			marker := " "
			if j == 0 {
				marker = "*"
			}
			fmt.Printf("   %s %s (%s)\n", marker, img.Path, utils.FormatBytes(img.Size))
		}
	}
}

// filterCriteria builds result filters from scan flags
func filterCriteria(args map[string]string) (types.FilterCriteria, error) {
	var c types.FilterCriteria

	c.Folders = utils.SplitList(args["in-folder"])
	c.MimeTypes = utils.SplitList(args["mime"])
	for _, k := range utils.SplitList(args["kind"]) {
		kind, err := types.ParseMatchKind(k)
		if err != nil {
			return c, err
		}
		c.MatchKinds = append(c.MatchKinds, kind)
	}

	for flag, dst := range map[string]**int64{"min-size": &c.MinSize, "max-size": &c.MaxSize} {
		if v := args[flag]; v != "" {
			n, err := utils.ParseSize(v)
			if err != nil {
				return c, fmt.Errorf("--%s: %w", flag, err)
			}
			*dst = &n
		}
	}

	since, until := args["since"], args["until"]
	if since != "" || until != "" {
		r := types.DateRange{Start: 0, End: 1<<63 - 1}
		if since != "" {
			t, err := utils.ParseDate(since)
			if err != nil {
				return c, err
			}
			r.Start = t.UnixMilli()
		}
		if until != "" {
			t, err := utils.ParseDate(until)
			if err != nil {
				return c, err
			}
			// A bare date includes the whole day
			r.End = t.Add(24*time.Hour).UnixMilli() - 1
		}
		c.DateRange = &r
	}
	return c, nil
}

func newTrashManager(db *sql.DB, settings config.Settings) (*trash.Manager, error) {
	return trash.NewManager(database.NewTrashStore(db), database.NewHashCache(db), settings.TrashDir, settings.AutoDeleteDays)
}

func handleTrashCommand(ctx context.Context, db *sql.DB, settings config.Settings, args map[string]string) error {
	m, err := newTrashManager(db, settings)
	if err != nil {
		return err
	}

	sub := args["subcommand"]
	if sub == "" {
		sub = "list"
	}

	switch sub {
	case "list":
		items, err := m.Items(ctx)
		if err != nil {
			return err
		}
		size, err := m.Size(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d item(s) in trash, %s\n", len(items), utils.FormatBytes(size))
		now := time.Now()
		for _, it := range items {
			fmt.Printf("%6d  %-10s  %3d days left  %s\n", it.ID, utils.FormatBytes(it.Size), it.DaysUntilExpiry(now), it.OriginalPath)
		}
		return nil

	case "restore", "delete":
		items, err := trashItems(ctx, m, utils.Positionals(args))
		if err != nil {
			return err
		}
		var n int
		if sub == "restore" {
			n, err = m.Restore(ctx, items)
			fmt.Printf("Restored %d of %d item(s)\n", n, len(items))
		} else {
			n, err = m.DeletePermanently(ctx, items)
			fmt.Printf("Deleted %d of %d item(s)\n", n, len(items))
		}
		return err

	case "empty":
		n, err := m.Empty(ctx)
		fmt.Printf("Deleted %d item(s)\n", n)
		return err
	}
	return fmt.Errorf("unknown trash command %q (use list, restore, delete or empty)", sub)
}

func trashItems(ctx context.Context, m *trash.Manager, ids []string) ([]types.TrashItem, error) {
	if len(ids) == 0 {
		return nil, errors.New("no trash item IDs given")
	}
	items := make([]types.TrashItem, 0, len(ids))
	for _, s := range ids {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid trash item ID %q", s)
		}
		it, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func handleCleanupCommand(ctx context.Context, db *sql.DB, settings config.Settings, args map[string]string) error {
	m, err := newTrashManager(db, settings)
	if err != nil {
		return err
	}

	if utils.FlagSet(args, "once") {
		n, err := m.DeleteExpired(ctx)
		fmt.Printf("Removed %d expired item(s)\n", n)
		return err
	}

	interval := trash.DefaultCleanupInterval
	if v := args["interval"]; v != "" {
		interval, err = time.ParseDuration(v)
		if err != nil || interval <= 0 {
			return fmt.Errorf("invalid --interval %q", v)
		}
	}
	fmt.Printf("Sweeping expired trash every %v (Ctrl+C to stop)\n", interval)
	trash.RunCleanup(ctx, m, interval)
	return nil
}

func handleSettingsCommand(ctx context.Context, db *sql.DB, kv *database.SettingsStore, settings config.Settings, args map[string]string) error {
	changed := false
	for _, k := range []string{"threshold", "mode", "algorithm", "workers", "auto-delete-days", "exclude", "trash-dir"} {
		if _, ok := args[k]; ok {
			changed = true
		}
	}
	if changed {
		if _, err := imageprocessor.NewHasher(settings.Algorithm, nil); err != nil {
			return err
		}
		if err := config.Save(ctx, kv, settings); err != nil {
			return err
		}
		fmt.Println("Settings saved.")
	}

	fmt.Printf("Database:          %s\n", settings.DatabasePath)
	fmt.Printf("Threshold:         %.2f\n", settings.Threshold)
	fmt.Printf("Scan mode:         %s\n", settings.Mode)
	fmt.Printf("Hash algorithm:    %s\n", settings.Algorithm)
	if settings.Workers == 0 {
		fmt.Printf("Workers:           auto (%d)\n", signalhandler.GetOptimalProcs())
	} else {
		fmt.Printf("Workers:           %d\n", settings.Workers)
	}
	fmt.Printf("Auto-delete days:  %d\n", settings.AutoDeleteDays)
	fmt.Printf("Excluded folders:  %v\n", settings.Excluded)
	fmt.Printf("Trash directory:   %s\n", settings.TrashDir)
	if !settings.LastScan.IsZero() {
		fmt.Printf("Last scan:         %s\n", settings.LastScan.Format(time.RFC1123))
	}

	stats, err := database.GetCacheStats(db)
	if err == nil {
		fmt.Printf("\nCache: %d hashed images\n", stats.Entries)
	}
	return nil
}

func printFormats() {
	fmt.Println("Supported image extensions:")
	for _, ext := range imageprocessor.GetSupportedExtensions() {
		kind := ""
		if imageprocessor.IsRawFormat(ext) {
			kind = " (RAW, embedded preview via exiftool)"
		}
		fmt.Printf("  %s%s\n", ext, kind)
	}
	fmt.Printf("\nHash algorithms: %v\n", imageprocessor.HashAlgorithms())
}
