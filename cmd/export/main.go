package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"studyreg/internal/export"
	"studyreg/internal/notifications"
	"studyreg/internal/server"
	"studyreg/pkg/config"
)

const (
	JobName       = "export"
	exportTimeout = time.Minute
)

func main() {
	dir := flag.String("out", ".", "directory the workbook is written to")
	flag.Parse()

	cfg := config.Load(JobName)
	if cfg.StoreDemoMode() {
		cfg.Log.Warn("No document store configured, the workbook will be empty")
	}

	st := server.OpenStore(cfg)
	defer cfg.GracefulShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	// Nothing is confirmed from here, so no notification is ever dispatched.
	svc, err := server.NewServices(cfg, st, notifications.NewLocalDispatcher(notifications.NewConsoleSender(cfg.IRBNumber, cfg.Log), cfg.NotificationTimeout, cfg.Log))
	if err != nil {
		cfg.Log.Error("Failed to initialize services", "error", err)
		return
	}
	defer svc.Sessions.Stop()

	report, err := svc.Admin.Report(ctx)
	if err != nil {
		cfg.Log.Error("Failed to build report", "error", err)
		return
	}

	path := filepath.Join(*dir, export.FileName(report.GeneratedAt))
	if err := writeFile(path, report); err != nil {
		cfg.Log.Error("Failed to write workbook", "path", path, "error", err)
		return
	}
	cfg.Log.Info("Workbook written", "path", path, "sheets", len(report.Sheets))
}

func writeFile(path string, report *export.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, *report); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
