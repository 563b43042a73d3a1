package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"smartoffice/config"
	"smartoffice/repository"
	"smartoffice/repository/db"

	"go.uber.org/zap"
)

const usage = `usage:
  alertctl list <sensor|actuator|alert|system> [-limit N] [-device ID] [-type TYPE] [-severity S] [-unacked] [-level L]
  alertctl ack <alert-id>`

// store is the part of the repository the CLI needs.
type store interface {
	QueryRecent(ctx context.Context, q repository.RecentQuery) (*repository.RecentResult, error)
	AcknowledgeAlert(ctx context.Context, id int64) error
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	conn, err := db.InitDB(cfg.DBPath)
	if err != nil {
		logger.Fatal("Failed to open database", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, os.Args[1:], repository.NewRepository(conn), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, s store, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "list":
		return list(ctx, args[1:], s, out)
	case "ack":
		return ack(ctx, args[1:], s, out)
	}
	return fmt.Errorf("unknown command %q\n%s", args[0], usage)
}

func list(ctx context.Context, args []string, s store, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	kind, err := repository.ParseRecordKind(args[0])
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 20, "number of rows")
	device := fs.String("device", "", "device id")
	deviceType := fs.String("type", "", "device type")
	severity := fs.String("severity", "", "alert severity")
	unacked := fs.Bool("unacked", false, "only unacknowledged alerts")
	level := fs.String("level", "", "system log level")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%v\n%s", err, usage)
	}

	q := repository.RecentQuery{
		Kind:  kind,
		Limit: *limit,
		Filter: repository.Filter{
			DeviceID:   *device,
			DeviceType: *deviceType,
			Severity:   *severity,
			Level:      *level,
		},
	}
	if *unacked {
		f := false
		q.Acknowledged = &f
	}

	res, err := s.QueryRecent(ctx, q)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d %s record(s)\n", res.Count(), kind)
	return nil
}

func ack(ctx context.Context, args []string, s store, out io.Writer) error {
	if len(args) != 1 {
		return errors.New(usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid alert id %q", args[0])
	}
	if err := s.AcknowledgeAlert(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "alert %d acknowledged\n", id)
	return nil
}
