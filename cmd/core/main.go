// Package main is the operator CLI for a local capture data directory. It inspects and
// repairs the upload queue without starting the background sync.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/propsnap/backend/internal/app"
	"github.com/propsnap/backend/internal/config"
	"github.com/propsnap/backend/internal/logging"
	"github.com/propsnap/backend/internal/sync/queue"
)

// Version is set at build time
var Version = "0.1.0"

const usage = `usage: propsnap-core [-config file] [-data dir] [-json] <command> [args]

commands:
  queue                 list queued uploads
  stats                 show queue and storage statistics
  clear                 discard every queued upload
  retry <type> <id>     reset the attempts of a queued upload
  recover               remove half-written photos and temp files
  version               print the version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("propsnap-core", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", os.Getenv("PROPSNAP_CONFIG"), "path to a YAML config file")
	dataDir := fs.String("data", "", "data directory (overrides config)")
	asJSON := fs.Bool("json", false, "print JSON instead of tables")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "version" {
		fmt.Fprintf(stdout, "propsnap-core v%s\n", Version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
		cfg.PhotoDir = filepath.Join(*dataDir, "photos")
	}
	logging.Init(stderr, logging.ParseLevel(cfg.LogLevel))

	a, err := app.New(cfg, app.Options{ManualConnectivity: true})
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer a.Close()

	c := &cli{app: a, out: stdout, json: *asJSON}
	ctx := context.Background()

	switch cmd {
	case "queue":
		err = c.listQueue(ctx)
	case "stats":
		err = c.stats(ctx)
	case "clear":
		err = c.clear(ctx)
	case "retry":
		if len(rest) != 2 {
			fs.Usage()
			return 2
		}
		err = c.retry(ctx, queue.ItemType(rest[0]), rest[1])
	case "recover":
		err = c.recoverPhotos(ctx)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

type cli struct {
	app  *app.App
	out  io.Writer
	json bool
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) listQueue(ctx context.Context) error {
	items, err := c.app.Queue.List(ctx)
	if err != nil {
		return err
	}
	if c.json {
		if items == nil {
			items = []queue.Item{}
		}
		return c.printJSON(items)
	}

	maxAttempts := c.app.Queue.MaxAttempts()
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tID\tATTEMPTS\tCREATED\tLAST ERROR")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
			item.Type, item.ID, item.Attempts, maxAttempts,
			item.CreatedAt.Format(time.RFC3339), item.LastError)
	}
	return tw.Flush()
}

func (c *cli) stats(ctx context.Context) error {
	stats, err := c.app.Queue.Stats(ctx)
	if err != nil {
		return err
	}
	files, err := c.app.Photos.Files().Stats()
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(map[string]interface{}{"queue": stats, "files": files})
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "queued\t%d\n", stats.Total)
	fmt.Fprintf(tw, "eligible\t%d\n", stats.Eligible)
	fmt.Fprintf(tw, "gave up\t%d\n", stats.Dead)
	for t, n := range stats.ByType {
		fmt.Fprintf(tw, "  %s\t%d\n", t, n)
	}
	fmt.Fprintf(tw, "photos\t%d (%d bytes)\n", files.Photos, files.PhotoBytes)
	fmt.Fprintf(tw, "temp files\t%d\n", files.Temp)
	fmt.Fprintf(tw, "thumbnails\t%d\n", files.Thumbnails)
	return tw.Flush()
}

func (c *cli) clear(ctx context.Context) error {
	n, err := c.app.Queue.Len(ctx)
	if err != nil {
		return err
	}
	if err := c.app.Queue.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "cleared %d queued uploads\n", n)
	return nil
}

func (c *cli) retry(ctx context.Context, itemType queue.ItemType, id string) error {
	if err := c.app.Queue.Requeue(ctx, itemType, id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s will be retried on the next drain\n", itemType, id)
	return nil
}

func (c *cli) recoverPhotos(ctx context.Context) error {
	n, err := c.app.Photos.RecoverPending(ctx, c.app.Config.Housekeeping.PendingGrace)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "removed %d unfinished photos\n", n)
	return nil
}
