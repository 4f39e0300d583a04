package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ha1tch/conceptmap/pkg/cache"
	"github.com/ha1tch/conceptmap/pkg/engine"
)

var errCacheDisabled = errors.New("cache is disabled in the config")

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the local concept map cache",
	}

	cmd.AddCommand(
		cacheListCmd(),
		cacheClearCmd(),
		cachePurgeCmd(),
		cacheWarmCmd(),
	)

	return cmd
}

// openCache sets up the app and fails when caching is off.
func openCache() (*app, error) {
	a, err := setup(false)
	if err != nil {
		return nil, err
	}
	if a.cache == nil {
		a.Close()
		return nil, errCacheDisabled
	}
	return a, nil
}

func cacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached maps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCache()
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.cache.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				Subtle.Println("  cache is empty")
				return nil
			}
			ttl := a.cache.TTL()
			rows := make([][]string, 0, len(recs))
			for _, r := range recs {
				state := Good.Sprint("fresh")
				if time.Since(r.UpdatedAt) > ttl {
					state = Warn.Sprint("stale")
				}
				rows = append(rows, []string{
					r.Key,
					humanize.Time(r.UpdatedAt),
					humanize.Bytes(uint64(r.Size)),
					state,
				})
			}
			Table(os.Stdout, []string{"Key", "Updated", "Size", "State"}, rows)
			fmt.Printf("\n  %d entries · %s backend · ttl %s\n", len(recs), a.cfg.Cache.Backend, ttl)
			return nil
		},
	}
}

func cacheClearCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [key...]",
		Short: "Remove cached maps",
		Long: "Remove cached maps by key (conceptmap:<course>[:<book>] or <course>[:<book>]).\n" +
			"With no keys, the map selected by --course and --book is removed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCache()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if all {
				n, err := a.cache.Purge(ctx, 0)
				if err != nil {
					return err
				}
				printDone("removed %d entries", n)
				return nil
			}

			var keys []cache.Key
			if len(args) == 0 {
				k, err := key()
				if err != nil {
					return err
				}
				keys = append(keys, k)
			}
			for _, arg := range args {
				k, err := parseKeyArg(arg)
				if err != nil {
					return err
				}
				keys = append(keys, k)
			}
			for _, k := range keys {
				if err := a.cache.Invalidate(ctx, k); err != nil {
					return err
				}
				printDone("removed %s", k)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "remove every entry")
	return cmd
}

func cachePurgeCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove entries older than a duration (default: the cache TTL)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCache()
			if err != nil {
				return err
			}
			defer a.Close()

			if olderThan <= 0 {
				olderThan = a.cache.TTL()
			}
			n, err := a.cache.Purge(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			printDone("purged %d entries older than %s", n, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold, e.g. 72h")
	return cmd
}

func cacheWarmCmd() *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "warm <course[:book]>...",
		Short: "Generate and cache maps ahead of time",
		Example: "  conceptmap cache warm bio101 bio101:ch1 bio101:ch2\n" +
			"  conceptmap cache warm --parallel 8 chem201 phys110",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := make([]cache.Key, 0, len(args))
			for _, arg := range args {
				k, err := parseKeyArg(arg)
				if err != nil {
					return err
				}
				keys = append(keys, k)
			}

			a, err := openCache()
			if err != nil {
				return err
			}
			defer a.Close()

			if parallel <= 0 {
				parallel = a.cfg.Expansion.WarmParallel
			}
			fmt.Fprintf(stderr, "%s warming %d maps, %d at a time\n\n", Brand.Sprint("conceptmap"), len(keys), parallel)

			results, err := a.cache.Warm(cmd.Context(), keys, engine.NewGenerator(a.client, engine.GenerateOptions{}), parallel)
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Printf("  %s %s  %s\n", StatusIcon(false), r.Key, Bad.Sprint(r.Err))
					continue
				}
				if r.Key.CourseID == "" {
					continue
				}
				fmt.Printf("  %s %s  %s\n", StatusIcon(true), r.Key, Subtle.Sprint(strconv.Itoa(r.Nodes)+" concepts"))
			}
			fmt.Printf("\n  %d cached", len(keys)-failed)
			if failed > 0 {
				fmt.Printf(" · %d failed", failed)
			}
			fmt.Println()
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d maps failed", failed, len(keys))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&parallel, "parallel", 0, "generations in flight (default from config)")
	return cmd
}

// parseKeyArg accepts a full storage key or the short course[:book] form.
func parseKeyArg(s string) (cache.Key, error) {
	if strings.HasPrefix(s, "conceptmap:") {
		return cache.ParseKey(s)
	}
	return cache.ParseKey("conceptmap:" + s)
}
