package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"github.com/ha1tch/conceptmap/pkg/engine"
	"github.com/ha1tch/conceptmap/pkg/expand"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

func generateCmd() *cobra.Command {
	var (
		output     string
		format     string
		topic      string
		focus      []string
		regenerate bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Fetch the concept map for a course, generating it when not cached",
		Example: "  conceptmap generate --course bio101 -o bio101.json\n" +
			"  conceptmap generate --course bio101 --book ch3 --regenerate --format yaml",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := key()
			if err != nil {
				return err
			}
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.session(engine.Options{Generate: engine.GenerateOptions{Topic: topic, FocusAreas: focus}})
			doc, err := s.Fetch(cmd.Context(), k, regenerate)
			if err != nil {
				return err
			}
			data, err := mindmap.Encode(doc, documentFormat(format, output))
			if err != nil {
				return err
			}
			if err := writeOutput(output, data); err != nil {
				return err
			}
			printDone("%d concepts for %s", mindmap.CountDocument(doc), k)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "json, yaml or dot (default from the output extension)")
	cmd.Flags().StringVar(&topic, "topic", "", "narrow generation to a topic")
	cmd.Flags().StringSliceVar(&focus, "focus", nil, "focus areas, comma separated")
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "discard the cached map first")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		file       string
		output     string
		format     string
		width      int
		height     int
		expandAll  bool
		regenerate bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a concept map as " + strings.Join(engine.ExportFormats, ", "),
		Example: "  conceptmap export --course bio101 -o bio101.png\n" +
			"  conceptmap export --file map.yaml --expand-all -o map.svg",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), ".")
			}
			switch format {
			case "":
				format = "png"
			case "yml":
				format = "yaml"
			case "gv":
				format = "dot"
			}
			if !slices.Contains(engine.ExportFormats, format) {
				return fmt.Errorf("unknown export format %q (want %s)", format, strings.Join(engine.ExportFormats, ", "))
			}
			if output == "" || output == "-" {
				if format == "png" && isTerminal(os.Stdout) {
					return fmt.Errorf("refusing to write png to a terminal; use -o")
				}
			}

			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.session(engine.Options{})
			if err := load(cmd, s, file, regenerate); err != nil {
				return err
			}
			reportMessage(s)
			if expandAll {
				s.ExpandAll()
			}

			opts := engine.ExportOptions(a.cfg.Render)
			if width > 0 {
				opts.Width = width
			}
			if height > 0 {
				opts.Height = height
			}

			w, closeFn, err := openOutput(output)
			if err != nil {
				return err
			}
			if err := s.Export(w, format, opts); err != nil {
				closeFn()
				return err
			}
			if err := closeFn(); err != nil {
				return err
			}
			if output != "" && output != "-" {
				printDone("wrote %s (%s)", output, format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "read the map from a json or yaml file instead of the service")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "export format (default from the output extension, else png)")
	cmd.Flags().IntVar(&width, "width", 0, "image width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "image height in pixels")
	cmd.Flags().BoolVar(&expandAll, "expand-all", false, "show every branch, not just the first level")
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "discard the cached map first")
	return cmd
}

func expandCmd() *cobra.Command {
	var (
		file   string
		prompt string
		output string
		format string
	)

	cmd := &cobra.Command{
		Use:   "expand <node>",
		Short: "Ask the service for new sub-concepts of a node",
		Long: "Expand a node by id or title. New concepts are merged into the cached map\n" +
			"so later views include them.",
		Example: "  conceptmap expand --course bio101 cells\n" +
			"  conceptmap expand --course bio101 \"Cell membrane\" --prompt \"focus on transport\" -o out.json",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.session(engine.Options{})
			if err := load(cmd, s, file, false); err != nil {
				return err
			}
			reportMessage(s)

			id, ok := resolveNode(s, args[0])
			if !ok {
				return fmt.Errorf("no concept %q in %s", args[0], s.Document().Title)
			}
			exp, err := s.Expand(cmd.Context(), id, prompt)
			if err != nil {
				return err
			}
			if err := awaitExpansion(cmd.Context(), s.Queue(), exp); err != nil {
				return err
			}
			if exp.State() != expand.StateCommitted {
				return exp.Err()
			}
			s.Expansions().Wait()

			added := exp.Added()
			if len(added) == 0 {
				printWarn("no new concepts")
			}
			for _, cid := range added {
				n, _ := s.Store().Node(cid)
				fmt.Fprintf(stderr, "  %s %s\n", Good.Sprint("+"), n.Title)
			}

			if output == "" {
				return nil
			}
			doc, err := s.CurrentDocument()
			if err != nil {
				return err
			}
			data, err := mindmap.Encode(doc, documentFormat(format, output))
			if err != nil {
				return err
			}
			return writeOutput(output, data)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "read the map from a json or yaml file instead of the service")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "guidance for the expansion")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the expanded map to this file")
	cmd.Flags().StringVarP(&format, "format", "f", "", "json, yaml or dot (default from the output extension)")
	return cmd
}

// awaitExpansion runs the session's callbacks until exp settles.
func awaitExpansion(ctx context.Context, q *expand.Queue, exp *expand.Expansion) error {
	for {
		select {
		case <-exp.Done():
			return nil
		case fn := <-q.C():
			fn()
		case <-ctx.Done():
			exp.Cancel()
			return ctx.Err()
		}
	}
}

// resolveNode accepts a node id or a title, compared case-insensitively.
func resolveNode(s *engine.Session, ref string) (string, bool) {
	if s.Store().Has(ref) {
		return ref, true
	}
	want := mindmap.NormalizeTitle(ref)
	for _, n := range s.Store().Nodes() {
		if mindmap.NormalizeTitle(n.Title) == want {
			return n.ID, true
		}
	}
	return "", false
}

func infoCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show a summary of a concept map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.session(engine.Options{})
			if err := load(cmd, s, file, false); err != nil {
				return err
			}
			reportMessage(s)
			printInfo(os.Stdout, s)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "read the map from a json or yaml file instead of the service")
	return cmd
}

func printInfo(w io.Writer, s *engine.Session) {
	doc := s.Document()
	st := s.Stats()

	fmt.Fprintf(w, "%s\n", Brand.Sprint(doc.Title))
	if doc.Overview != "" {
		fmt.Fprintln(w, indent.String(wordwrap.String(doc.Overview, 76), 2))
	}
	fmt.Fprintln(w)

	Table(w, []string{"Metric", "Value"}, [][]string{
		{"Concepts", strconv.Itoa(st.Nodes)},
		{"Connections", strconv.Itoa(st.Connections)},
		{"Depth", strconv.Itoa(st.MaxDepth)},
		{"AI generated", strconv.Itoa(st.AIGenerated)},
		{"Bookmarked", strconv.Itoa(st.Bookmarks)},
		{"References", strconv.Itoa(len(doc.References))},
	})

	if len(doc.StudyPlan) == 0 {
		return
	}
	fmt.Fprintln(w)
	Info.Fprintln(w, "Study plan")
	rows := make([][]string, 0, len(doc.StudyPlan))
	for _, p := range doc.StudyPlan {
		rows = append(rows, []string{strconv.Itoa(p.Phase), p.Title, p.Duration, strconv.Itoa(len(p.NodeIDs))})
	}
	Table(w, []string{"Phase", "Title", "Duration", "Concepts"}, rows)
}

// reportMessage echoes a load warning from the session.
func reportMessage(s *engine.Session) {
	if m := s.Message(); m.Type == engine.MsgWarning {
		printWarn("%s", m.Text)
	}
}

// documentFormat picks the encoding from an explicit flag or the output
// file's extension.
func documentFormat(flag, output string) mindmap.Format {
	if flag != "" {
		return mindmap.Format(strings.ToLower(flag))
	}
	return mindmap.FormatFromPath(output)
}

func writeOutput(path string, data []byte) error {
	w, closeFn, err := openOutput(path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

// openOutput returns stdout for "" and "-", else a created file.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
