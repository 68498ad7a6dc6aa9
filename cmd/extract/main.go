package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dgallion1/pagemark/internal/extract"
	"github.com/dgallion1/pagemark/internal/parser"
	"github.com/dgallion1/pagemark/internal/store"
)

type options struct {
	source    string
	metaDir   string
	asJSON    bool
	section   int
	pdftotext bool
	verbose   bool
}

type sectionOutput struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Pages string `json:"pages"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

var errSectionsFailed = errors.New("one or more sections failed")

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "extract: %v\n", err)
		os.Exit(2)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(opts, os.Stdout, log); err != nil {
		fmt.Fprintf(os.Stderr, "extract: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: extract [flags] <source>\n")
		fs.PrintDefaults()
	}
	metaDir := os.Getenv("META_DIR")
	if metaDir == "" {
		metaDir = "meta"
	}
	fs.StringVar(&opts.metaDir, "meta", metaDir, "Directory of sidecar files")
	fs.BoolVar(&opts.asJSON, "json", false, "Emit one JSON object per section")
	fs.IntVar(&opts.section, "section", -1, "Only extract the section at this index")
	fs.BoolVar(&opts.pdftotext, "pdftotext", true, "Fall back to pdftotext when PDF text extraction fails")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return options{}, fmt.Errorf("missing source path")
	}
	opts.source = fs.Arg(0)
	return opts, nil
}

// run prints every section of the source document. A failing section is
// reported in place and does not stop the others.
func run(opts options, w io.Writer, log *slog.Logger) error {
	st := store.New(opts.metaDir, log)
	lookup, err := st.FindOrCreate(opts.source)
	if err != nil {
		return err
	}
	if !lookup.Found {
		return fmt.Errorf("no sidecar in %s for %s (hash %s)", opts.metaDir, opts.source, lookup.Record.Hash)
	}

	pages, err := parser.PagesFromFile(opts.source, parser.Options{PDFFallbackPdftotext: opts.pdftotext})
	if err != nil {
		return err
	}
	log.Debug("pages extracted", "count", len(pages), "sidecar", lookup.Path)

	rec := lookup.Record
	if opts.section >= len(rec.Sections) {
		return fmt.Errorf("section %d: record has %d sections", opts.section, len(rec.Sections))
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	failed := 0
	for i, def := range rec.Sections {
		if opts.section >= 0 && i != opts.section {
			continue
		}
		out := sectionOutput{Index: i, Name: def.Name, Kind: def.Kind.String(), Pages: def.Pages.String()}
		res, err := extract.Extract(pages, def)
		if err != nil {
			out.Error = err.Error()
			failed++
		} else {
			out.Text = res.Text
		}

		if opts.asJSON {
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			continue
		}
		fmt.Fprintf(w, "== [%d] %s (%s, pages %s) ==\n", out.Index, out.Name, out.Kind, out.Pages)
		if out.Error != "" {
			fmt.Fprintf(w, "error: %s\n\n", out.Error)
			continue
		}
		fmt.Fprintf(w, "%s\n\n", out.Text)
	}

	if failed > 0 {
		return fmt.Errorf("%w (%d)", errSectionsFailed, failed)
	}
	return nil
}
