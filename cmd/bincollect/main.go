// Package main implements the bincollect CLI: list, extract, index,
// exever or checksum the files of any supported container.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/moonvein/bincollect/internal/app"
	"github.com/moonvein/bincollect/pkg/trace"
)

var (
	cli = kingpin.New("bincollect", "Extractor and inspector for game distribution containers.")

	actionArg   = cli.Arg("action", "list|ls, extract|ex, index, exever or checksum.").Required().String()
	manifestArg = cli.Arg("manifest", "Source container: directory, release/solution/modern manifest or archive.").Required().String()
	cdnArg      = cli.Arg("cdn", "Directory holding the container's backing data.").String()

	remoteFlag      = cli.Flag("remote", "URL prefix to fetch missing bundles from.").String()
	outputFlag      = cli.Flag("output", "Output directory for extract and index.").Short('o').Default(".").String()
	langFlag        = cli.Flag("lang", "Filter: languages, comma or space separated (none for neutral files).").Short('l').String()
	pathFlag        = cli.Flag("path", "Filter: paths or 0x-prefixed path hashes.").Short('p').String()
	extFlag         = cli.Flag("ext", "Filter: extensions with leading dot.").Short('e').String()
	hashesNamesFlag = cli.Flag("hashes-names", "Hash list file for names.").String()
	hashesExtsFlag  = cli.Flag("hashes-exts", "Hash list file for extensions.").String()
	maxDepthFlag    = cli.Flag("max-depth", "Maximum archive recursion depth.").Default("1").Int()
	showWadsFlag    = cli.Flag("show-wads", "Also print recursed archives themselves.").Bool()
	skipRootFlag    = cli.Flag("skip-root", "Omit top-level non-archive files.").Bool()
	verboseFlag     = cli.Flag("verbose", "Enable debug diagnostics.").Short('v').Bool()
)

func main() {
	kingpin.MustParse(cli.Parse(os.Args[1:]))

	level := zerolog.WarnLevel
	if *verboseFlag {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	action, err := app.ParseAction(*actionArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var paths []string
	for item := range app.ParseList(*pathFlag) {
		paths = append(paths, item)
	}
	opts := app.Options{
		Action:      action,
		Manifest:    *manifestArg,
		CDN:         *cdnArg,
		Remote:      *remoteFlag,
		Output:      *outputFlag,
		Langs:       app.ParseList(*langFlag),
		Exts:        app.ParseList(*extFlag),
		Paths:       paths,
		HashesNames: *hashesNamesFlag,
		HashesExts:  *hashesExtsFlag,
		MaxDepth:    *maxDepthFlag,
		ShowWads:    *showWadsFlag,
		SkipRoot:    *skipRootFlag,
	}

	if err := app.New(opts, os.Stdout, log).Run(); err != nil {
		fmt.Fprintln(os.Stderr, trace.Render(err))
		os.Exit(1)
	}
}
