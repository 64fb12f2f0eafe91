package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Flag descriptions.
const (
	flagTextDesc    = "Text to convert to speech"
	flagFileDesc    = "Path to a UTF-8 text file to convert to speech"
	flagVoiceDesc   = "Voice id from the catalog (see -voices)"
	flagStyleDesc   = "Delivery style instruction; it is never spoken"
	flagConfigDesc  = "Path to a project TOML file (defaults to the configurator lookup)"
	flagOutDesc     = "Directory for exported audio (overrides export.output_dir)"
	flagPlayDesc    = "Play the generated chunks in order after export"
	flagVoicesDesc  = "List the available voices and exit"
	flagPublishDesc = "Also upload the export to the NATS object store and announce it"
	flagFetchDesc   = "Object key of a published export to download into -out"
)

// Flag names.
const (
	flagText    = "text"
	flagFile    = "file"
	flagVoice   = "voice"
	flagStyle   = "style"
	flagConfig  = "config"
	flagOut     = "out"
	flagPlay    = "play"
	flagVoices  = "voices"
	flagPublish = "publish"
	flagFetch   = "fetch"
)

// Validation errors.
var (
	errEitherTextOrFile  = errors.New("either -text or -file must be provided")
	errCannotSpecifyBoth = errors.New("cannot specify both -text and -file")
	errFetchWithInput    = errors.New("-fetch cannot be combined with -text or -file")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text    string
	file    string
	voice   string
	style   string
	config  string
	out     string
	play    bool
	voices  bool
	publish bool
	fetch   string
}

// parseFlags defines and parses the command-line flags in args.
func parseFlags(name string, args []string, output io.Writer) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.file, flagFile, "", flagFileDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.StringVar(&flags.style, flagStyle, "", flagStyleDesc)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	flagSet.StringVar(&flags.out, flagOut, "", flagOutDesc)
	flagSet.BoolVar(&flags.play, flagPlay, false, flagPlayDesc)
	flagSet.BoolVar(&flags.voices, flagVoices, false, flagVoicesDesc)
	flagSet.BoolVar(&flags.publish, flagPublish, false, flagPublishDesc)
	flagSet.StringVar(&flags.fetch, flagFetch, "", flagFetchDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// validate checks required and conflicting arguments.
func (f appFlags) validate() error {
	if f.voices {
		return nil
	}

	hasText := strings.TrimSpace(f.text) != ""
	hasFile := f.file != ""

	switch {
	case f.fetch != "" && (hasText || hasFile):
		return errFetchWithInput
	case f.fetch != "":
		return nil
	case hasText && hasFile:
		return errCannotSpecifyBoth
	case !hasText && !hasFile:
		return errEitherTextOrFile
	default:
		return nil
	}
}

// input returns the text to synthesize.
func (f appFlags) input() (string, error) {
	if f.file == "" {
		return f.text, nil
	}

	data, err := os.ReadFile(f.file)
	if err != nil {
		return "", fmt.Errorf("failed to read input file %s: %w", f.file, err)
	}

	return string(data), nil
}
