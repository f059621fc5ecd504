// Package main is the docchat CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/docchat/internal/cli"
	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/docchat/config.yaml"

var errUsage = errors.New("invalid usage")

// loadConfig loads and validates config from path. When path is the default and
// config.yaml exists in the current directory, that file is used instead.
// It returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, in io.Reader, out io.Writer) error {
	switch command {
	case "server":
		return runServer(ctx, args)
	case "add":
		return runAdd(ctx, args, in, out)
	case "remove":
		return runRemove(ctx, args, out)
	case "search":
		return runSearch(ctx, args, out)
	case "ask":
		return runAsk(ctx, args, out)
	case "clear":
		return runClear(ctx, args, out)
	case "stats":
		return runStats(ctx, args, out)
	case "list":
		return runList(ctx, args, out)
	case "version", "--version", "-v":
		fmt.Fprintf(out, "docchat version %s\n", version)
		return nil
	case "help", "--help", "-h":
		printUsage(out)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, command)
}

// commonFlags are shared by every data command.
type commonFlags struct {
	configPath   string
	debug        bool
	output       string
	conversation string
}

func newFlagSet(name string, withConversation bool) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", defaultConfigPath, "config file path")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")
	fs.StringVar(&c.output, "output", "text", "output format: text or json")
	if withConversation {
		fs.StringVar(&c.conversation, "conversation", "", "conversation id (UUID)")
	}
	return fs, c
}

// parseArgs parses args with flags allowed after positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(reorderArgs(fs, args)); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// reorderArgs moves flags (and their values) ahead of the positional
// arguments, which follow a "--" terminator. Go's flag package stops at the
// first non-flag argument, so "search mammals -top-k 3" would otherwise leave
// -top-k unparsed. A lone "-" is positional.
func reorderArgs(fs *flag.FlagSet, args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(a) < 2 || a[0] != '-' {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if f := fs.Lookup(name); f != nil && !isBoolFlag(f) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return append(append(flags, "--"), positional...)
}

func isBoolFlag(f *flag.Flag) bool {
	bf, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && bf.IsBoolFlag()
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// buildQuery joins the remaining arguments into one query.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// parseConversationID returns the canonical form of a UUID conversation id.
func parseConversationID(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: -conversation is required", errUsage)
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: conversation id must be a UUID: %v", errUsage, err)
	}
	return id.String(), nil
}

// session is the loaded state of one data command.
type session struct {
	*Components
	cfg    *config.Config
	logger *zap.Logger
	format cli.OutputFormat
}

// setup loads config and builds the components for a data command.
func setup(ctx context.Context, c *commonFlags) (*session, error) {
	format, err := cli.ParseOutputFormat(c.output)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	cfg, _, err := loadConfig(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := zap.NewNop()
	if c.debug || cfg.Debug {
		if logger, err = utils.NewLogger(true); err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{Components: components, cfg: cfg, logger: logger, format: format}, nil
}

func (s *session) Close() {
	s.Components.Close()
	_ = s.logger.Sync()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `docchat - per-conversation document retrieval

Usage:
  docchat server [flags]                          Start the HTTP server and inbox watcher
  docchat add -conversation C [-doc D] <file|->   Add a document (file replaces D; "-" reads stdin)
  docchat remove -conversation C <doc-id>         Remove a document's chunks
  docchat search -conversation C [flags] <query>  Search a conversation
  docchat ask -conversation C [flags] <question>  Answer a question from the documents
  docchat clear -conversation C                   Delete a conversation's index
  docchat stats -conversation C                   Show a conversation's index size
  docchat list                                    List conversations with an index
  docchat version                                 Show version
  docchat help                                    Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/docchat/config.yaml)
  --debug            Enable debug logging
  --output string    Output format: text or json (default: text)

Search and Ask Flags:
  --top-k int        Number of chunks to retrieve (default from config)
  --doc string       Restrict to a document id; repeat to allow several

Examples:
  docchat server
  docchat add -conversation 3f2b6c1e-8d7a-4b0e-9a51-0c6f2e7d9b44 handbook.pdf
  echo "Cats are mammals." | docchat add -conversation 3f2b6c1e-8d7a-4b0e-9a51-0c6f2e7d9b44 -doc notes -
  docchat search -conversation 3f2b6c1e-8d7a-4b0e-9a51-0c6f2e7d9b44 --top-k 3 mammals
  docchat ask -conversation 3f2b6c1e-8d7a-4b0e-9a51-0c6f2e7d9b44 --output json "are cats mammals?"`)
}
