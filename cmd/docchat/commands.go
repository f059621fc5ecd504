package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/docchat/internal/answer"
	"github.com/hyperjump/docchat/internal/chat"
	"github.com/hyperjump/docchat/internal/cli"
	"github.com/hyperjump/docchat/internal/convindex"
	"github.com/hyperjump/docchat/internal/fileid"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/server"
	"github.com/hyperjump/docchat/internal/watcher"
	"github.com/hyperjump/docchat/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

func runServer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := parseArgs(fs, args); err != nil {
		return err
	}

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	var srvOpts []server.ServerOption
	if len(cfg.Watch.Directories) > 0 {
		idx := components.Indexer
		exts := cfg.Watch.Extensions
		watchSvc := watcher.NewWatcher(
			cfg.Watch.Directories,
			exts,
			func(ctx context.Context, convID, path string) {
				if _, _, err := idx.IndexFile(ctx, convID, "", path, exts); err != nil {
					logger.Warn("watch ingest failed", zap.String("conversation_id", convID), zap.String("path", path), zap.Error(err))
				}
			},
			func(ctx context.Context, convID, path string) {
				if _, err := idx.RemoveFile(ctx, convID, path); err != nil {
					logger.Warn("watch remove failed", zap.String("conversation_id", convID), zap.String("path", path), zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
		)
		if err := watchSvc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer watchSvc.Stop()
		go watchSvc.SyncExistingFiles()
		srvOpts = append(srvOpts, server.WithWatchService(watchSvc))
	}

	srv := server.NewServer(components.Indexes, components.Indexer, components.Chat, cfg, logger, srvOpts...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func runAdd(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs, common := newFlagSet("add", true)
	docID := fs.String("doc", "", "document id (default: derived from the file path, or random for stdin)")
	if err := parseArgs(fs, args); err != nil {
		return err
	}
	convID, err := parseConversationID(common.conversation)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: add takes exactly one file or \"-\"", errUsage)
	}
	s, err := setup(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	resp := models.AddDocumentResponse{DocID: *docID}
	if path := fs.Arg(0); path == "-" {
		content, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		if resp.DocID == "" {
			resp.DocID = fileid.New()
		}
		resp.Chunks, err = s.Indexer.AddDocument(ctx, convID, resp.DocID, nil, string(content))
		if err != nil {
			return err
		}
	} else {
		resp.DocID, resp.Chunks, err = s.Indexer.IndexFile(ctx, convID, resp.DocID, path, nil)
		if err != nil {
			return err
		}
	}
	if s.format == cli.OutputJSON {
		return cli.WriteJSON(out, resp)
	}
	fmt.Fprintf(out, "Added %d chunks to document %s\n", resp.Chunks, resp.DocID)
	return nil
}

func runRemove(ctx context.Context, args []string, out io.Writer) error {
	fs, common := newFlagSet("remove", true)
	if err := parseArgs(fs, args); err != nil {
		return err
	}
	convID, err := parseConversationID(common.conversation)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: remove takes exactly one document id", errUsage)
	}
	s, err := setup(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	resp := models.RemoveDocumentResponse{DocID: fs.Arg(0)}
	if resp.Removed, err = s.Indexes.Index(convID).RemoveDocument(ctx, resp.DocID); err != nil {
		return err
	}
	if s.format == cli.OutputJSON {
		return cli.WriteJSON(out, resp)
	}
	fmt.Fprintf(out, "Removed %d chunks of document %s\n", resp.Removed, resp.DocID)
	return nil
}

func runSearch(ctx context.Context, args []string, out io.Writer) error {
	fs, common := newFlagSet("search", true)
	topK := fs.Int("top-k", 0, "number of chunks to return (default from config)")
	var docs stringList
	fs.Var(&docs, "doc", "restrict to a document id (repeatable)")
	if err := parseArgs(fs, args); err != nil {
		return err
	}
	convID, err := parseConversationID(common.conversation)
	if err != nil {
		return err
	}
	req := models.SearchRequest{Query: buildQuery(fs.Args()), TopK: *topK, DocIDs: docs}
	s, err := setup(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := req.Validate(s.cfg.Search.DefaultTopK, s.cfg.Search.MaxTopK); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	start := time.Now()
	results, err := s.Indexes.Index(convID).Search(ctx, req.Query, req.TopK, docSet(docs))
	if err != nil {
		return err
	}
	resp := &models.SearchResponse{
		Query:     req.Query,
		Results:   make([]string, len(results)),
		QueryTime: time.Since(start).Milliseconds(),
	}
	hits := make([]cli.SearchHit, len(results))
	for i, r := range results {
		resp.Results[i] = r.Text
		hits[i] = cli.SearchHit{Text: r.Text, DocID: r.DocID, Score: r.Score}
	}
	return cli.WriteSearchResults(out, resp, hits, s.format)
}

func runAsk(ctx context.Context, args []string, out io.Writer) error {
	fs, common := newFlagSet("ask", true)
	topK := fs.Int("top-k", 0, "number of context chunks (default from config)")
	var docs stringList
	fs.Var(&docs, "doc", "restrict to a document id (repeatable)")
	if err := parseArgs(fs, args); err != nil {
		return err
	}
	convID, err := parseConversationID(common.conversation)
	if err != nil {
		return err
	}
	question := buildQuery(fs.Args())
	if question == "" {
		return fmt.Errorf("%w: %v", errUsage, models.ErrEmptyQuery)
	}
	s, err := setup(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	svc := s.Chat
	if *topK > 0 {
		svc = chat.NewService(s.Indexes, answer.NewExtractive(s.cfg.Answer.MinConfidence),
			chat.WithLogger(s.logger), chat.WithTopK(*topK))
	}
	reply, err := svc.Ask(ctx, convID, question, docSet(docs))
	if err != nil {
		return err
	}
	return cli.WriteAnswer(out, &models.MessageResponse{
		Answer:        reply.Answer,
		ContextChunks: reply.Context,
		Degraded:      reply.Degraded,
	}, s.format)
}

func runClear(ctx context.Context, args []string, out io.Writer) error {
	fs, common := newFlagSet("clear", true)
	if err := parseArgs(fs, args); err != nil {
		return err
	}
	convID, err := parseConversationID(common.conversation)
	if err != nil {
		return err
	}
	s, err := setup(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Indexes.Index(convID).Clear(ctx); err != nil {
		return err
	}
	if s.format == cli.OutputJSON {
		return cli.WriteJSON(out, map[string]string{"conversation_id": convID, "status": "cleared"})
	}
	fmt.Fprintf(out, "Cleared conversation %s\n", convID)
	return nil
}

func runStats(ctx context.Context, args []string, out io.Writer) error {
	fs, common := newFlagSet("stats", true)
	if err := parseArgs(fs, args); err != nil {
		return err
	}
	convID, err := parseConversationID(common.conversation)
	if err != nil {
		return err
	}
	s, err := setup(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Indexes.Index(convID).Stats(ctx)
	if err != nil {
		return err
	}
	return cli.WriteStats(out, stats, s.format)
}

func runList(ctx context.Context, args []string, out io.Writer) error {
	fs, common := newFlagSet("list", false)
	if err := parseArgs(fs, args); err != nil {
		return err
	}
	s, err := setup(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	ids, err := s.Indexes.Conversations(ctx)
	if err != nil {
		return err
	}
	if s.format == cli.OutputJSON {
		if ids == nil {
			ids = []string{}
		}
		return cli.WriteJSON(out, map[string][]string{"conversations": ids})
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

// docSet returns nil (unrestricted) when no -doc flag was given.
func docSet(docs []string) convindex.DocSet {
	if len(docs) == 0 {
		return nil
	}
	return convindex.NewDocSet(docs...)
}
