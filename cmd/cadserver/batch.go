package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/cad/dispatch"
	"github.com/BaSui01/agentcad/internal/metrics"
)

// =============================================================================
// 📜 batch 命令 — stdin/stdout NDJSON 循环
// =============================================================================

// runBatch reads one JSON-RPC request per stdin line and writes one
// JSON-RPC response per stdout line, sharing the exact dispatcher the
// HTTP surface uses.
func runBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, logger := loadConfigAndLogger(*configPath)
	defer logger.Sync()

	collector := metrics.NewCollector("cad_batch", logger)
	core, err := BuildCore(cfg, logger, collector)
	if err != nil {
		logger.Fatal("Failed to build core", zap.Error(err))
	}
	defer core.Close()

	if err := RunNDJSON(context.Background(), core.Dispatcher, os.Stdin, os.Stdout); err != nil {
		logger.Fatal("batch loop failed", zap.Error(err))
	}
}

// RunNDJSON is the NDJSON dispatch loop, factored out so tests can
// drive it with in-memory pipes.
func RunNDJSON(ctx context.Context, dispatcher *dispatch.Dispatcher, in *os.File, out *os.File) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	writer := bufio.NewWriter(out)
	defer writer.Flush()

	enc := json.NewEncoder(writer)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		req, derr := dispatch.ParseRequest(line)
		var resp *dispatch.Response
		if derr != nil {
			resp = &dispatch.Response{
				JSONRPC: dispatch.JSONRPCVersion,
				Error:   &dispatch.WireError{Code: derr.Code, Message: derr.Message},
			}
		} else {
			resp = dispatcher.Dispatch(ctx, req)
		}

		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("flushing response: %w", err)
		}
	}
	return scanner.Err()
}
