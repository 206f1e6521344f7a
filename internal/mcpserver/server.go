package mcpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/doclex/doclex/internal/observe"
	"github.com/doclex/doclex/internal/queryexec"
	"github.com/doclex/doclex/internal/telemetry"
	"github.com/doclex/doclex/pkg/version"
)

// Server bridges the conversational AI client and the retrieval engine.
type Server struct {
	mcp     *mcp.Server
	exec    *queryexec.Executor
	obs     *observe.Observer
	crawler CrawlerControl
	metrics *telemetry.Store
	logger  *slog.Logger
}

// NewServer wires the exposed operations onto an MCP server instance.
// metrics may be nil (telemetry disabled).
func NewServer(exec *queryexec.Executor, obs *observe.Observer, crawler CrawlerControl, metrics *telemetry.Store) (*Server, error) {
	if exec == nil {
		return nil, errors.New("query executor is required")
	}
	if obs == nil {
		return nil, errors.New("observer is required")
	}

	s := &Server{
		exec:    exec,
		obs:     obs,
		crawler: crawler,
		metrics: metrics,
		logger:  slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "doclex",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the JSON-RPC loop over stdio until ctx is cancelled. The
// logger must already be file-only at this point; anything written to
// stdout would corrupt the protocol.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Full-text search over the indexed documents with filters, facets, sorting, and passage highlighting. Accepts field:value syntax (the value is matched against the content fields; the field prefix does not restrict the match), quoted phrases, AND/OR/NOT, and wildcards (including leading *suffix).",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "getDocumentDetails",
		Description: "Fetch the full stored field set for one indexed document by its file_path.",
	}, s.getDocumentDetailsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "suggestTerms",
		Description: "Complete a prefix against a field's term dictionary, most frequent first. Useful for typeahead and for probing what vocabulary the index actually contains.",
	}, s.suggestTermsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "getTopTerms",
		Description: "Return the most frequent terms of a field with document frequencies.",
	}, s.getTopTermsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "getIndexStats",
		Description: "Index-wide statistics: document count, segments, disk usage, facet value breakdowns, date ranges, and recent query latency.",
	}, s.getIndexStatsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "profileQuery",
		Description: "Analyze a query without fetching hits: rewritten structure, per-term rarity, and optionally filter impact and scoring explanations. See the lucene://docs/profiling-guide resource.",
	}, s.profileQueryHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "pauseCrawler",
		Description: "Pause crawling and watching; in-flight extraction completes but no new work is picked up.",
	}, s.pauseCrawlerHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "resumeCrawler",
		Description: "Resume a paused crawler.",
	}, s.resumeCrawlerHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "getCrawlerStatus",
		Description: "Report crawler state and cumulative progress counters.",
	}, s.getCrawlerStatusHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 9))
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, *SearchOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(in.Query) == "" && len(in.Filters) == 0 {
		// An empty query with no filters is treated as match-all.
		in.Query = "*"
	}

	req, err := in.toRequest()
	if err != nil {
		return nil, nil, MapError(err)
	}

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.Int("filters", len(req.Filters)))

	resp, err := s.exec.Search(ctx, req)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, nil, MapError(err)
	}

	s.record("search", in.Query, duration, resp.TotalHits)
	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Uint64("total_hits", resp.TotalHits))

	return nil, toSearchOutput(resp), nil
}

func (s *Server) getDocumentDetailsHandler(ctx context.Context, _ *mcp.CallToolRequest, in GetDocumentDetailsInput) (*mcp.CallToolResult, *GetDocumentDetailsOutput, error) {
	if in.FilePath == "" {
		return nil, nil, NewInvalidParamsError("file_path is required")
	}

	fields, err := s.exec.GetDocument(ctx, in.FilePath)
	if err != nil {
		return nil, nil, MapError(err)
	}

	out := &GetDocumentDetailsOutput{FilePath: in.FilePath, Fields: fields}
	if in.IncludePassages {
		if content, ok := fields["content"].(string); ok && content != "" {
			out.Passages = leadingPassages(content)
		}
	}
	delete(out.Fields, "content")
	return nil, out, nil
}

// leadingPassages returns up to three plain excerpts from the start of a
// document, for getDocumentDetails' optional passages.
func leadingPassages(content string) []PassageOutput {
	const passageLen = 300
	var out []PassageOutput
	for offset := 0; offset < len(content) && len(out) < 3; offset += passageLen {
		end := offset + passageLen
		if end > len(content) {
			end = len(content)
		}
		out = append(out, PassageOutput{Text: content[offset:end], Offset: offset, IsFallback: true})
	}
	return out
}

func (s *Server) suggestTermsHandler(_ context.Context, _ *mcp.CallToolRequest, in SuggestTermsInput) (*mcp.CallToolResult, *observe.SuggestResult, error) {
	res, err := s.obs.SuggestTerms(in.Field, in.Prefix, in.Limit)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, res, nil
}

func (s *Server) getTopTermsHandler(_ context.Context, _ *mcp.CallToolRequest, in GetTopTermsInput) (*mcp.CallToolResult, *observe.TopTermsResult, error) {
	res, err := s.obs.GetTopTerms(in.Field, in.Limit)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, res, nil
}

func (s *Server) getIndexStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ GetIndexStatsInput) (*mcp.CallToolResult, *observe.IndexStats, error) {
	stats, err := s.obs.GetIndexStats(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, stats, nil
}

func (s *Server) profileQueryHandler(ctx context.Context, _ *mcp.CallToolRequest, in ProfileQueryInput) (*mcp.CallToolResult, *observe.ProfileResult, error) {
	start := time.Now()
	req, err := in.SearchInput.toRequest()
	if err != nil {
		return nil, nil, MapError(err)
	}

	flags := observe.ProfileFlags{
		FilterImpact: in.FilterImpact,
		ExplainDocs:  in.ExplainDocs,
		FacetCost:    in.FacetCost,
	}
	res, err := s.obs.ProfileQuery(ctx, req, flags)
	if err != nil {
		return nil, nil, MapError(err)
	}
	s.record("profileQuery", in.Query, time.Since(start), 0)
	return nil, res, nil
}

func (s *Server) pauseCrawlerHandler(_ context.Context, _ *mcp.CallToolRequest, _ CrawlerControlInput) (*mcp.CallToolResult, *CrawlerStatus, error) {
	if s.crawler == nil {
		return nil, nil, NewInvalidParamsError("crawler is not running")
	}
	s.crawler.PauseCrawler()
	status := s.crawler.CrawlerStatus()
	return nil, &status, nil
}

func (s *Server) resumeCrawlerHandler(_ context.Context, _ *mcp.CallToolRequest, _ CrawlerControlInput) (*mcp.CallToolResult, *CrawlerStatus, error) {
	if s.crawler == nil {
		return nil, nil, NewInvalidParamsError("crawler is not running")
	}
	s.crawler.ResumeCrawler()
	status := s.crawler.CrawlerStatus()
	return nil, &status, nil
}

func (s *Server) getCrawlerStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ CrawlerControlInput) (*mcp.CallToolResult, *CrawlerStatus, error) {
	if s.crawler == nil {
		status := CrawlerStatus{State: "disabled"}
		return nil, &status, nil
	}
	status := s.crawler.CrawlerStatus()
	return nil, &status, nil
}

func (s *Server) record(method, queryText string, latency time.Duration, hits uint64) {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.Record(method, queryText, latency, hits); err != nil {
		s.logger.Warn("failed to record query telemetry", slog.String("error", err.Error()))
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
