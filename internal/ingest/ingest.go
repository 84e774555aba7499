// Package ingest drives the admission pipeline: it streams a specification
// document through the parser, categorizes the resulting operations, and
// persists everything as one transactional replacement of the named API.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/categorize"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/parser"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/storage"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// Options adjust one ingest run.
type Options struct {
	// Name overrides the API name derived from the source file name.
	Name string
	// Overwrite permits replacing an API that already exists under the same
	// name. Without it an ingest against an existing name fails before
	// parsing.
	Overwrite bool
}

// Pipeline runs ingests against an opened store.
type Pipeline struct {
	store  storage.Store
	logger logging.Logger
}

// NewPipeline creates a pipeline on top of an opened store.
func NewPipeline(store storage.Store, logger logging.Logger) *Pipeline {
	return &Pipeline{store: store, logger: logger.WithComponent("ingest")}
}

// Ingest opens (creating if needed) the store under outputDir and admits the
// specification file at source into it. The store connection is private to
// the call; long-lived processes should hold their own store and use a
// Pipeline directly.
func Ingest(ctx context.Context, cfg *config.Config, logger logging.Logger, source, outputDir string, opts Options) (*types.IngestReport, error) {
	runCfg := *cfg
	if outputDir != "" {
		runCfg.Storage.DataDir = outputDir
	}
	if runCfg.Timeouts.IngestSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(runCfg.Timeouts.IngestSeconds)*time.Second)
		defer cancel()
	}

	base, err := storage.Open(ctx, &runCfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = base.Close() }()
	store := storage.NewRetryableStore(base, storage.DefaultRetryConfig(runCfg.Storage.RetryAttempts))

	name := deriveName(opts.Name, source)
	if !opts.Overwrite {
		if _, err := store.GetAPIByName(ctx, name); err == nil {
			return nil, apperrors.NewInvalidArgument("overwrite",
				"api %q already exists under %s, enable overwrite to replace it", name, runCfg.Storage.DataDir)
		} else if !apperrors.IsNotFound(err) {
			return nil, err
		}
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, apperrors.NewInvalidArgument("source", "cannot open %s: %v", source, err)
	}
	defer func() { _ = f.Close() }()

	return NewPipeline(store, logger).Run(ctx, f, name)
}

// Run parses one specification document from r and replaces the API named
// name in the store. The returned report carries the row counts, the source
// digest, and any recoverable parse warnings.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, name string) (*types.IngestReport, error) {
	started := time.Now()

	digest := sha256.New()
	tee := io.TeeReader(r, digest)
	stream := parser.New(tee)

	var (
		info      *types.APIInfo
		tags      []types.TagDefinition
		groups    []types.TagGroupDefinition
		endpoints []*types.Endpoint
		schemas   []*types.Schema
		schemes   map[string]types.SecurityScheme
	)
	position := make(map[string]int)

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.FromContext("ingest", err)
		}
		switch rec := stream.Record().(type) {
		case *types.APIInfo:
			info = rec
		case *types.TagDefinition:
			tags = append(tags, *rec)
		case *types.TagGroupDefinition:
			groups = append(groups, *rec)
		case *types.Endpoint:
			// The parser collapses duplicates inside one path item; a path
			// spelled twice at the document level still reaches us twice.
			// The later definition wins, keeping the earlier position.
			key := rec.Method + " " + rec.Path
			if idx, dup := position[key]; dup {
				endpoints[idx] = rec
				continue
			}
			position[key] = len(endpoints)
			endpoints = append(endpoints, rec)
		case *types.Schema:
			schemas = append(schemas, rec)
		case *types.SecurityScheme:
			if schemes == nil {
				schemes = make(map[string]types.SecurityScheme)
			}
			schemes[rec.Name] = *rec
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	// hash whatever trails the document so the digest covers the whole file
	_, _ = io.Copy(io.Discard, tee)

	if info == nil {
		info = &types.APIInfo{}
	}
	if name == "" {
		name = deriveName(info.Title, "")
	}
	if name == "" {
		name = "api"
	}

	cat := categorize.New(tags, groups)
	for _, ep := range endpoints {
		cat.Apply(ep)
	}
	categories := cat.Rollup(endpoints)

	api := &types.API{
		Name:        name,
		Title:       info.Title,
		Version:     info.Version,
		Description: info.Description,
		Digest:      hex.EncodeToString(digest.Sum(nil)),
		Servers:     info.Servers,
		Security: types.APISecurity{
			Schemes:      schemes,
			Requirements: info.Security,
		},
	}

	res, err := p.store.ReplaceAPI(ctx, api, endpoints, schemas, categories)
	if err != nil {
		return nil, apperrors.FromContext("ingest", err)
	}

	report := &types.IngestReport{
		APIID:      res.APIID,
		Name:       name,
		Title:      info.Title,
		Version:    info.Version,
		Digest:     api.Digest,
		Endpoints:  len(endpoints),
		Schemas:    len(schemas),
		Categories: len(categories),
		Warnings:   stream.Warnings(),
		DurationMS: time.Since(started).Milliseconds(),
		Replaced:   res.Replaced,
	}
	p.logger.Info("ingest complete",
		"api", name,
		"endpoints", report.Endpoints,
		"schemas", report.Schemas,
		"categories", report.Categories,
		"warnings", len(report.Warnings),
		"replaced", report.Replaced,
		"took", time.Since(started).String())
	return report, nil
}

// Status reports on the store under dir without modifying it.
func Status(ctx context.Context, cfg *config.Config, logger logging.Logger, dir string) (*types.StatusReport, error) {
	runCfg := *cfg
	if dir != "" {
		runCfg.Storage.DataDir = dir
	}
	if runCfg.Storage.Backend == config.BackendSQLite {
		dbPath := filepath.Join(runCfg.Storage.DataDir, storage.DatabaseFile)
		if _, err := os.Stat(dbPath); err != nil {
			return nil, apperrors.NewNotFound("no store at %s", runCfg.Storage.DataDir)
		}
	}

	store, err := storage.Open(ctx, &runCfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	report := &types.StatusReport{Dir: runCfg.Storage.DataDir, SchemaVersion: version}

	apis, err := store.ListAPIs(ctx)
	if err != nil {
		return nil, err
	}
	if len(apis) == 0 {
		return report, nil
	}

	api := apis[0]
	counts, err := store.Counts(ctx, api.ID)
	if err != nil {
		return nil, err
	}
	report.Name = api.Name
	report.Title = api.Title
	report.Version = api.Version
	report.Digest = api.Digest
	report.Endpoints = counts.Endpoints
	report.Schemas = counts.Schemas
	report.Categories = counts.Categories
	report.IngestedAt = api.CreatedAt
	return report, nil
}

// deriveName picks the API name: the explicit override wins, else the source
// file name without its extension, slugified.
func deriveName(override, source string) string {
	if s := strings.TrimSpace(override); s != "" {
		return slug(s)
	}
	if source == "" {
		return ""
	}
	base := filepath.Base(source)
	return slug(strings.TrimSuffix(base, filepath.Ext(base)))
}

// slug lowercases and reduces a string to hyphen-separated alphanumeric runs.
func slug(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pendingDash = b.Len() > 0
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
