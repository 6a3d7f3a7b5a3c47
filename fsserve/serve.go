// Package fsserve serves a build artifact tree over HTTP: plain file
// GETs, multipart uploads keyed by content hash, a stat query endpoint,
// and scheduled cleanup of expired artifacts.
package fsserve

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/tevino/abool/v2"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/expvarhandler"

	buildfs "buildfs-go"
)

// Various counters - see https://pkg.go.dev/expvar for details.
var (
	fsCalls = expvar.NewInt("fsCalls")

	fsOKResponses          = expvar.NewInt("fsOKResponses")
	fsNotModifiedResponses = expvar.NewInt("fsNotModifiedResponses")
	fsNotFoundResponses    = expvar.NewInt("fsNotFoundResponses")
	fsOtherResponses       = expvar.NewInt("fsOtherResponses")

	// Total size in bytes for OK response bodies served.
	fsResponseBodyBytes = expvar.NewInt("fsResponseBodyBytes")
)

type Config struct {
	Addr      string
	RootDir   string
	IndexPath string

	Compress           bool
	ByteRange          bool
	GenerateIndexPages bool
	VHost              bool

	// How long an uploaded artifact survives without being fetched.
	ArtifactTTL time.Duration
	// Cleanup cadence and per-run batch size.
	CleanInterval time.Duration
	CleanBatch    int64
}

type Server struct {
	cfg        Config
	index      *Index
	disk       *buildfs.RealDiskInterface
	httpServer *fasthttp.Server

	cleanRunning *abool.AtomicBool
	stopClean    func() error
}

func New(cfg Config) (*Server, error) {
	if cfg.ArtifactTTL == 0 {
		cfg.ArtifactTTL = 24 * time.Hour
	}
	if cfg.CleanInterval == 0 {
		cfg.CleanInterval = 5 * time.Minute
	}
	if cfg.CleanBatch == 0 {
		cfg.CleanBatch = 2000
	}
	index, err := OpenIndex(cfg.IndexPath)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:          cfg,
		index:        index,
		disk:         buildfs.NewRealDiskInterface(),
		cleanRunning: abool.NewBool(false),
	}, nil
}

// isHexField reports whether s is a non-empty run of hex digits.
func isHexField(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

func isDecimalField(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// rootedPath joins path under the artifact root. Requests whose cleaned
// form would leave the root are rejected.
func (s *Server) rootedPath(path string) (string, bool) {
	root := filepath.Clean(s.cfg.RootDir)
	full := filepath.Join(root, path)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func (s *Server) handleUpload(ctx *fasthttp.RequestCtx) {
	ctx.Response.Reset()
	path := string(ctx.FormValue("path"))
	contentHash := string(ctx.FormValue("content_hash"))
	mtime := string(ctx.FormValue("mtime"))
	if mtime == "" {
		mtime = "0"
	}
	// The two fields name the blob on disk, so nothing but digits may
	// pass through.
	if !isHexField(contentHash) || !isDecimalField(mtime) {
		ctx.Error("malformed content_hash or mtime", fasthttp.StatusBadRequest)
		return
	}
	header, err := ctx.FormFile("file")
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	exist, err := s.index.Exists(contentHash, mtime)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	if exist {
		ctx.Success("text/plain", []byte("already exists."))
		return
	}
	artifact := &Artifact{Path: path, ContentHash: contentHash, Mtime: mtime}
	if err := fasthttp.SaveMultipartFile(header, filepath.Join(s.cfg.RootDir, artifact.StoreName())); err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	if err := s.index.Insert(path, contentHash, mtime, s.cfg.ArtifactTTL); err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	ctx.Success("text/plain", []byte("success"))
}

// handleStat answers mtime queries with the same sentinel scheme the
// local Stat uses: 0 for a missing entry, an error status otherwise.
func (s *Server) handleStat(ctx *fasthttp.RequestCtx) {
	ctx.Response.Reset()
	path := string(ctx.QueryArgs().Peek("path"))
	if path == "" {
		ctx.Error("missing path", fasthttp.StatusBadRequest)
		return
	}
	full, ok := s.rootedPath(path)
	if !ok {
		ctx.Error("path outside served tree", fasthttp.StatusBadRequest)
		return
	}
	mtime, err := s.disk.Stat(full)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	buf, err := json.Marshal(map[string]interface{}{"path": path, "mtime": int64(mtime)})
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	ctx.Success("application/json", buf)
}

func updateFSCounters(ctx *fasthttp.RequestCtx) {
	fsCalls.Add(1)

	resp := &ctx.Response
	switch resp.StatusCode() {
	case fasthttp.StatusOK:
		fsOKResponses.Add(1)
		fsResponseBodyBytes.Add(int64(resp.Header.ContentLength()))
	case fasthttp.StatusNotModified:
		fsNotModifiedResponses.Add(1)
	case fasthttp.StatusNotFound:
		fsNotFoundResponses.Add(1)
	default:
		fsOtherResponses.Add(1)
	}
}

// ListenAndServe blocks serving cfg.Addr until Shutdown.
func (s *Server) ListenAndServe() error {
	fs := &fasthttp.FS{
		Root:               s.cfg.RootDir,
		IndexNames:         []string{"index.html"},
		GenerateIndexPages: s.cfg.GenerateIndexPages,
		Compress:           s.cfg.Compress,
		AcceptByteRange:    s.cfg.ByteRange,
	}
	if s.cfg.VHost {
		fs.PathRewrite = fasthttp.NewVHostPathRewriter(0)
	}
	fsHandler := fs.NewRequestHandler()
	// /stats output may be filtered using regexps, e.g. /stats?r=fs
	// shows only the expvars containing 'fs' in their names.
	requestHandler := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/stats":
			expvarhandler.ExpvarHandler(ctx)
		case "/upload":
			s.handleUpload(ctx)
		case "/stat":
			s.handleStat(ctx)
		default:
			fsHandler(ctx)
			updateFSCounters(ctx)
		}
	}
	if err := s.startCleanSchedule(); err != nil {
		return err
	}
	log.Printf("serving %q on %q", s.cfg.RootDir, s.cfg.Addr)
	s.httpServer = &fasthttp.Server{
		Handler:      requestHandler,
		ReadTimeout:  15 * time.Minute,
		WriteTimeout: 15 * time.Minute,
		Concurrency:  256 * 1024,
	}
	return s.httpServer.ListenAndServe(s.cfg.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopClean != nil {
		if err := s.stopClean(); err != nil {
			log.Printf("stopping cleanup: %v", err)
		}
	}
	var err error
	if s.httpServer != nil {
		err = s.httpServer.ShutdownWithContext(ctx)
	}
	if cerr := s.index.Close(); err == nil {
		err = cerr
	}
	return err
}
