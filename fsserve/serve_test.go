package fsserve

import (
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/valyala/fasthttp"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	tmp := t.TempDir()
	root := filepath.Join(tmp, "root")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	s, err := New(Config{
		Addr:      "localhost:0",
		RootDir:   root,
		IndexPath: filepath.Join(tmp, "index.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.index.Close() })
	return s, root
}

func uploadCtx(t *testing.T, hash, mtime string) *fasthttp.RequestCtx {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("path", "out/a.o")
	w.WriteField("content_hash", hash)
	w.WriteField("mtime", mtime)
	fw, err := w.CreateFormFile("file", "a.o")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("blob"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	var req fasthttp.Request
	req.SetRequestURI("http://localhost/upload")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(w.FormDataContentType())
	req.SetBody(body.Bytes())
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

func TestUploadRejectsMalformedFields(t *testing.T) {
	s, root := newTestServer(t)
	cases := []struct {
		name  string
		hash  string
		mtime string
	}{
		{"hash with separators", "../escaped", "1"},
		{"empty hash", "", "1"},
		{"mtime with separators", "cafe", "../2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := uploadCtx(t, tc.hash, tc.mtime)
			s.handleUpload(ctx)
			if got := ctx.Response.StatusCode(); got != fasthttp.StatusBadRequest {
				t.Fatalf("status = %d, want %d", got, fasthttp.StatusBadRequest)
			}
		})
	}
	// Nothing may have landed beside the artifact root.
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escaped_1")); err == nil {
		t.Fatal("upload wrote outside the artifact root")
	}
}

func TestUploadStoresValidArtifact(t *testing.T) {
	s, root := newTestServer(t)
	ctx := uploadCtx(t, "cafe", "7")
	s.handleUpload(ctx)
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusOK {
		t.Fatalf("status = %d, body %q", got, ctx.Response.Body())
	}
	buf, err := os.ReadFile(filepath.Join(root, "cafe_7"))
	if err != nil {
		t.Fatalf("stored blob: %v", err)
	}
	if string(buf) != "blob" {
		t.Fatalf("stored blob = %q, want blob", buf)
	}
	exists, err := s.index.Exists("cafe", "7")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("uploaded artifact not indexed")
	}
}

func statCtx(t *testing.T, path string) *fasthttp.RequestCtx {
	t.Helper()
	var req fasthttp.Request
	req.SetRequestURI("http://localhost/stat")
	req.URI().QueryArgs().Set("path", path)
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

func TestStatRejectsPathOutsideRoot(t *testing.T) {
	s, root := newTestServer(t)
	secret := filepath.Join(filepath.Dir(root), "secret.txt")
	if err := os.WriteFile(secret, []byte("hidden"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := statCtx(t, "../secret.txt")
	s.handleStat(ctx)
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d, want %d", got, fasthttp.StatusBadRequest)
	}
}

func TestStatAnswersInsideRoot(t *testing.T) {
	s, root := newTestServer(t)
	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := statCtx(t, "hello.txt")
	s.handleStat(ctx)
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusOK {
		t.Fatalf("status = %d, body %q", got, ctx.Response.Body())
	}
	if !bytes.Contains(ctx.Response.Body(), []byte(`"mtime":`)) {
		t.Fatalf("body = %q, want mtime field", ctx.Response.Body())
	}
}
