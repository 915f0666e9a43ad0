package main

import (
	"flag"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/webdav"

	"davbridge/pkg/auth"
	"davbridge/pkg/davfs"
	"davbridge/pkg/httpx"
	"davbridge/pkg/logger"
)

// A minimal net/http WebDAV server: the handler owns the whole path.
func main() {
	addr := flag.String("addr", ":4918", "listen address")
	dir := flag.String("dir", "", "serve this directory instead of an in-memory tree")
	fakels := flag.Bool("fakels", false, "grant every lock")
	withAuth := flag.Bool("auth", false, "require Basic credentials (any are accepted)")
	mount := flag.String("mount", "", "serve below this path through httpx.Mount")
	flag.Parse()
	logger.Init()

	var h *davfs.Handler
	switch {
	case *dir != "":
		h = davfs.Dir(*dir, true, true, nil)
	case *fakels:
		h = davfs.New(davfs.Config{LockSystem: davfs.NewFakeLS()})
	default:
		h = davfs.New(davfs.Config{LockSystem: webdav.NewMemLS()})
	}

	var opts []httpx.Option
	if *withAuth {
		opts = append(opts, httpx.WithGate(auth.NewGate(auth.Config{Realm: "foo"})))
	}
	var handler http.Handler = httpx.NetHTTPAdapter(httpx.NewServer(h, opts...))
	if m := strings.TrimSuffix(*mount, "/"); m != "" {
		handler = httpx.Mount(m, handler)
	}

	fmt.Printf("net/http webdav listening on %s\n", *addr)
	if err := http.ListenAndServe(*addr, handler); err != nil {
		fmt.Printf("net/http server exit: %v\n", err)
	}
}
