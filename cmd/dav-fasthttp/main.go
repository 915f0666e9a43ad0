package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"davbridge/pkg/auth"
	"davbridge/pkg/davfs"
	"davbridge/pkg/httpx"
	"davbridge/pkg/logger"
)

func main() {
	addr := flag.String("addr", ":4918", "listen address")
	dir := flag.String("dir", "", "serve this directory instead of an in-memory tree")
	file := flag.String("file", "", "serve this single file for every path")
	withAuth := flag.Bool("auth", false, "require Basic credentials (any are accepted)")
	flag.Parse()
	logger.Init()

	var h *davfs.Handler
	switch {
	case *file != "":
		h = davfs.File(*file)
	case *dir != "":
		h = davfs.Dir(*dir, true, true, nil)
	default:
		h = davfs.New(davfs.Config{})
	}

	var opts []httpx.Option
	if *withAuth {
		opts = append(opts, httpx.WithGate(auth.NewGate(auth.Config{Realm: "foo"})))
	}

	fmt.Printf("fasthttp webdav listening on %s\n", *addr)
	srv := &fasthttp.Server{
		Handler:           httpx.FastHTTPAdapter(httpx.NewServer(h, opts...)),
		Name:              "davbridge-fasthttp",
		ReadTimeout:       time.Minute,
		StreamRequestBody: true,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("fasthttp server exit: %v\n", err)
	}
}
