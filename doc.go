/*
Package staticserver is a small HTTP/1.x static file server.

It answers GET-style request lines with files from a document root, keeps
connections open for further requests, and hands file bodies to the kernel
with sendfile(2) where the platform allows it.

Quick Start

	package main

	import (
	    "github.com/searchktools/static-server/app"
	    "github.com/searchktools/static-server/config"
	)

	func main() {
	    cfg := config.New()
	    if err := app.New(cfg).Run(); err != nil {
	        panic(err)
	    }
	}

Configuration comes from built-in defaults (0.0.0.0:8000, ./www,
index.html), an optional YAML file, STATIC_* environment variables and
command-line flags, each layer overriding the previous one.

Modules

  - app: process lifecycle, logger construction, signal-driven shutdown
  - config: flags, YAML file and environment loading
  - core: listener, accept loop, worker registry and connection state machine
  - core/http: request-line parsing and response header framing
  - core/static: path resolution, file probing and the file responder
  - core/sendfile: zero-copy transfer with a buffered fallback
  - core/pools: tiered byte buffer pools
  - core/observability: server counters

Responses carry a status line, Content-Length and a blank line. A path that
does not name a regular file under the root yields 404 and the connection is
closed afterwards; a malformed request line closes the connection without a
reply.
*/
package staticserver
