package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	plog "xdao.co/pora/internal/log"
	"xdao.co/pora/storage"
	"xdao.co/pora/storage/grpcstore"
	"xdao.co/pora/storage/registry"

	_ "xdao.co/pora/storage/ipfs"
	_ "xdao.co/pora/storage/localfs"
	_ "xdao.co/pora/storage/s3store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("xdao-proofd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "storage backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	logJSON := fs.Bool("log-json", false, "Log JSON instead of text")
	maxMsg := fs.Int("max-msg-bytes", 0, "max gRPC message size in bytes (send+recv); 0 uses grpc defaults")

	flags := registry.RegisterFlags(fs, registry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range registry.List(registry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	logger, err := plog.Init(plog.Options{Level: *logLevel, JSON: *logJSON, Stderr: errOut})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	b, err := registry.Open(*backend, registry.UsageDaemon, flags.Options(*backend, nil))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer func() {
		if err := storage.CloseBackend(b); err != nil {
			logger.Warn("close backend", "backend", *backend, "error", err)
		}
	}()

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer lis.Close()

	var opts []grpc.ServerOption
	if *maxMsg > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(*maxMsg), grpc.MaxSendMsgSize(*maxMsg))
	}
	s := grpc.NewServer(opts...)
	grpcstore.RegisterProofStoreServer(s, &grpcstore.Server{Backend: b})

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.Info("listening",
		"addr", lis.Addr().String(),
		"backend", *backend,
		"content", b.Content != nil,
		"outboards", b.Outboards != nil,
		"commitments", b.Commitments != nil,
	)
	if err := s.Serve(lis); err != nil {
		logger.Error("serve", "error", err)
		return 1
	}
	return 0
}
