package grpcstore

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/pora/model"
	"xdao.co/pora/storage"
	"xdao.co/pora/storage/localfs"
	"xdao.co/pora/storage/testkit"
)

// serve starts a ProofStore server for b on an in-memory listener and
// returns a connected client.
func serve(t *testing.T, b storage.Backend, opts ...grpc.ServerOption) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(opts...)
	RegisterProofStoreServer(srv, &Server{Backend: b})

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	client := NewClient(cc)
	client.Timeout = 2 * time.Second
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPC_Conformance(t *testing.T) {
	testkit.RunFetcherConformance(t, "key", "missing", func(t *testing.T, content map[string][]byte) storage.RangeFetcher {
		m := testkit.NewMemory()
		for k, v := range content {
			m.PutContent(k, v)
		}
		return serve(t, m.Backend())
	})
	testkit.RunOutboardConformance(t, func(t *testing.T) storage.OutboardStore {
		return serve(t, testkit.NewMemory().Backend())
	})
	testkit.RunCommitmentConformance(t, func(t *testing.T, deals map[string]model.Deal) storage.CommitmentStore {
		m := testkit.NewMemory()
		for id, d := range deals {
			m.PutDeal(id, d)
		}
		return serve(t, m.Backend())
	})
}

func TestGRPC_InterceptorSeesEveryMethod(t *testing.T) {
	fx := testkit.NewFixture("k", 3000)
	m := testkit.NewMemory()
	m.Load(fx)
	m.PutDeal("d", fx.Deal())

	var (
		mu      sync.Mutex
		methods []string
	)
	intercept := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		mu.Lock()
		methods = append(methods, info.FullMethod)
		mu.Unlock()
		return handler(ctx, req)
	}
	client := serve(t, m.Backend(), grpc.UnaryInterceptor(intercept))

	ctx := context.Background()
	if b, err := client.FetchRange(ctx, fx.Key, 1024, 1024); err != nil || len(b) != 1024 {
		t.Fatalf("FetchRange: %d bytes, %v", len(b), err)
	}
	if _, err := client.GetOutboard(ctx, fx.Root); err != nil {
		t.Fatalf("GetOutboard: %v", err)
	}
	if _, err := client.GetCommitment(ctx, "d"); err != nil {
		t.Fatalf("GetCommitment: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"FetchRange", "GetOutboard", "GetCommitment"}
	if len(methods) != len(want) {
		t.Fatalf("intercepted %v", methods)
	}
	for i, w := range want {
		if methods[i] != "/"+ServiceName+"/"+w {
			t.Fatalf("intercepted %v", methods)
		}
	}
}

func TestGRPC_LocalFSRangedOutboard(t *testing.T) {
	fs, err := localfs.New(localfs.Options{OutboardDir: t.TempDir()})
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	client := serve(t, storage.Backend{Outboards: fs})
	testkit.RunOutboardConformance(t, func(t *testing.T) storage.OutboardStore {
		fs, err := localfs.New(localfs.Options{OutboardDir: t.TempDir()})
		if err != nil {
			t.Fatalf("localfs.New: %v", err)
		}
		return serve(t, storage.Backend{Outboards: fs})
	})

	fx := testkit.NewFixture("k", 10)
	if err := client.PutOutboard(context.Background(), fx.Root, fx.Outboard[:4]); !errors.Is(err, storage.ErrInvalidKey) {
		t.Fatalf("truncated outboard: got %v want ErrInvalidKey (InvalidArgument)", err)
	}
}

func TestGRPC_MissingRolesAreUnsupported(t *testing.T) {
	client := serve(t, storage.Backend{})
	fx := testkit.NewFixture("k", 10)
	ctx := context.Background()

	if _, err := client.FetchRange(ctx, "k", 0, 1); !errors.Is(err, storage.ErrUnsupported) {
		t.Fatalf("FetchRange: got %v want ErrUnsupported", err)
	}
	if _, err := client.GetOutboard(ctx, fx.Root); !errors.Is(err, storage.ErrUnsupported) {
		t.Fatalf("GetOutboard: got %v want ErrUnsupported", err)
	}
	if _, err := client.GetCommitment(ctx, "d"); !errors.Is(err, storage.ErrUnsupported) {
		t.Fatalf("GetCommitment: got %v want ErrUnsupported", err)
	}
}
