package netio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/konghan/edp.io"
	"github.com/konghan/edp.io/iomon"
	"github.com/konghan/edp.io/netaddr"
	"github.com/konghan/edp.io/worker"
)

func newRuntime(t *testing.T) (*worker.Pool, *iomon.Monitor) {
	t.Helper()
	pool := worker.NewPool(2, nil)
	mon, code := iomon.New(2, nil)
	require.Equal(t, edp.OK, code)
	t.Cleanup(func() {
		mon.Fini()
		pool.Fini()
	})
	return pool, mon
}

// TestEchoServerRoundTrip is the spec §8 scenario 1 end-to-end case: a
// server that echoes whatever it reads back to the same connection.
func TestEchoServerRoundTrip(t *testing.T) {
	pool, mon := newRuntime(t)

	addr, code := netaddr.ParseAddr(netaddr.IPv4, "127.0.0.1:18081")
	require.Equal(t, edp.OK, code)

	echoed := make(chan []byte, 1)
	connCbs := Callbacks{
		OnDataReady: func(s *Socket) {
			buf := make([]byte, 4096)
			n, rc := s.Read(&IOCtx{IOType: IOTypeSock, DataType: DataPtr, Buffer: buf})
			if rc.Failed() || n == 0 {
				return
			}
			out := append([]byte(nil), buf[:n]...)
			_ = s.Write(&IOCtx{IOType: IOTypeSock, DataType: DataPtr, Buffer: out}, nil)
		},
	}
	srv, code := CreateServer(pool, mon, connCbs, ServerCallbacks{}, nil)
	require.Equal(t, edp.OK, code)
	require.Equal(t, edp.OK, srv.Listen(addr))
	t.Cleanup(func() { srv.Destroy() })

	clientConnected := make(chan struct{})
	client, code := Create(pool, mon, Callbacks{
		OnConnect: func(s *Socket) { close(clientConnected) },
		OnDataReady: func(s *Socket) {
			buf := make([]byte, 4096)
			n, rc := s.Read(&IOCtx{IOType: IOTypeSock, DataType: DataPtr, Buffer: buf})
			if rc.Failed() || n == 0 {
				return
			}
			echoed <- append([]byte(nil), buf[:n]...)
		},
	}, nil, nil)
	require.Equal(t, edp.OK, code)
	t.Cleanup(func() { client.Destroy() })

	require.Equal(t, edp.OK, client.Connect(addr))

	select {
	case <-clientConnected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	msg := []byte("hello edp.io")
	require.Equal(t, edp.OK, client.Write(&IOCtx{IOType: IOTypeSock, DataType: DataPtr, Buffer: msg}, nil))

	select {
	case got := <-echoed:
		assert.Equal(t, msg, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

// TestWriteBacklogDrainsInOrder is the spec §8 scenario 2: writes issued
// while the peer is stalled queue into the backlog and complete, in order,
// once the peer starts draining; on_drain fires exactly once, after the
// last one.
func TestWriteBacklogDrainsInOrder(t *testing.T) {
	pool, mon := newRuntime(t)

	addr, code := netaddr.ParseAddr(netaddr.IPv4, "127.0.0.1:18082")
	require.Equal(t, edp.OK, code)

	peerFD := make(chan int, 1)
	srv, code := CreateServer(pool, mon, Callbacks{}, ServerCallbacks{
		OnConnected: func(_ *Server, sock *Socket) {
			peerFD <- sock.FD()
		},
	}, nil)
	require.Equal(t, edp.OK, code)
	require.Equal(t, edp.OK, srv.Listen(addr))
	t.Cleanup(func() { srv.Destroy() })

	var drainCount int
	var mu sync.Mutex
	var completedOrder []int
	connected := make(chan struct{})

	client, code := Create(pool, mon, Callbacks{
		OnConnect: func(s *Socket) { close(connected) },
		OnDrain: func(s *Socket) {
			mu.Lock()
			drainCount++
			mu.Unlock()
		},
	}, nil, nil)
	require.Equal(t, edp.OK, code)
	t.Cleanup(func() { client.Destroy() })

	_ = unix.SetsockoptInt(client.FD(), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096)
	require.Equal(t, edp.OK, client.Connect(addr))

	const n = 8
	const chunkSize = 65536

	var fd int
	select {
	case fd = <-peerFD:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
	}
	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never observed connect completion")
	}

	// Simulate a stalled peer: delay draining so the writes below queue
	// into the backlog before anything is read, then drain it all.
	go func() {
		time.Sleep(200 * time.Millisecond)
		buf := make([]byte, 65536)
		total := 0
		want := n * chunkSize
		deadline := time.Now().Add(5 * time.Second)
		for total < want && time.Now().Before(deadline) {
			k, err := unix.Read(fd, buf)
			if err != nil {
				if isAgain(err) {
					time.Sleep(time.Millisecond)
					continue
				}
				return
			}
			total += k
		}
	}()
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		buf := make([]byte, chunkSize)
		buf[0] = byte(i)
		code := client.Write(&IOCtx{IOType: IOTypeSock, DataType: DataPtr, Buffer: buf}, func(_ *IOCtx, _ int, rc edp.Errno) {
			mu.Lock()
			completedOrder = append(completedOrder, i)
			mu.Unlock()
			wg.Done()
		})
		require.Equal(t, edp.OK, code)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("backlog never finished draining")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, completedOrder, n)
	for i, v := range completedOrder {
		assert.Equal(t, i, v, "completions must fire in FIFO order")
	}
	assert.Equal(t, 1, drainCount, "on_drain must fire exactly once")
}
