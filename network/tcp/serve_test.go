package tcp

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-zoox/shadowsocks/encrypt"
)

func listen(t *testing.T) net.Listener {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %s", err)
	}
	return listener
}

func socksConnect(t *testing.T, proxy string, request []byte) net.Conn {
	conn, err := net.Dial("tcp", proxy)
	if err != nil {
		t.Fatalf("failed to dial proxy: %s", err)
	}
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	conn.Write([]byte{0x05, 0x01, 0x00})
	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		t.Fatalf("failed to read greeting: %s", err)
	}
	if !bytes.Equal(greeting, []byte{0x05, 0x00}) {
		t.Fatalf("unexpected greeting %v", greeting)
	}

	conn.Write(request)
	reply := make([]byte, 10)
	if _, err := io.ReadFull(conn, reply); err != nil {
		t.Fatalf("failed to read reply: %s", err)
	}
	if reply[1] != 0x00 {
		t.Fatalf("unexpected reply %v", reply)
	}

	return conn
}

func connectRequest(addr net.Addr) []byte {
	tcp := addr.(*net.TCPAddr)
	ip := tcp.IP.To4()
	return []byte{0x05, 0x01, 0x00, 0x01, ip[0], ip[1], ip[2], ip[3], byte(tcp.Port >> 8), byte(tcp.Port)}
}

func TestLocalServeSimulatedUpstream(t *testing.T) {
	keyring := encrypt.NewKeyring()
	mode, _ := encrypt.ParseMode("aes-256-cfb")

	upstream := listen(t)
	defer upstream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := listen(t)
	go ServeListener(ctx, local, &ServeConfig{
		Role:     RoleLocal,
		Password: "secret",
		Mode:     mode,
		Keyring:  keyring,
		Timeout:  10 * time.Second,
		Upstream: func() string {
			return upstream.Addr().String()
		},
	})

	headers := make(chan []byte, 1)
	go func() {
		conn, err := upstream.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		server, _ := encrypt.NewEncryptor(keyring, "secret", mode)
		var plain []byte
		buf := make([]byte, 1024)
		for len(plain) < 7 {
			n, err := conn.Read(buf)
			if err != nil {
				close(headers)
				return
			}
			p, _ := server.Decrypt(buf[:n])
			plain = append(plain, p...)
		}
		headers <- plain[:7]

		reply, _ := server.Encrypt([]byte("hello from upstream"))
		conn.Write(reply)
		io.Copy(io.Discard, conn)
	}()

	request := []byte{0x05, 0x01, 0x00, 0x01, 93, 184, 216, 34, 0x00, 0x50}
	client := socksConnect(t, local.Addr().String(), request)
	defer client.Close()

	header, ok := <-headers
	if !ok {
		t.Fatalf("upstream closed before the header arrived")
	}
	expected := []byte{0x01, 93, 184, 216, 34, 0x00, 0x50}
	if !bytes.Equal(header, expected) {
		t.Fatalf("header not match, expect %v, but got %v", expected, header)
	}

	got := make([]byte, len("hello from upstream"))
	if _, err := io.ReadFull(client, got); err != nil {
		t.Fatalf("failed to read response: %s", err)
	}
	if string(got) != "hello from upstream" {
		t.Fatalf("expect hello from upstream, but got %q", got)
	}
}

func echo(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			io.Copy(conn, conn)
		}()
	}
}

func TestLocalServerChain(t *testing.T) {
	for _, method := range []string{"table", "rc4-md5", "salsa20", "aes-128-ctr"} {
		mode, err := encrypt.ParseMode(method)
		if err != nil {
			t.Fatalf("failed to parse %s: %s", method, err)
		}

		ctx, cancel := context.WithCancel(context.Background())

		target := listen(t)
		go echo(target)

		server := listen(t)
		go ServeListener(ctx, server, &ServeConfig{
			Role:          RoleServer,
			Password:      "chain",
			Mode:          mode,
			HighWaterMark: 1024,
		})

		local := listen(t)
		go ServeListener(ctx, local, &ServeConfig{
			Role:          RoleLocal,
			Password:      "chain",
			Mode:          mode,
			HighWaterMark: 1024,
			Upstream: func() string {
				return server.Addr().String()
			},
		})

		client := socksConnect(t, local.Addr().String(), connectRequest(target.Addr()))

		payload := make([]byte, 512*1024)
		rand.Read(payload)
		go client.Write(payload)

		got := make([]byte, len(payload))
		if _, err := io.ReadFull(client, got); err != nil {
			t.Fatalf("[%s] failed to read echo: %s", method, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("[%s] echo not match", method)
		}

		client.Close()
		target.Close()
		cancel()
	}
}

func TestServeIdleTimeout(t *testing.T) {
	mode, _ := encrypt.ParseMode("table")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := listen(t)
	go ServeListener(ctx, local, &ServeConfig{
		Role:    RoleLocal,
		Mode:    mode,
		Timeout: 200 * time.Millisecond,
		Upstream: func() string {
			return "127.0.0.1:1"
		},
	})

	conn, err := net.Dial("tcp", local.Addr().String())
	if err != nil {
		t.Fatalf("failed to dial: %s", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	conn.Write([]byte{0x05, 0x01, 0x00})
	greeting := make([]byte, 2)
	io.ReadFull(conn, greeting)

	start := time.Now()
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expect the idle connection to be closed")
	}
	if time.Since(start) > 4*time.Second {
		t.Fatalf("expect the idle timeout to close the connection")
	}
}

func TestServeConnectFailure(t *testing.T) {
	mode, _ := encrypt.ParseMode("table")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	closed := listen(t)
	dead := closed.Addr().String()
	closed.Close()

	local := listen(t)
	go ServeListener(ctx, local, &ServeConfig{
		Role:    RoleLocal,
		Mode:    mode,
		Timeout: 5 * time.Second,
		Upstream: func() string {
			return dead
		},
	})

	client := socksConnect(t, local.Addr().String(), []byte{0x05, 0x01, 0x00, 0x01, 127, 0, 0, 1, 0, 80})
	defer client.Close()

	if _, err := client.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expect the client closed after the upstream refused")
	}
}
