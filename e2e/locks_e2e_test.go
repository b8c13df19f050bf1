//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultHTTPBase = "http://localhost:8080"
	defaultGRPCAddr = "localhost:9090"
)

type holdResponse struct {
	Key    string `json:"key"`
	Token  string `json:"token"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient() *httpClient {
	base := os.Getenv("LOCKS_HTTP_URL")
	if base == "" {
		base = defaultHTTPBase
	}
	return &httpClient{
		baseURL: base,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *httpClient) hold(t *testing.T, key string, d time.Duration) (int, holdResponse) {
	t.Helper()

	data, err := json.Marshal(map[string]string{"key": key, "duration": d.String()})
	if err != nil {
		t.Errorf("json marshal failed: %v", err)
		return 0, holdResponse{}
	}

	resp, err := c.client.Post(c.baseURL+"/locks/hold", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Errorf("http request failed: %v", err)
		return 0, holdResponse{}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Errorf("read response failed: %v", err)
		return 0, holdResponse{}
	}
	var out holdResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Errorf("decode response failed: %v (%s)", err, body)
	}
	return resp.StatusCode, out
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func waitForGRPC(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("grpc service not ready at %s", addr)
}

func TestLocksE2E(t *testing.T) {
	client := newHTTPClient()
	grpcAddr := os.Getenv("LOCKS_GRPC_ADDR")
	if grpcAddr == "" {
		grpcAddr = defaultGRPCAddr
	}

	if err := waitForHTTP(client.baseURL, 30*time.Second); err != nil {
		t.Fatalf("%v", err)
	}
	if err := waitForGRPC(grpcAddr, 30*time.Second); err != nil {
		t.Fatalf("%v", err)
	}

	t.Run("GRPCHealthServing", func(t *testing.T) {
		conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			t.Fatalf("grpc client failed: %v", err)
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "locks"})
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("expected SERVING, got %v", resp.GetStatus())
		}
	})

	t.Run("HoldIsExclusiveAndTokensIncrease", func(t *testing.T) {
		key := "e2e:" + uuid.NewString()

		first := make(chan holdResponse, 1)
		go func() {
			code, resp := client.hold(t, key, 2*time.Second)
			if code != http.StatusOK {
				t.Errorf("first hold: expected 200, got %d (%+v)", code, resp)
			}
			first <- resp
		}()

		time.Sleep(500 * time.Millisecond)
		code, resp := client.hold(t, key, 100*time.Millisecond)
		if code != http.StatusLocked || resp.Status != "contended" {
			t.Fatalf("second hold: expected 423 contended, got %d (%+v)", code, resp)
		}

		held := <-first
		code, resp = client.hold(t, key, 100*time.Millisecond)
		if code != http.StatusOK {
			t.Fatalf("third hold: expected 200, got %d (%+v)", code, resp)
		}

		t1, err := strconv.ParseUint(held.Token, 10, 64)
		if err != nil {
			t.Fatalf("first token: %v", err)
		}
		t3, err := strconv.ParseUint(resp.Token, 10, 64)
		if err != nil {
			t.Fatalf("third token: %v", err)
		}
		if t3 <= t1 {
			t.Fatalf("expected later token %d to exceed %d", t3, t1)
		}
	})

	t.Run("HoldOutlivesLeaseTTL", func(t *testing.T) {
		key := "e2e:" + uuid.NewString()
		code, resp := client.hold(t, key, 12*time.Second)
		if code != http.StatusOK || resp.Status != "released" {
			t.Fatalf("expected renewed hold to complete, got %d (%+v)", code, resp)
		}
	})

	t.Run("InvalidHold", func(t *testing.T) {
		code, _ := client.hold(t, "", time.Second)
		if code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", code)
		}
	})
}
