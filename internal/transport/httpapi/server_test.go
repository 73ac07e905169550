package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/toolharness/internal/observe"
	"github.com/MrWong99/toolharness/pkg/harness"
	"github.com/MrWong99/toolharness/pkg/tool"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

// gate is a tool that blocks until release is closed.
type gate struct {
	release chan struct{}
	entered chan string
}

func newTestHarness(t *testing.T, g *gate) *harness.Harness {
	t.Helper()
	decls := []tool.Declaration{
		tool.Declare(tool.Spec{
			Name:        "add",
			Description: "Adds two integers.",
			IconRef:     "plus",
			Args:        map[string]string{"a": "first addend", "b": "second addend"},
		}, func(_ context.Context, in addArgs) (int, error) {
			return in.A + in.B, nil
		}),
	}
	if g != nil {
		decls = append(decls, tool.DeclareFunc(tool.Spec{
			Name:        "wait",
			Description: "Blocks until released.",
			IconRef:     "hourglass",
			Args:        map[string]string{"tag": "echoed back"},
		}, []tool.Param{{Name: "tag"}}, func(ctx context.Context, args tool.Arguments) (any, error) {
			g.entered <- args.String("tag")
			select {
			case <-g.release:
				return args.String("tag"), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}))
	}
	h, err := harness.New(harness.Metadata{
		Name:        "Calculator",
		Description: "Does arithmetic.",
		IconRef:     "icon.png",
	}, decls, harness.WithLogger(quiet), harness.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("harness.New: %v", err)
	}
	return h
}

func newTestServer(t *testing.T, h Harness, opts ...Option) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	New(h, append([]Option{WithLogger(quiet)}, opts...)...).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postCall(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/call", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/call: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestDescribe(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newTestHarness(t, nil))

	resp, err := http.Get(srv.URL + "/v1/describe")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var desc struct {
		App   map[string]string `json:"app"`
		Tools []struct {
			Name           string           `json:"name"`
			IconRef        string           `json:"iconRef"`
			ArgumentSchema []map[string]any `json:"argumentSchema"`
		} `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		t.Fatal(err)
	}
	if desc.App["name"] != "Calculator" || desc.App["iconRef"] != "icon.png" {
		t.Errorf("app = %+v", desc.App)
	}
	if len(desc.Tools) != 1 || desc.Tools[0].Name != "add" || desc.Tools[0].IconRef != "plus" {
		t.Fatalf("tools = %+v", desc.Tools)
	}
	args := desc.Tools[0].ArgumentSchema
	if len(args) != 2 || args[0]["name"] != "a" || args[1]["name"] != "b" {
		t.Errorf("argumentSchema = %+v", args)
	}
}

func TestToolByName(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newTestHarness(t, nil))

	tests := []struct {
		path string
		want int
	}{
		{"/v1/tools/add", http.StatusOK},
		{"/v1/tools/subtract", http.StatusNotFound},
	}
	for _, tc := range tests {
		resp, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("GET %s = %d, want %d", tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestCall(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newTestHarness(t, nil))

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantOK     bool
		wantKind   string
		wantValue  float64
	}{
		{
			name:       "success",
			body:       `{"toolName":"add","arguments":{"a":2,"b":3}}`,
			wantStatus: http.StatusOK,
			wantOK:     true,
			wantValue:  5,
		},
		{
			name:       "string encoded integers",
			body:       `{"toolName":"add","arguments":{"a":"40","b":"2"}}`,
			wantStatus: http.StatusOK,
			wantOK:     true,
			wantValue:  42,
		},
		{
			name:       "unknown tool",
			body:       `{"toolName":"subtract","arguments":{}}`,
			wantStatus: http.StatusOK,
			wantKind:   "UnknownTool",
		},
		{
			name:       "missing argument",
			body:       `{"toolName":"add","arguments":{"a":1}}`,
			wantStatus: http.StatusOK,
			wantKind:   "InvalidArguments",
		},
		{
			name:       "malformed body",
			body:       `{"toolName":`,
			wantStatus: http.StatusBadRequest,
			wantKind:   "BadRequest",
		},
		{
			name:       "trailing data",
			body:       `{"toolName":"add"} {}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   "BadRequest",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp, out := postCall(t, srv, tc.body)
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			if ok, _ := out["ok"].(bool); ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v (body %v)", out["ok"], tc.wantOK, out)
			}
			if tc.wantOK {
				if out["value"] != tc.wantValue {
					t.Errorf("value = %v, want %v", out["value"], tc.wantValue)
				}
				return
			}
			if out["errorKind"] != tc.wantKind {
				t.Errorf("errorKind = %v, want %s", out["errorKind"], tc.wantKind)
			}
			if msg, _ := out["message"].(string); msg == "" {
				t.Error("message is empty")
			}
		})
	}
}

func TestCall_InvalidArgumentsDetails(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newTestHarness(t, nil))

	_, out := postCall(t, srv, `{"toolName":"add","arguments":{"a":1,"c":2}}`)
	details, _ := out["details"].([]any)
	want := []string{"missing: b", "unknown: c"}
	if len(details) != len(want) {
		t.Fatalf("details = %v, want %v", details, want)
	}
	for i, d := range details {
		if d != want[i] {
			t.Errorf("details[%d] = %v, want %q", i, d, want[i])
		}
	}
}

func TestCall_BodyTooLarge(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newTestHarness(t, nil), WithMaxBodyBytes(32))

	resp, out := postCall(t, srv, `{"toolName":"add","arguments":{"a":1,"b":2,"padding":"xxxxxxxxxxxxxxxx"}}`)
	if resp.StatusCode != http.StatusBadRequest || out["errorKind"] != "BadRequest" {
		t.Errorf("status = %d, body = %v", resp.StatusCode, out)
	}
}

func TestCall_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newTestHarness(t, nil))

	resp, err := http.Get(srv.URL + "/v1/call")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/call = %d, want 405", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	stats := observe.NewStats(10)
	stats.Record("add", 2*time.Millisecond, "")
	srv := newTestServer(t, newTestHarness(t, nil), WithStats(stats))

	resp, err := http.Get(srv.URL + "/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out struct {
		Tools []observe.ToolStats `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Tools) != 1 || out.Tools[0].Tool != "add" || out.Tools[0].Calls != 1 {
		t.Errorf("stats = %+v", out.Tools)
	}
}

func TestStats_WithoutSource(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newTestHarness(t, nil))

	resp, err := http.Get(srv.URL + "/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != `{"tools":[]}` {
		t.Errorf("body = %s", body)
	}
}
