package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/testutil"
)

func testServer(t *testing.T) (*Server, *noteservice.Service) {
	t.Helper()
	svc := testutil.TestService(t)
	return New(svc), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call the
	// handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "sync_vault":
		result, err = srv.syncVault(ctx, req)
	case "search_knowledge":
		result, err = srv.searchKnowledge(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "generate_link":
		result, err = srv.generateLink(ctx, req)
	case "add_relation":
		result, err = srv.addRelation(ctx, req)
	case "cache_stats":
		result, err = srv.cacheStats(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "test.md",
		"content": "# Test\nHello",
	})
	text := resultText(r)
	if text != "created: test.md" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{
		"path": "test.md",
	})
	text = resultText(r)
	if text != "# Test\nHello" {
		t.Errorf("read result = %q", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestSyncVault(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "a.md",
		"content": "---\ntitle: Alpha\n---\nbody",
	})

	r := callTool(t, srv, "sync_vault", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, `"phase": "done"`) {
		t.Errorf("sync report missing done phase: %s", text)
	}
}

func TestListNotes(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path": "a.md", "content": "---\ntitle: Alpha\n---\na",
	})
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path": "b.md", "content": "---\ntitle: Beta\n---\nb",
	})

	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "a.md") || !strings.Contains(text, "b.md") {
		t.Errorf("list = %q", text)
	}
}

func TestGetBacklinks(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "b.md",
		"content": "---\ntitle: Beta\n---\nbody",
	})
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "a.md",
		"content": "---\ntitle: Alpha\n---\nlinks to [[Beta]]",
	})

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "b.md"})
	text := resultText(r)
	if text != "a.md" {
		t.Errorf("backlinks = %q, want a.md", text)
	}
}

func TestGenerateLink(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "Research/topic.md",
		"content": "---\ntitle: Topic\n---\nbody",
	})

	r := callTool(t, srv, "generate_link", map[string]interface{}{"path": "Research/topic.md"})
	if text := resultText(r); text != "[[Research/topic]]" {
		t.Errorf("link = %q", text)
	}
}

func TestAddRelation(t *testing.T) {
	srv, svc := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path": "a.md", "content": "---\ntitle: Alpha\n---\na",
	})
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path": "b.md", "content": "---\ntitle: Beta\n---\nb",
	})

	ctx := context.Background()
	an, err := svc.GetNote(ctx, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	bn, err := svc.GetNote(ctx, "b.md")
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "add_relation", map[string]interface{}{
		"source_id": an.NodeID, "target_id": bn.NodeID, "relation_type": "supports",
	})
	if r.IsError {
		t.Fatalf("add_relation failed: %s", resultText(r))
	}

	r = callTool(t, srv, "add_relation", map[string]interface{}{
		"source_id": an.NodeID, "target_id": bn.NodeID, "relation_type": "nonsense",
	})
	if !r.IsError {
		t.Error("expected error for unknown relation type")
	}
}

func TestCacheStats(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path": "a.md", "content": "---\ntitle: Alpha\n---\na",
	})

	r := callTool(t, srv, "cache_stats", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "total_cached_items") {
		t.Errorf("stats = %q", text)
	}
}
