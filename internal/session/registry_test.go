package session_test

import (
	"path/filepath"
	"testing"

	"github.com/jshea2/NMS-DMX-App/internal/config"
	"github.com/jshea2/NMS-DMX-App/internal/session"
)

func newRegistry(t *testing.T) (*session.Registry, *config.Store) {
	t.Helper()
	store, err := config.Open(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("config.Open failed: %v", err)
	}
	return session.NewRegistry(store), store
}

func TestGetOrCreateNewClient(t *testing.T) {
	registry, store := newRegistry(t)

	client, err := registry.GetOrCreate("abcdef123456", "192.168.1.50", "TestAgent", false)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if client.Role != "viewer" {
		t.Errorf("expected default role viewer, got %q", client.Role)
	}
	if client.LastIP != "192.168.1.50" {
		t.Errorf("expected lastIp recorded, got %q", client.LastIP)
	}

	// Record must have been persisted.
	doc := store.Get()
	if doc.ClientByID("abcdef123456") == nil {
		t.Error("expected client persisted to config")
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	registry, store := newRegistry(t)

	first, err := registry.GetOrCreate("abcdef123456", "10.0.0.1", "", false)
	if err != nil {
		t.Fatalf("GetOrCreate (1) failed: %v", err)
	}
	second, err := registry.GetOrCreate("abcdef123456", "10.0.0.2", "", false)
	if err != nil {
		t.Fatalf("GetOrCreate (2) failed: %v", err)
	}

	if first.FirstSeen != second.FirstSeen {
		t.Error("reconnect must not create a new record")
	}
	if second.LastIP != "10.0.0.2" {
		t.Errorf("expected lastIp refreshed, got %q", second.LastIP)
	}
	if got := len(store.Get().Clients); got != 1 {
		t.Errorf("expected exactly one record, got %d", got)
	}
}

func TestGetOrCreateLoopbackOverride(t *testing.T) {
	registry, store := newRegistry(t)

	client, err := registry.GetOrCreate("abcdef123456", "127.0.0.1", "", true)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if client.Role != string(session.RoleEditor) {
		t.Errorf("loopback connection must resolve as editor, got %q", client.Role)
	}
	// The override is in-session only; the stored role stays at the default.
	doc := store.Get()
	stored := doc.ClientByID("abcdef123456")
	if stored == nil || stored.Role != "viewer" {
		t.Errorf("stored role must remain viewer, got %+v", stored)
	}
}

func TestGetOrCreateUsesConfiguredDefaultRole(t *testing.T) {
	registry, store := newRegistry(t)

	if err := store.Mutate(func(doc *config.Document) {
		doc.WebServer.DefaultClientRole = "controller"
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	client, err := registry.GetOrCreate("newdevice0001", "10.1.1.1", "", false)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if client.Role != "controller" {
		t.Errorf("expected configured default role, got %q", client.Role)
	}
}

func TestRequestAccessAndApprove(t *testing.T) {
	registry, store := newRegistry(t)
	registry.GetOrCreate("viewer000001", "10.0.0.1", "", false)

	if err := registry.RequestAccess("viewer000001"); err != nil {
		t.Fatalf("RequestAccess failed: %v", err)
	}
	pending := store.Get()
	if c := pending.ClientByID("viewer000001"); c == nil || !c.PendingRequest {
		t.Fatal("expected pendingRequest set")
	}

	if err := registry.Approve("viewer000001"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	approved := store.Get()
	c := approved.ClientByID("viewer000001")
	if c.Role != string(session.RoleController) {
		t.Errorf("expected controller after approval, got %q", c.Role)
	}
	if c.PendingRequest {
		t.Error("expected pendingRequest cleared")
	}
}

func TestRequestAccessOnlyForViewers(t *testing.T) {
	registry, _ := newRegistry(t)
	registry.GetOrCreate("ctrl00000001", "10.0.0.1", "", false)
	registry.SetRole("ctrl00000001", session.RoleController)

	if err := registry.RequestAccess("ctrl00000001"); err == nil {
		t.Error("expected error requesting access for a non-viewer")
	}
}

func TestDenyLeavesRoleUnchanged(t *testing.T) {
	registry, store := newRegistry(t)
	registry.GetOrCreate("viewer000001", "10.0.0.1", "", false)
	registry.RequestAccess("viewer000001")

	if err := registry.Deny("viewer000001"); err != nil {
		t.Fatalf("Deny failed: %v", err)
	}
	doc := store.Get()
	c := doc.ClientByID("viewer000001")
	if c.PendingRequest {
		t.Error("expected pendingRequest cleared")
	}
	if c.Role != "viewer" {
		t.Errorf("deny must not change the role, got %q", c.Role)
	}
}

func TestSetRoleRejectsUnknownRole(t *testing.T) {
	registry, _ := newRegistry(t)
	registry.GetOrCreate("abc000000001", "10.0.0.1", "", false)

	if err := registry.SetRole("abc000000001", session.Role("root")); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestRemoveAndFailClosed(t *testing.T) {
	registry, _ := newRegistry(t)
	registry.GetOrCreate("abc000000001", "10.0.0.1", "", false)
	registry.SetRole("abc000000001", session.RoleEditor)

	if err := registry.Remove("abc000000001"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if registry.Exists("abc000000001") {
		t.Error("expected record gone")
	}
	// A removed record has no privileges left, loopback excepted.
	if got := registry.ResolveRole("abc000000001", false); got != session.RoleViewer {
		t.Errorf("expected fail-closed viewer, got %q", got)
	}
	if got := registry.ResolveRole("abc000000001", true); got != session.RoleEditor {
		t.Errorf("loopback override must survive removal, got %q", got)
	}
}

func TestAllWithStatus(t *testing.T) {
	registry, _ := newRegistry(t)
	registry.GetOrCreate("abcdef123456", "10.0.0.1", "", false)
	registry.GetOrCreate("fedcba654321", "10.0.0.2", "", false)

	statuses := registry.AllWithStatus(map[string]bool{"abcdef123456": true})

	if len(statuses) != 2 {
		t.Fatalf("expected 2 records, got %d", len(statuses))
	}
	byID := make(map[string]session.ClientStatus)
	for _, s := range statuses {
		byID[s.ID] = s
	}
	if !byID["abcdef123456"].IsActive {
		t.Error("expected first client active")
	}
	if byID["fedcba654321"].IsActive {
		t.Error("expected second client inactive")
	}
	if got := byID["abcdef123456"].ShortID; got != "ABCDEF" {
		t.Errorf("expected short id ABCDEF, got %q", got)
	}
}
