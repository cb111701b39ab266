package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "manawatch/pkg/logx"
)

func openSQLiteTestStore(t *testing.T, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	st := openSQLiteTestStore(t, filepath.Join(t.TempDir(), "kv.db"))
	defer st.Close()
	ctx := context.Background()

	if _, ok, err := st.Get(ctx, KeyLastTitle); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}

	if err := st.Set(ctx, KeyLastTitle, "通知A"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := st.Get(ctx, KeyLastTitle)
	if err != nil || !ok || v != "通知A" {
		t.Fatalf("Get = (%q, %v, %v)", v, ok, err)
	}

	// Upsert: a second Set on the same key replaces the value.
	if err := st.Set(ctx, KeyLastTitle, "通知B"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, _, _ = st.Get(ctx, KeyLastTitle)
	if v != "通知B" {
		t.Fatalf("overwrite: Get = %q", v)
	}

	if err := st.Delete(ctx, KeyLastTitle); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := st.Get(ctx, KeyLastTitle); ok {
		t.Fatal("key should be gone after Delete")
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	st := openSQLiteTestStore(t, path)
	if err := st.Set(ctx, KeyUsername, "user1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st = openSQLiteTestStore(t, path)
	defer st.Close()
	v, ok, err := st.Get(ctx, KeyUsername)
	if err != nil || !ok || v != "user1" {
		t.Fatalf("reopen Get = (%q, %v, %v)", v, ok, err)
	}
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("expected an error for a missing path")
	}
}
