package main

import (
	"flag"
	"io"
	"path/filepath"
	"testing"
)

func TestParseMigrateCommand(t *testing.T) {
	cases := []struct {
		args    []string
		want    string
		wantErr bool
	}{
		{args: nil, want: migrateUp},
		{args: []string{"up"}, want: migrateUp},
		{args: []string{"down"}, want: migrateDown},
		{args: []string{"status"}, want: migrateStatus},
		{args: []string{"redo"}, wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseMigrateCommand(tc.args)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("args=%v expected error", tc.args)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("args=%v got=%q err=%v", tc.args, got, err)
		}
	}
}

func TestValidSQLIdent(t *testing.T) {
	for _, ok := range []string{"app_nobypassrls", "_x", "A1"} {
		if !validSQLIdent(ok) {
			t.Fatalf("%q should be valid", ok)
		}
	}
	for _, bad := range []string{"", "1a", "a-b", "a;drop"} {
		if validSQLIdent(bad) {
			t.Fatalf("%q should be invalid", bad)
		}
	}
}

func TestTenantArgsValidate(t *testing.T) {
	cases := []struct {
		in      tenantArgs
		wantErr bool
	}{
		{in: tenantArgs{id: "t1", domain: "acme.localhost"}},
		{in: tenantArgs{id: "t1"}, wantErr: true},
		{in: tenantArgs{domain: "acme.localhost"}, wantErr: true},
		{in: tenantArgs{id: "t1", domain: "acme.localhost:8080"}, wantErr: true},
	}
	for _, tc := range cases {
		if err := tc.in.validate(); (err != nil) != tc.wantErr {
			t.Fatalf("in=%+v err=%v", tc.in, err)
		}
	}
}

func TestConnFlags(t *testing.T) {
	fs := flag.NewFlagSet("x", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dsn := connFlags(fs)
	if err := fs.Parse([]string{"--url", "postgres://u@h/db"}); err != nil {
		t.Fatal(err)
	}
	if got, err := dsn(); err != nil || got != "postgres://u@h/db" {
		t.Fatalf("got=%q err=%v", got, err)
	}

	missing := filepath.Join(t.TempDir(), "missing.yaml")
	fs = flag.NewFlagSet("x", flag.ContinueOnError)
	dsn = connFlags(fs)
	if err := fs.Parse([]string{"--config", missing}); err != nil {
		t.Fatal(err)
	}
	if _, err := dsn(); err == nil {
		t.Fatal("expected missing url error")
	}

	t.Setenv("RECORDHUB_DATABASE_URL", "postgres://env/db")
	t.Setenv("RECORDHUB_STORE_DRIVER", "postgres")
	if got, err := dsn(); err != nil || got != "postgres://env/db" {
		t.Fatalf("got=%q err=%v", got, err)
	}
}
