package main

import (
	"errors"
	"testing"
	"time"

	"github.com/poolworks/annexctl/pkg/annex"
)

func TestParseUpOpts(t *testing.T) {
	t.Setenv("ANNEX_CENTRAL_MANAGER", "")

	opts, err := parseUpOpts([]string{
		"--project", "lab-42",
		"--central-manager", "cm.example.org",
		"--size", "10",
		"--expiry", "2026-08-29T22:00:00Z",
		"--pool", "ami-0abc,m5.large",
		"--pool", "ami-0abc,m5.xlarge,0.20",
		"--credential-file", "./secret",
	})
	if err != nil {
		t.Fatalf("parseUpOpts() error: %v", err)
	}

	if opts.project != "lab-42" || opts.centralManager != "cm.example.org" {
		t.Fatalf("identity = %q/%q", opts.project, opts.centralManager)
	}
	if opts.size != 10 {
		t.Fatalf("size = %d", opts.size)
	}
	want := time.Date(2026, 8, 29, 22, 0, 0, 0, time.UTC)
	if !opts.expiry.Equal(want) {
		t.Fatalf("expiry = %v, want %v", opts.expiry, want)
	}
	if len(opts.pools) != 2 || opts.pools[1].SpotPrice != "0.20" {
		t.Fatalf("pools = %+v", opts.pools)
	}
}

func TestParseUpOptsDefaults(t *testing.T) {
	t.Setenv("ANNEX_CENTRAL_MANAGER", "cm.example.org")

	opts, err := parseUpOpts([]string{"--project", "lab-42"})
	if err != nil {
		t.Fatalf("parseUpOpts() error: %v", err)
	}
	if opts.centralManager != "cm.example.org" {
		t.Fatalf("central manager = %q, want env fallback", opts.centralManager)
	}
	if opts.size != annex.SizeUnchanged {
		t.Fatalf("size = %d, want SizeUnchanged", opts.size)
	}
}

func TestParseUpOptsRejections(t *testing.T) {
	t.Setenv("ANNEX_CENTRAL_MANAGER", "cm.example.org")

	tests := []struct {
		name string
		args []string
	}{
		{"missing project", []string{"--size", "5"}},
		{"unknown option", []string{"--project", "p", "--bogus"}},
		{"dangling value", []string{"--project", "p", "--size"}},
		{"negative size", []string{"--project", "p", "--size", "-1"}},
		{"bad expiry", []string{"--project", "p", "--expiry", "tomorrow"}},
		{"bad pool", []string{"--project", "p", "--pool", "ami-only"}},
		{"too many pools", []string{"--project", "p",
			"--pool", "a,t", "--pool", "a,t", "--pool", "a,t",
			"--pool", "a,t", "--pool", "a,t", "--pool", "a,t",
			"--pool", "a,t", "--pool", "a,t", "--pool", "a,t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseUpOpts(tt.args); !annex.IsCategory(err, annex.CategoryArgument) {
				t.Fatalf("error = %v, want argument category", err)
			}
		})
	}
}

func TestParsePoolSpec(t *testing.T) {
	pool, err := parsePoolSpec("ami-0abc, m5.large , 0.20")
	if err != nil {
		t.Fatalf("parsePoolSpec() error: %v", err)
	}
	if pool.ImageID != "ami-0abc" || pool.InstanceType != "m5.large" || pool.SpotPrice != "0.20" {
		t.Fatalf("pool = %+v", pool)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{annex.ErrArgument("bad flag"), exitArgument},
		{annex.ErrStaging("upload failed"), exitStaging},
		{annex.ErrProvisioning("create failed"), exitProvisioning},
		{annex.ErrInventory("no default network"), exitProvisioning},
		{annex.ErrCleanup("delete failed"), exitCleanup},
		{&annex.CleanupError{Orphaned: []string{"container stage-1"}}, exitCleanup},
		{errors.New("plain"), exitError},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
