package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"clinic-queue/internal/device"
	"clinic-queue/internal/models"
)

func TestRunTakeWritesDeviceState(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("STAFF_PIN", "1234")
	t.Setenv("CLINIC_OPEN", "")
	t.Setenv("CLINIC_CLOSE", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	path := filepath.Join(t.TempDir(), "device.toml")

	var out bytes.Buffer
	if err := run(context.Background(), []string{"take", "--state", path}, &out); err != nil {
		t.Fatalf("take: %v", err)
	}
	if !strings.Contains(out.String(), "your ticket: 1") {
		t.Fatalf("unexpected output %q", out.String())
	}

	local, err := device.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if local.Ticket != 1 {
		t.Fatalf("stored ticket = %d", local.Ticket)
	}
}

func TestRunStaffCommandsNeedLogin(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("STAFF_PIN", "1234")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	path := filepath.Join(t.TempDir(), "device.toml")

	var out bytes.Buffer
	if err := run(context.Background(), []string{"call-next", "--state", path}, &out); err == nil {
		t.Fatal("call-next without login should fail")
	}
	if err := run(context.Background(), []string{"login", "--state", path, "--pin", "0000"}, &out); err == nil {
		t.Fatal("wrong PIN should fail")
	}
	if err := run(context.Background(), []string{"login", "--state", path, "--pin", "1234"}, &out); err != nil {
		t.Fatalf("login: %v", err)
	}
	out.Reset()
	if err := run(context.Background(), []string{"call-next", "--state", path}, &out); err != nil {
		t.Fatalf("call-next: %v", err)
	}
	if !strings.Contains(out.String(), "no waiting ticket") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	err := run(context.Background(), []string{"fly", "--state", filepath.Join(t.TempDir(), "d.toml")}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("err = %v", err)
	}
}

func TestFormatView(t *testing.T) {
	tests := []struct {
		view models.QueueView
		want string
	}{
		{models.QueueView{CurrentNumber: 2, NextNumber: 5, QueueLength: 2, Connected: true}, "serving 2, next 5, waiting 2"},
		{models.QueueView{CurrentNumber: 4, NextNumber: 5, Ticket: 4, IsMyTurn: true, Connected: true}, "your turn"},
		{models.QueueView{CurrentNumber: 1, NextNumber: 5, Ticket: 3, MyWaiting: 2, EstimatedWaitSecs: 1800}, "2 ahead, about 30m0s"},
		{models.QueueView{Connected: false}, "(offline)"},
	}
	for _, tt := range tests {
		if got := formatView(tt.view); !strings.Contains(got, tt.want) {
			t.Errorf("formatView(%+v) = %q, want it to contain %q", tt.view, got, tt.want)
		}
	}
}
