package cli

import (
	"context"
	"testing"

	"github.com/spf13/viper"

	"github.com/kiln-io/kiln/pkg/state"
	"github.com/kiln-io/kiln/pkg/state/backend/local"
)

func TestNewUpdateCmd_Flags(t *testing.T) {
	cmd := newUpdateCmd()

	for _, flag := range []string{"template", "parameter", "backend", "backend-config"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected --%s flag", flag)
		}
	}
}

func TestUpdateCmd_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeTempTemplate(t, `
kiln_template_version: "2024-02-01"
parameters:
  note:
    type: string
    default: v1
resources:
  marker:
    type: kiln::util::null
    properties:
      note:
        get_param: note
outputs:
  note:
    value:
      get_attr: [marker, note]
`)

	create := newCreateCmd()
	create.SetArgs([]string{"e2e-update", "-t", path, "--backend", "local", "--backend-config", "path=" + dir})
	if err := create.Execute(); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	update := newUpdateCmd()
	update.SetArgs([]string{"e2e-update", "-t", path, "-p", "note=v2", "--backend", "local", "--backend-config", "path=" + dir})
	if err := update.Execute(); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	b, err := local.NewBackend(map[string]string{"path": dir})
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	record, err := state.NewManager(b).GetStack(context.Background(), viper.GetString("tenant"), "e2e-update")
	if err != nil {
		t.Fatalf("failed to read stack: %v", err)
	}
	if record.Action != "UPDATE" || record.Status != "COMPLETE" {
		t.Errorf("persisted state = %s_%s", record.Action, record.Status)
	}
	if record.Outputs["note"] != "v2" {
		t.Errorf("output note = %v, want v2", record.Outputs["note"])
	}
	if record.Parameters["note"] != "v2" {
		t.Errorf("persisted parameter = %v, want v2", record.Parameters["note"])
	}
}

func TestUpdateCmd_UnknownStack(t *testing.T) {
	dir := t.TempDir()
	path := writeTempTemplate(t, `
kiln_template_version: "2024-02-01"
resources:
  marker:
    type: kiln::util::null
`)

	cmd := newUpdateCmd()
	cmd.SetArgs([]string{"ghost", "-t", path, "--backend", "local", "--backend-config", "path=" + dir})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for unknown stack")
	}
}
