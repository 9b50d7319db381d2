package cli

import (
	"context"
	"testing"

	"github.com/spf13/viper"

	"github.com/kiln-io/kiln/pkg/state"
	"github.com/kiln-io/kiln/pkg/state/backend/local"
)

func TestNewCreateCmd_Flags(t *testing.T) {
	cmd := newCreateCmd()

	for _, flag := range []string{"template", "parameter", "timeout", "disable-rollback", "backend", "backend-config"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected --%s flag", flag)
		}
	}
}

func TestCreateCmd_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeTempTemplate(t, `
kiln_template_version: "2024-02-01"
parameters:
  note:
    type: string
    default: hello
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

	cmd := newCreateCmd()
	cmd.SetArgs([]string{"e2e-create", "-t", path, "-p", "note=from-cli", "--backend", "local", "--backend-config", "path=" + dir})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	b, err := local.NewBackend(map[string]string{"path": dir})
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	record, err := state.NewManager(b).GetStack(context.Background(), viper.GetString("tenant"), "e2e-create")
	if err != nil {
		t.Fatalf("stack was not persisted: %v", err)
	}
	if record.Action != "CREATE" || record.Status != "COMPLETE" {
		t.Errorf("persisted state = %s_%s", record.Action, record.Status)
	}
	if record.Outputs["note"] != "from-cli" {
		t.Errorf("output note = %v", record.Outputs["note"])
	}

	// creating the same stack again must be refused
	cmd = newCreateCmd()
	cmd.SetArgs([]string{"e2e-create", "-t", path, "--backend", "local", "--backend-config", "path=" + dir})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for duplicate stack")
	}
}

func TestDeleteCmd_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeTempTemplate(t, `
kiln_template_version: "2024-02-01"
resources:
  marker:
    type: kiln::util::null
`)

	create := newCreateCmd()
	create.SetArgs([]string{"e2e-delete", "-t", path, "--backend", "local", "--backend-config", "path=" + dir})
	if err := create.Execute(); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	del := newDeleteCmd()
	del.SetArgs([]string{"e2e-delete", "--backend", "local", "--backend-config", "path=" + dir})
	if err := del.Execute(); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	b, err := local.NewBackend(map[string]string{"path": dir})
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	if _, err := state.NewManager(b).GetStack(context.Background(), viper.GetString("tenant"), "e2e-delete"); err == nil {
		t.Error("stack record should be gone after delete")
	}
}
