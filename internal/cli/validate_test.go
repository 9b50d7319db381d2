package cli

import (
	"testing"
)

func TestValidateCmd_ValidTemplate(t *testing.T) {
	path := writeTempTemplate(t, `
kiln_template_version: "2024-02-01"
description: sample stack
parameters:
  flavor:
    type: string
    default: small
resources:
  server:
    type: kiln::util::null
`)

	cmd := newValidateCmd()
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Errorf("expected valid template, got %v", err)
	}
}

func TestValidateCmd_InvalidTemplate(t *testing.T) {
	path := writeTempTemplate(t, `
kiln_template_version: "2024-02-01"
parameters:
  flavor:
    type: no-such-type
resources:
  server:
    type: kiln::util::null
`)

	cmd := newValidateCmd()
	cmd.SetArgs([]string{path})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for unknown parameter type")
	}
}

func TestValidateCmd_MissingVersionMarker(t *testing.T) {
	path := writeTempTemplate(t, `
resources:
  server:
    type: kiln::util::null
`)

	cmd := newValidateCmd()
	cmd.SetArgs([]string{path})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for missing version marker")
	}
}
