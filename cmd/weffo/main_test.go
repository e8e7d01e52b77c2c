package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const view = `<page><?weffo-param title?><h1 id="title">placeholder</h1></page>`

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunWithArgsUsage(t *testing.T) {
	for _, args := range [][]string{nil, {"out.xsl"}, {"a", "b", "c"}} {
		var stdout, stderr bytes.Buffer
		if code := runWithArgs(args, &stdout, &stderr); code != 1 {
			t.Errorf("runWithArgs(%q) = %d, want 1", args, code)
		}
		if got := stderr.String(); got != usage+"\n" {
			t.Errorf("runWithArgs(%q) stderr = %q, want usage", args, got)
		}
		if stdout.Len() != 0 {
			t.Errorf("runWithArgs(%q) stdout = %q, want empty", args, stdout.String())
		}
	}
}

func TestRunWithArgsGeneratesStylesheet(t *testing.T) {
	dir := t.TempDir()
	viewPath := writeFile(t, dir, "view.xml", view)
	outPath := filepath.Join(dir, "view.xsl")

	var stdout, stderr bytes.Buffer
	if code := runWithArgs([]string{outPath, viewPath}, &stdout, &stderr); code != 0 {
		t.Fatalf("runWithArgs() = %d, stderr = %s", code, stderr.String())
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`<xsl:param name="title"`, `local-name() = "title"`} {
		if !strings.Contains(string(out), want) {
			t.Errorf("generated stylesheet lacks %s:\n%s", want, out)
		}
	}
}

func TestRunWithArgsErrors(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "broken.xml", "<page>")
	viewPath := writeFile(t, dir, "view.xml", view)
	out := filepath.Join(dir, "out.xsl")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing view", args: []string{out, filepath.Join(dir, "missing.xml")}, want: "missing.xml"},
		{name: "malformed view", args: []string{out, broken}, want: "[weffo-parse] meta-apply"},
		{name: "unwritable output", args: []string{filepath.Join(dir, "no", "such", "out.xsl"), viewPath}, want: "[weffo-transform] output"},
		{name: "bad config", args: []string{"--config", broken, out, viewPath}, want: "load config"},
		{name: "missing config", args: []string{"--config", filepath.Join(dir, "missing.yaml"), out, viewPath}, want: "missing.yaml"},
		{name: "failure logged once at debug level", args: []string{"--log-level", "debug", out, broken}, want: "[weffo-parse]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := runWithArgs(tt.args, &stdout, &stderr); code != 1 {
				t.Errorf("runWithArgs() = %d, want 1", code)
			}
			got := stderr.String()
			if !strings.Contains(got, tt.want) {
				t.Errorf("stderr = %q, want it to contain %q", got, tt.want)
			}
			if strings.Count(got, "error: ") != 1 {
				t.Errorf("stderr reports the error %d times:\n%s", strings.Count(got, "error: "), got)
			}
			if strings.Contains(got, "level=ERROR") {
				t.Errorf("stderr carries a logged failure besides the reported error:\n%s", got)
			}
			if !strings.HasPrefix(got, "error: ") && !strings.Contains(got, "level=DEBUG") {
				t.Errorf("stderr = %q, want it to start with the error", got)
			}
		})
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("failed runs left %s behind (stat err = %v)", out, err)
	}
}

func TestRunWithArgsProfiles(t *testing.T) {
	dir := t.TempDir()
	viewPath := writeFile(t, dir, "view.xml", view)
	cpu := filepath.Join(dir, "cpu.out")
	mem := filepath.Join(dir, "mem.out")

	var stdout, stderr bytes.Buffer
	code := runWithArgs([]string{"--cpuprofile", cpu, "--memprofile", mem, filepath.Join(dir, "out.xsl"), viewPath}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("runWithArgs() = %d, stderr = %s", code, stderr.String())
	}
	for _, path := range []string{cpu, mem} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("profile %s: %v", path, err)
		}
	}
}
