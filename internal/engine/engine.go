// Package engine drives player builds through the game engine CLI.
package engine

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// Build outcomes.
const (
	StatusSuccess = "success"
	StatusMissing = "missing"
)

// DefaultTarget is used when no build target is given.
const DefaultTarget = "WebGL"

// Result describes one build.
type Result struct {
	Target   string `json:"target"`
	Artifact string `json:"artifact"`
	Status   string `json:"status"`
	Log      string `json:"log,omitempty"`
}

// CommandFunc runs name with args and returns captured output.
type CommandFunc func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

// Builder runs engine builds.
type Builder struct {
	// CLI is the engine executable.
	CLI string

	// ProjectPath is the engine script root; the build runs on its parent.
	ProjectPath string

	// WorkDir holds Build/<target> and build.log.
	WorkDir string

	Exec CommandFunc
}

// NewBuilder creates a builder.
func NewBuilder(cli, projectPath, workDir string) *Builder {
	return &Builder{CLI: cli, ProjectPath: projectPath, WorkDir: workDir, Exec: execCommand}
}

// Args returns the build command line for target.
func (b *Builder) Args(target string) []string {
	return []string{
		"-batchmode",
		"-projectPath", filepath.Dir(filepath.Clean(b.ProjectPath)),
		"-buildTarget", target,
		"-quit",
	}
}

// Build runs the engine, writes build.log and zips Build/<target> when it exists.
func (b *Builder) Build(ctx context.Context, target string) (Result, error) {
	if target == "" {
		target = DefaultTarget
	}

	run := b.Exec
	if run == nil {
		run = execCommand
	}
	stdout, stderr, _ := run(ctx, b.CLI, b.Args(target)...)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	logPath := filepath.Join(b.WorkDir, "build.log")
	if err := os.WriteFile(logPath, []byte(stdout+stderr), 0644); err != nil {
		return Result{}, fmt.Errorf("write build log: %w", err)
	}

	outDir := filepath.Join(b.WorkDir, "Build", target)
	res := Result{Target: target, Artifact: outDir + ".zip", Status: StatusMissing, Log: logPath}
	if info, err := os.Stat(outDir); err == nil && info.IsDir() {
		if err := ZipDir(outDir, res.Artifact); err != nil {
			return res, fmt.Errorf("archive build: %w", err)
		}
		res.Status = StatusSuccess
	}
	return res, nil
}

// ZipDir writes the contents of dir to a zip at dst, paths relative to dir.
func ZipDir(dir, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
			_, err := zw.CreateHeader(hdr)
			return err
		}
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})

	if err := zw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := out.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	return walkErr
}

func execCommand(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
