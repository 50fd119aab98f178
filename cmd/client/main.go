// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command client shares files under a pass code through a codedpad server.
//
//	client --code ABCD upload photo.png report.pdf
//	client --code ABCD list
//	client --code ABCD download 2 --out ./downloads
//	client --code ABCD delete report.pdf
//	client --code ABCD purge
//	client --code ABCD watch
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fawa-io/codedpad/pkg/client"
	"github.com/fawa-io/codedpad/pkg/fwlog"
	"github.com/fawa-io/codedpad/pkg/util"
)

const usage = `usage: client [flags] <command> [args]

commands:
  upload <file>...        upload files under the code
  list                    list the files shared under the code
  download <file|#>...    download files into --out, never overwriting
  delete <file|#>...      remove files from the code
  purge                   delete the code and its file list
  watch                   print the file list on every change until interrupted

flags:
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fwlog.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	fs.String("server", "http://localhost:4000", "Base URL of the codedpad server.")
	fs.String("code", "", "Pass code naming the shared space.")
	fs.String("out", ".", "Directory downloads are written to.")
	fs.Int("parallel", client.DefaultUploadLimit, "Number of concurrent uploads.")
	fs.Duration("timeout", 10*time.Minute, "Overall deadline of the command.")
	fs.String("logLevel", "warn", "Log level: debug, info, warn, error.")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	v := viper.New()
	v.SetEnvPrefix("CODEDPAD")
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	level, err := fwlog.ParseLevel(v.GetString("logLevel"))
	if err != nil {
		return err
	}
	fwlog.SetLevel(level)

	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	code := v.GetString("code")
	if code == "" {
		return errors.New("--code (or CODEDPAD_CODE) is required")
	}

	c := client.New(v.GetString("server"))
	s := client.NewSession(c, code, client.WithUploadLimit(v.GetInt("parallel")))

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "watch" {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watch(ctx, s, stdout)
	}

	ctx, cancel := context.WithTimeout(ctx, v.GetDuration("timeout"))
	defer cancel()

	switch cmd {
	case "upload":
		return upload(ctx, s, rest, stdout)
	case "list", "ls":
		board, err := s.Refresh(ctx)
		if err != nil {
			return err
		}
		printBoard(stdout, board)
		return nil
	case "download", "get":
		return download(ctx, s, rest, v.GetString("out"), stdout)
	case "delete", "rm":
		return remove(ctx, s, rest, stdout)
	case "purge":
		if err := s.Purge(ctx); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted code %s\n", code)
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func upload(ctx context.Context, s *client.Session, paths []string, stdout io.Writer) error {
	if len(paths) == 0 {
		return errors.New("upload needs at least one file")
	}
	files := make([]*client.LocalFile, 0, len(paths))
	for _, p := range paths {
		f, err := client.OpenLocalFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	board, err := s.Upload(ctx, files...)
	printBoard(stdout, board)
	return err
}

func download(ctx context.Context, s *client.Session, refs []string, dir string, stdout io.Writer) error {
	if len(refs) == 0 {
		return errors.New("download needs at least one file")
	}
	board, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	if err := util.EnsureDir(dir); err != nil {
		return err
	}
	for _, ref := range refs {
		e, err := pickEntry(board, ref)
		if err != nil {
			return err
		}
		path := freePath(filepath.Join(dir, filepath.Base(e.Name)))
		if err := downloadOne(ctx, s, e, path); err != nil {
			return fmt.Errorf("download %s: %w", e.Name, err)
		}
		fmt.Fprintf(stdout, "downloaded %s to %s\n", e.Name, path)
	}
	return nil
}

// freePath returns path, or path with a " (n)" suffix before its extension
// when a file of that name already exists.
func freePath(path string) string {
	if !util.Exist(path) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if !util.Exist(candidate) {
			return candidate
		}
	}
}

func downloadOne(ctx context.Context, s *client.Session, e client.Entry, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	_, err = s.Download(ctx, e.ID, f)
	return err
}

func remove(ctx context.Context, s *client.Session, refs []string, stdout io.Writer) error {
	if len(refs) == 0 {
		return errors.New("delete needs at least one file")
	}
	board, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	// Resolve every reference before removing anything so positions stay
	// meaningful.
	entries := make([]client.Entry, 0, len(refs))
	for _, ref := range refs {
		e, err := pickEntry(board, ref)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	for _, e := range entries {
		if _, err := s.Delete(ctx, e.ID); err != nil {
			return fmt.Errorf("delete %s: %w", e.Name, err)
		}
		fmt.Fprintf(stdout, "deleted %s\n", e.Name)
	}
	return nil
}

func watch(ctx context.Context, s *client.Session, stdout io.Writer) error {
	err := s.Watch(ctx, func(board client.Board) error {
		fmt.Fprintf(stdout, "-- %s %s\n", s.Code(), time.Now().Format(time.TimeOnly))
		printBoard(stdout, board)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pickEntry resolves ref as a 1-based position in the listing or as a
// file name.
func pickEntry(board client.Board, ref string) (client.Entry, error) {
	entries := board.Entries()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(entries) {
			return client.Entry{}, fmt.Errorf("no file #%d (have %d)", n, len(entries))
		}
		return entries[n-1], nil
	}
	var found []client.Entry
	for _, e := range entries {
		if e.Name == ref {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return client.Entry{}, fmt.Errorf("no file named %q", ref)
	case 1:
		return found[0], nil
	default:
		return client.Entry{}, fmt.Errorf("%d files are named %q, pick one by number", len(found), ref)
	}
}

func printBoard(w io.Writer, board client.Board) {
	if board.Len() == 0 {
		fmt.Fprintln(w, "no files")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tTYPE\tSIZE\tSTATUS")
	for i, e := range board.Entries() {
		status := string(e.Status)
		if e.Err != "" {
			status += ": " + strings.SplitN(e.Err, "\n", 2)[0]
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", i+1, e.Name, e.Type, e.Size, status)
	}
	_ = tw.Flush()
}
