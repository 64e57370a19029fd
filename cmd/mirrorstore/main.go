package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"mirrorstore/internal/client"
	"mirrorstore/internal/config"
	"mirrorstore/internal/proto"
	"mirrorstore/internal/version"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mirrorstore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configPath, host string
	var port int
	var showVersion bool
	fs.StringVar(&configPath, "config", "client.yaml", "Path to the client config (host, port)")
	fs.StringVar(&host, "host", "", "Server host (overrides config)")
	fs.IntVar(&port, "port", 0, "Server port (overrides config)")
	fs.BoolVar(&showVersion, "version", false, "Print version information and exit")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(argv); err != nil {
		return exitUsage
	}

	if showVersion {
		fmt.Fprintln(stdout, version.Get().String())
		return exitOK
	}

	cfg, err := config.LoadClient(configPath)
	if err != nil {
		fmt.Fprintln(stderr, "Failed to load config:", err)
		return exitFail
	}
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}

	args := fs.Args()
	if len(args) < 2 {
		usage(stderr)
		return exitUsage
	}
	cmd, ok := proto.ParseCommand(strings.ToUpper(args[0]))
	if !ok || len(args) > 3 || (len(args) == 3 && cmd != proto.CmdGET && cmd != proto.CmdPUT) {
		usage(stderr)
		return exitUsage
	}

	c := client.New(cfg.Addr())
	switch cmd {
	case proto.CmdGET:
		remote, local := args[1], args[1]
		if len(args) == 3 {
			local = args[2]
		}
		err = get(ctx, c, remote, local, stdout)
	case proto.CmdINFO:
		var out string
		out, err = c.Info(ctx, args[1])
		if err == nil {
			fmt.Fprint(stdout, out)
		}
	case proto.CmdMD:
		err = c.Mkdir(ctx, args[1])
		if err == nil {
			fmt.Fprintf(stdout, "Directory %s created\n", args[1])
		}
	case proto.CmdPUT:
		local, remote := args[1], args[1]
		if len(args) == 3 {
			remote = args[2]
		}
		err = put(ctx, c, local, remote, stdout)
	case proto.CmdRM:
		err = c.Remove(ctx, args[1])
		if err == nil {
			fmt.Fprintf(stdout, "%s removed\n", args[1])
		}
	}
	if err != nil {
		if errors.Is(err, client.ErrRemote) {
			fmt.Fprintln(stdout, err.Error())
		} else {
			fmt.Fprintln(stdout, "Error:", err)
		}
		return exitFail
	}
	return exitOK
}

// get writes to a temporary file next to local and renames it into place only
// after the whole transfer succeeded.
func get(ctx context.Context, c *client.Client, remote, local string, stdout io.Writer) error {
	tmp, err := os.CreateTemp(filepath.Dir(local), "."+filepath.Base(local)+".part-*")
	if err != nil {
		return errors.Wrap(err, "create local file")
	}
	defer os.Remove(tmp.Name())

	n, err := c.Get(ctx, remote, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close local file")
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return errors.Wrap(err, "rename local file")
	}
	fmt.Fprintf(stdout, "Received %d bytes: %s -> %s\n", n, remote, local)
	return nil
}

func put(ctx context.Context, c *client.Client, local, remote string, stdout io.Writer) error {
	f, err := os.Open(local)
	if err != nil {
		return errors.Wrap(err, "open local file")
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat local file")
	}
	if !fi.Mode().IsRegular() {
		return errors.Errorf("%s is not a regular file", local)
	}
	if err := c.Put(ctx, remote, f, fi.Size()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Sent %d bytes: %s -> %s\n", fi.Size(), local, remote)
	return nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "mirrorstore [-config client.yaml] [-host H] [-port P] <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  GET  <remote> [<local>]   download a file")
	fmt.Fprintln(w, "  INFO <remote>             show file metadata")
	fmt.Fprintln(w, "  MD   <remote>             create a directory")
	fmt.Fprintln(w, "  PUT  <local> [<remote>]   upload a file")
	fmt.Fprintln(w, "  RM   <remote>             remove a file or directory tree")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -version                  print version information and exit")
}
