package commands

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/cli/output"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/handlers"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/client"
	"github.com/spf13/cobra"
)

// DefaultServerAddr is used when --addr is not given.
const DefaultServerAddr = "localhost:3300"

// remoteFlags are shared by every client command.
type remoteFlags struct {
	addr    string
	token   string
	timeout time.Duration
	noColor bool
}

var (
	remote remoteFlags

	putOverwrite bool
	putName      string
	lsOutput     string
)

func remoteCommands() []*cobra.Command {
	putCmd := &cobra.Command{
		Use:   "put <local-file> [remote-dir]",
		Short: "Upload a file",
		Long: `Upload a local file into a remote directory (default: the share root).

An existing remote file is only replaced with --overwrite.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPut,
	}
	putCmd.Flags().BoolVar(&putOverwrite, "overwrite", false, "Replace the remote file if it exists")
	putCmd.Flags().StringVar(&putName, "name", "", "Remote file name (default: the local base name)")

	getCmd := &cobra.Command{
		Use:   "get <remote-file> [local-file]",
		Short: "Download a file",
		Long: `Download a remote file. The local name defaults to the remote base name;
use "-" to write to stdout.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runGet,
	}

	rmCmd := &cobra.Command{
		Use:   "rm <remote-file>",
		Short: "Delete a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, p *output.Printer, args []string) error {
			if err := c.Delete(args[0]); err != nil {
				return err
			}
			p.Success("deleted %s", args[0])
			return nil
		}),
	}

	lsCmd := &cobra.Command{
		Use:   "ls [remote-dir]",
		Short: "List a remote directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
	lsCmd.Flags().StringVarP(&lsOutput, "output", "o", "table", "Output format: table, json, yaml")

	mkdirCmd := &cobra.Command{
		Use:   "mkdir <remote-dir>",
		Short: "Create a remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, p *output.Printer, args []string) error {
			if err := c.SubfolderCreate(args[0]); err != nil {
				return err
			}
			p.Success("created %s", args[0])
			return nil
		}),
	}

	rmdirCmd := &cobra.Command{
		Use:   "rmdir <remote-dir>",
		Short: "Delete an empty remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, p *output.Printer, args []string) error {
			if err := c.SubfolderDelete(args[0]); err != nil {
				return err
			}
			p.Success("removed %s", args[0])
			return nil
		}),
	}

	cmds := []*cobra.Command{putCmd, getCmd, rmCmd, lsCmd, mkdirCmd, rmdirCmd}
	for _, c := range cmds {
		c.Flags().StringVar(&remote.addr, "addr", DefaultServerAddr, "Server address (host:port)")
		c.Flags().StringVar(&remote.token, "token", "", "Handshake token (default: LOGON)")
		c.Flags().DurationVar(&remote.timeout, "timeout", client.DefaultTimeout, "Timeout for each network read or write")
		c.Flags().BoolVar(&remote.noColor, "no-color", false, "Disable colored status output")
	}
	return cmds
}

type remoteFunc func(cmd *cobra.Command, c *client.Client, p *output.Printer, args []string) error

// withClient connects and logs on before fn and logs off after it.
func withClient(fn remoteFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = c.Logoff() }()

		p := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, !remote.noColor)
		return fn(cmd, c, p, args)
	}
}

func dial(ctx context.Context) (*client.Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, remote.timeout)
	defer cancel()

	return client.Connect(dialCtx, remote.addr, client.Options{
		Timeout:        remote.timeout,
		HandshakeToken: remote.token,
	})
}

func runPut(cmd *cobra.Command, args []string) error {
	local := args[0]
	var destDir string
	if len(args) > 1 {
		destDir = args[1]
	}

	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", local)
	}

	name := putName
	if name == "" {
		name = filepath.Base(local)
	}
	policy := client.OverwriteNever
	if putOverwrite {
		policy = client.OverwriteAlways
	}

	return withClient(func(cmd *cobra.Command, c *client.Client, p *output.Printer, _ []string) error {
		start := time.Now()
		if err := c.Upload(f, info.Size(), name, destDir, policy); err != nil {
			if reason, ok := client.Reason(err); ok && reason == handlers.ReasonOverwriteDeclined {
				return fmt.Errorf("%w (remote file exists, use --overwrite to replace it)", err)
			}
			return err
		}
		p.Success("uploaded %s (%d bytes in %v)", path.Join(destDir, name), info.Size(), time.Since(start).Round(time.Millisecond))
		return nil
	})(cmd, args)
}

func runGet(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	local := path.Base(remotePath)
	if len(args) > 1 {
		local = args[1]
	}

	return withClient(func(cmd *cobra.Command, c *client.Client, p *output.Printer, _ []string) error {
		if local == "-" {
			_, err := c.Download(remotePath, cmd.OutOrStdout())
			return err
		}

		tmp, err := os.CreateTemp(filepath.Dir(local), ".fileshare-get-*")
		if err != nil {
			return err
		}
		n, err := c.Download(remotePath, tmp)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(tmp.Name())
			return err
		}
		if err := os.Rename(tmp.Name(), local); err != nil {
			_ = os.Remove(tmp.Name())
			return err
		}

		p.Success("downloaded %s to %s (%d bytes)", remotePath, local, n)
		return nil
	})(cmd, args)
}

// listing is the ls result in every output format.
type listing struct {
	Entries []listingEntry `json:"entries" yaml:"entries"`
}

type listingEntry struct {
	Kind string `json:"kind" yaml:"kind"`
	Path string `json:"path" yaml:"path"`
}

func (l listing) Headers() []string { return []string{"Kind", "Path"} }

func (l listing) Rows() [][]string {
	rows := make([][]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		rows = append(rows, []string{e.Kind, e.Path})
	}
	return rows
}

func runLs(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(lsOutput)
	if err != nil {
		return err
	}
	var dir string
	if len(args) > 0 {
		dir = args[0]
	}

	return withClient(func(cmd *cobra.Command, c *client.Client, _ *output.Printer, _ []string) error {
		entries, err := c.Dir(dir)
		if err != nil {
			return err
		}

		result := listing{Entries: make([]listingEntry, 0, len(entries))}
		for _, e := range entries {
			result.Entries = append(result.Entries, listingEntry{Kind: e.Kind, Path: e.Path})
		}

		if format == output.FormatTable && len(result.Entries) == 0 {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "(empty)")
			return err
		}
		return output.NewPrinter(cmd.OutOrStdout(), format, !remote.noColor).Print(result)
	})(cmd, args)
}
