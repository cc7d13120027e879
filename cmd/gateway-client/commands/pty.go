package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/telnet2/sessiongw/client"
)

var (
	ptyWorkspaceName string
	ptyWorkspacePath string
)

var ptyCmd = &cobra.Command{
	Use:   "pty",
	Short: "Attach a raw terminal to a PTY session",
	RunE:  runPTY,
}

func init() {
	ptyCmd.Flags().StringVar(&ptyWorkspaceName, "workspace-name", "", "registered workspace name to attach within")
	ptyCmd.Flags().StringVar(&ptyWorkspacePath, "workspace", "", "absolute workspace path to attach within")
}

// runPTY implements SPEC_FULL.md §4.8a: put the local terminal into raw
// mode, forward stdin as `input` frames, forward SIGWINCH as `resize`
// control frames, and render `output` frames directly to stdout.
func runPTY(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	fd := int(os.Stdin.Fd())
	if !isatty.IsTerminal(uintptr(fd)) {
		return fmt.Errorf("pty: stdin is not a terminal")
	}

	cols, rows, err := term.GetSize(fd)
	if err != nil {
		cols, rows = 80, 24
	}

	sess, err := client.DialPTY(ctx, client.PTYOptions{
		ControlBaseURL: controlBaseURL,
		WorkspaceName:  ptyWorkspaceName,
		WorkspacePath:  ptyWorkspacePath,
		Cols:           cols,
		Rows:           rows,
	})
	if err != nil {
		return fmt.Errorf("pty: dial: %w", err)
	}

	done := make(chan struct{}, 1)
	sess.OnOutput(func(data []byte) { os.Stdout.Write(data) })
	sess.OnExit(func(msg string) {
		fmt.Fprintf(os.Stderr, "\r\n[gateway-client] shell exited: %s\r\n", msg)
		select {
		case done <- struct{}{}:
		default:
		}
	})

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("pty: cannot set raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Fprint(os.Stderr, "\r\n[gateway-client] attached (detach: Ctrl-])\r\n")

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				for i := 0; i < n; i++ {
					if buf[i] == 0x1D {
						sess.Close()
						select {
						case done <- struct{}{}:
						default:
						}
						return
					}
				}
				sess.Write(buf[:n])
			}
			if err != nil {
				select {
				case done <- struct{}{}:
				default:
				}
				return
			}
		}
	}()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			if cols, rows, err := term.GetSize(fd); err == nil {
				sess.Resize(cols, rows)
			}
		}
	}()

	<-done
	signal.Stop(winch)
	return nil
}
