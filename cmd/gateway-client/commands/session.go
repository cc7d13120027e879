package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telnet2/sessiongw/client"
)

var (
	sessionWorkspacePath string
	sessionCommand       string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start an assistant session and relay stdin/stdout",
	RunE:  runSession,
}

func init() {
	sessionCmd.Flags().StringVar(&sessionWorkspacePath, "workspace", "", "workspace path to scope the session to")
	sessionCmd.Flags().StringVar(&sessionCommand, "command", "", "assistant command to run (defaults to the gateway's configured binary)")
	sessionCmd.MarkFlagRequired("workspace")
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	c := client.New(client.Options{ControlBaseURL: controlBaseURL})
	c.OnUpdate(func(sessionID string) {
		sess, ok := c.Session(sessionID)
		if !ok || len(sess.Messages) == 0 {
			return
		}
		last := sess.Messages[len(sess.Messages)-1]
		printFrame(last.Frame.Type, last.Frame.Data)
	})

	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Close()

	sessionID := c.CreateSession(sessionWorkspacePath, sessionCommand)
	fmt.Fprintf(os.Stderr, "session %s started, type commands and press enter\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		c.SendCommand(sessionID, scanner.Text(), nil)
	}
	return scanner.Err()
}

func printFrame(frameType, data string) {
	var pretty interface{}
	if json.Unmarshal([]byte(data), &pretty) == nil {
		encoded, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Printf("[%s] %s\n", frameType, encoded)
		return
	}
	fmt.Printf("[%s] %s\n", frameType, data)
}
