package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ordesk/ordesk"
	"github.com/ordesk/ordesk/internal/presentation/tui"
	"github.com/ordesk/ordesk/internal/sanitize"
	"github.com/ordesk/ordesk/pkg/config"
	"github.com/ordesk/ordesk/pkg/domain"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent from the terminal",
	Long: `Starts an interactive session against the configured providers. Each line
is one message fragment; type several lines quickly and they coalesce into
a single turn, exactly as rapid messages do over the HTTP API.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if delay, _ := cmd.Flags().GetDuration("delay"); cmd.Flags().Changed("delay") {
			cfg.Debounce.Delay = config.Duration(delay)
		}
		userID, _ := cmd.Flags().GetString("user")

		engine, err := ordesk.New(cfg)
		if err != nil {
			fmt.Printf("Error initializing ordesk: %v\n", err)
			os.Exit(1)
		}
		defer engine.Close()

		interactive := term.IsTerminal(int(os.Stdout.Fd()))
		render := func(s string) string { return s }
		if interactive {
			tui.PrintBanner()
			render = tui.NewRenderer()
			fmt.Println("Type a message. 'exit' or 'quit' ends the session.")
			fmt.Println()
		}

		profile := termenv.ColorProfile()
		dim := func(s string) string {
			return termenv.String(s).Foreground(profile.Color("8")).String()
		}

		reader := bufio.NewReader(os.Stdin)
		for {
			if interactive {
				fmt.Print("> ")
			}
			line, err := reader.ReadString('\n')
			if err != nil {
				break
			}
			text, err := sanitize.Input(strings.TrimSpace(line))
			if err != nil {
				fmt.Printf("Rejected: %v\n", err)
				continue
			}
			if text == "exit" || text == "quit" {
				fmt.Println("Bye!")
				break
			}

			res, err := engine.Handle(cmd.Context(), userID, domain.BufferedFragment{Text: text})
			if errors.Is(err, domain.ErrSuperseded) {
				// A faster follow-up line took over this turn.
				continue
			}
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}

			fmt.Print(render(res.Reply))
			if interactive {
				label := fmt.Sprintf("[%s · step %d · %s]", res.FinalState, res.Step, res.Provider)
				if res.ShouldEscalate {
					label += " (escalated)"
				}
				fmt.Println(dim(label))
				fmt.Println()
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("user", "u", "local", "Session/user ID for the conversation")
	chatCmd.Flags().Duration("delay", 700*time.Millisecond, "Debounce delay between fragments")
}
