package cmds

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
	"github.com/sherzod-hakimov/clm-pol-gen/pkg/transcript"
)

// NewChatCommand resolves a model and runs a line-based chat loop against it.
func NewChatCommand() *cobra.Command {
	var (
		backendName string
		temperature float64
		transcripts string
	)
	cmd := &cobra.Command{
		Use:   "chat <model-name>",
		Short: "Chat with a resolved backend on stdin/stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := backends.LoadRegistry(viper.GetString("registry"))
			if err != nil {
				return err
			}
			spec := backends.NewModelSpec(args[0])
			spec.Backend = backendName
			if cmd.Flags().Changed("temperature") {
				spec.Temperature = &temperature
			}

			resolver := backends.NewResolver(registry, nil)
			backend, err := resolver.Resolve(spec)
			if err != nil {
				return err
			}

			var store *transcript.SQLiteStore
			if transcripts != "" {
				store, err = transcript.NewSQLiteStore(transcripts)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
			}

			var history []backends.Message
			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprintln(cmd.OutOrStdout(), "chatting with", backend.Spec().String(), "- empty line quits")
			for {
				fmt.Fprint(cmd.OutOrStdout(), "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					break
				}
				history = append(history, backends.Message{Role: backends.RoleUser, Content: line})
				completion, err := backend.Generate(cmd.Context(), history)
				if err != nil {
					return err
				}
				history = append(history, backends.Message{Role: backends.RoleAssistant, Content: completion.Text})
				fmt.Fprintln(cmd.OutOrStdout(), completion.Text)
				if store != nil {
					if _, err := store.Record(cmd.Context(), backend.Spec(), completion); err != nil {
						log.Warn().Err(err).Msg("could not record transcript")
					}
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&backendName, "backend", "", "override the backend from the registry")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.0, "sampling temperature")
	cmd.Flags().StringVar(&transcripts, "transcripts", "", "sqlite file to record prompt/response transcripts into")
	return cmd
}
