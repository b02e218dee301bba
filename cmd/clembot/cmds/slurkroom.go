package cmds

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends/slurk"
)

// NewSlurkRoomCommand provisions a slurk room and blocks until a human
// participant joins it.
func NewSlurkRoomCommand() *cobra.Command {
	var (
		layoutFile   string
		botPermsFile string
		usrPermsFile string
	)
	cmd := &cobra.Command{
		Use:   "slurk-room",
		Short: "Provision a slurk room and wait for a participant to join",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := slurk.New(backends.NewModelSpec(slurk.Name))
			if err != nil {
				return err
			}
			bridge, ok := backend.(*slurk.Slurk)
			if !ok {
				return errors.New("slurk backend has an unexpected type")
			}

			layout, err := readJSONMap(layoutFile, defaultLayout)
			if err != nil {
				return err
			}
			botPerms, err := readJSONMap(botPermsFile, defaultBotPermissions)
			if err != nil {
				return err
			}
			usrPerms, err := readJSONMap(usrPermsFile, defaultUserPermissions)
			if err != nil {
				return err
			}
			return bridge.PrepareAndWaitForParticipant(cmd.Context(), layout, botPerms, usrPerms)
		},
	}
	cmd.Flags().StringVar(&layoutFile, "layout", "", "json file with the room layout")
	cmd.Flags().StringVar(&botPermsFile, "bot-permissions", "", "json file with the bot permission set")
	cmd.Flags().StringVar(&usrPermsFile, "user-permissions", "", "json file with the user permission set")
	return cmd
}

var (
	defaultLayout = map[string]any{
		"title":    "clembench",
		"subtitle": "A benchmark game room",
	}
	defaultBotPermissions = map[string]any{
		"api":          true,
		"send_message": true,
	}
	defaultUserPermissions = map[string]any{
		"send_message": true,
	}
)

func readJSONMap(path string, fallback map[string]any) (map[string]any, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrapf(err, "parsing %q", path)
	}
	return out, nil
}
