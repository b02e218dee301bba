package cmds

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

// modelLister is implemented by backends that can query their provider's
// model listing.
type modelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// NewModelsCommand lists the model registry entries, or the models a
// provider actually serves when --remote names a registry model.
func NewModelsCommand() *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models known to the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := backends.LoadRegistry(viper.GetString("registry"))
			if err != nil {
				return err
			}
			if remote != "" {
				return listRemote(cmd, registry, remote)
			}
			for _, spec := range registry.Specs() {
				modelID := spec.ModelID
				if modelID == "" {
					modelID = spec.Name
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tbackend=%s\tmodel_id=%s\n", spec.Name, spec.Backend, modelID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "resolve this registry model and list the models its provider serves")
	return cmd
}

func listRemote(cmd *cobra.Command, registry *backends.Registry, name string) error {
	resolver := backends.NewResolver(registry, nil)
	backend, err := resolver.Resolve(backends.NewModelSpec(name))
	if err != nil {
		return err
	}
	lister, ok := backend.(modelLister)
	if !ok {
		return errors.Errorf("backend %q cannot list its provider's models", backend.Spec().Backend)
	}
	ids, err := lister.ListModels(cmd.Context())
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}
