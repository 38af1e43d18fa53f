package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get RESOURCE ID",
		Short: "Show one resource",
		Long: `Show one resource as YAML, or as JSON with -j.

Examples:
  herdctl get animals 12
  herdctl get health 40 -j`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			if r.get == nil {
				return unsupported("get", r)
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			svc, err := a.signedIn()
			if err != nil {
				return err
			}
			item, err := r.get(cmd.Context(), svc, id)
			if err != nil {
				return err
			}
			return a.printItem(item)
		},
	}
}

// printItem writes v as a JSON result or as YAML.
func (a *app) printItem(v any) error {
	if a.jsonOutput {
		a.printResult(v)
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	out, err := yaml.JSONToYAML(raw)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	fmt.Fprint(a.out, string(out))
	return nil
}
