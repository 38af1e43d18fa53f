package cli

import (
	"github.com/spf13/cobra"
)

func newCreateCmd(a *app) *cobra.Command {
	var (
		file string
		sets []string
	)
	cmd := &cobra.Command{
		Use:   "create RESOURCE -f FILE [--set path=value]",
		Short: "Create a resource from a YAML or JSON file",
		Long: `Create a resource from a YAML or JSON file. The file may reference
environment variables as {{ .ENV.NAME }}; a .env file in the working directory
is read too. --set edits the payload before it is sent.

Examples:
  herdctl create animals -f cow.yaml
  herdctl create milking --set animalId=12 --set date=2024-03-01 --set session=morning --set quantity=18.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			if r.create == nil {
				return unsupported("create", r)
			}
			body, err := buildPayload(file, sets)
			if err != nil {
				return err
			}
			svc, err := a.signedIn()
			if err != nil {
				return err
			}
			item, err := r.create(cmd.Context(), svc, body)
			if err != nil {
				return err
			}
			if !a.jsonOutput {
				a.printOK("Created %s", singular(r))
			}
			return a.printItem(item)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON payload file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Set a payload field (path=value, repeatable)")
	return cmd
}

func singular(r *resource) string {
	switch r.name {
	case "animals":
		return "animal"
	case "users":
		return "user"
	case "heat-detections":
		return "heat detection"
	default:
		return r.name + " record"
	}
}
