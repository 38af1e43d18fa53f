package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herdbook/herdbook/internal/herd"
)

func newUpdateCmd(a *app) *cobra.Command {
	var (
		file string
		sets []string
	)
	cmd := &cobra.Command{
		Use:   "update RESOURCE ID -f FILE [--set path=value]",
		Short: "Replace a resource from a YAML or JSON file",
		Long: `Replace the editable fields of a resource. The payload is built the same way
as for create.

Examples:
  herdctl update animals 12 -f cow.yaml --set name=Daisy`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			if r.update == nil {
				return unsupported("update", r)
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			body, err := buildPayload(file, sets)
			if err != nil {
				return err
			}
			svc, err := a.signedIn()
			if err != nil {
				return err
			}
			item, err := r.update(cmd.Context(), svc, id, body)
			if err != nil {
				return err
			}
			if !a.jsonOutput {
				a.printOK("Updated %s %d", singular(r), id)
			}
			return a.printItem(item)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON payload file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Set a payload field (path=value, repeatable)")
	return cmd
}

// newSetStatusCmd changes an animal's status or a user's role.
func newSetStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status RESOURCE ID VALUE",
		Short: "Change an animal's status or a user's role",
		Long: `Change an animal's status or a user's role.

Examples:
  herdctl set-status animals 12 dry
  herdctl set-status users 3 manager`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			svc, err := a.signedIn()
			if err != nil {
				return err
			}

			var item any
			switch r.name {
			case "animals":
				item, err = svc.ChangeAnimalStatus().Run(cmd.Context(), svc.Cache(), herd.StatusChange{ID: id, Status: herd.AnimalStatus(args[2])})
			case "users":
				item, err = svc.ChangeUserRole().Run(cmd.Context(), svc.Cache(), herd.RoleChange{ID: id, Role: herd.Role(args[2])})
			default:
				return fmt.Errorf("set-status applies to animals and users, not %s", r.name)
			}
			if err != nil {
				return err
			}
			if !a.jsonOutput {
				a.printOK("Set %s %d to %s", singular(r), id, args[2])
			}
			return a.printItem(item)
		},
	}
}
