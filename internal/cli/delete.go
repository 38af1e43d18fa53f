package cli

import (
	"github.com/spf13/cobra"

	"github.com/herdbook/herdbook/internal/herd"
)

func newDeleteCmd(a *app) *cobra.Command {
	var animalID int64
	cmd := &cobra.Command{
		Use:   "delete RESOURCE ID",
		Short: "Delete a resource",
		Long: `Delete a resource. For records that belong to an animal, --animal names the
animal so that only its cached views are refreshed.

Examples:
  herdctl delete animals 12
  herdctl delete milking 301 --animal 12`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			if r.remove == nil {
				return unsupported("delete", r)
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			svc, err := a.signedIn()
			if err != nil {
				return err
			}
			if err := r.remove(cmd.Context(), svc, herd.RecordRef{ID: id, AnimalID: animalID}); err != nil {
				return err
			}
			if a.jsonOutput {
				a.printResult(map[string]any{"deleted": id})
				return nil
			}
			a.printOK("Deleted %s %d", singular(r), id)
			return nil
		},
	}
	cmd.Flags().Int64Var(&animalID, "animal", 0, "Animal the record belongs to")
	return cmd
}
