package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/herdbook/herdbook/internal/herd"
)

func newListCmd(a *app) *cobra.Command {
	var (
		status   string
		animalID int64
		where    []string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "list RESOURCE [flags]",
		Short: "List resources of a specific type",
		Long: `List resources of a specific type. Supported resource types are:
  - animals
  - breeding
  - heat-detections
  - milking
  - health
  - users

Examples:
  # List all animals
  herdctl list animals

  # List dry cows
  herdctl list animals --status dry

  # List milking records of animal 12, second page of 20
  herdctl list milking --animal 12 --page 2 --page-size 20

  # Filter on any field of the JSON form
  herdctl list health --where type=vaccination`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			if status != "" && r.name != "animals" {
				return fmt.Errorf("--status only applies to animals")
			}
			if animalID != 0 && (r.name == "animals" || r.name == "users") {
				return fmt.Errorf("--animal does not apply to %s", r.name)
			}
			svc, err := a.signedIn()
			if err != nil {
				return err
			}

			list, err := r.list(cmd.Context(), svc, listOptions{status: herd.AnimalStatus(status), animalID: animalID})
			if err != nil {
				return err
			}
			for _, w := range where {
				path, value, ok := strings.Cut(w, "=")
				if !ok {
					return fmt.Errorf("invalid --where %q; expected path=value", w)
				}
				list = herd.MatchField(list, path, value)
			}
			p := herd.Paginate(list, page, pageSize)

			if a.jsonOutput {
				a.printResult(p)
				return nil
			}
			if err := printTable(a.out, r.name, p.Items, r.columns); err != nil {
				return err
			}
			if p.TotalPages > 1 {
				fmt.Fprintf(a.out, "Page %d of %d (%d total)\n", p.Page, p.TotalPages, p.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only animals in this status")
	cmd.Flags().Int64Var(&animalID, "animal", 0, "Only records of this animal")
	cmd.Flags().StringArrayVar(&where, "where", nil, "Keep items whose field equals value (path=value, repeatable)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Items per page (0 shows everything)")
	return cmd
}
