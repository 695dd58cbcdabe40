package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CatalogStage is one stage row of the catalog listing.
type CatalogStage struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Title string `json:"title"`
}

// CatalogMission is one mission row of the catalog listing.
type CatalogMission struct {
	Ordinal      int            `json:"ordinal"`
	Key          string         `json:"key"`
	Title        string         `json:"title"`
	XPAward      int            `json:"xp_award"`
	ClarityFloor int            `json:"clarity_floor"`
	Fields       []string       `json:"fields"`
	Stages       []CatalogStage `json:"stages"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the missions of the configured catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, rootOpts)
		},
	}
}

func runCatalog(cmd *cobra.Command, rootOpts *RootOptions) error {
	cat, err := loadCatalog(rootOpts.Config)
	if err != nil {
		return err
	}

	missions := make([]CatalogMission, 0, len(cat.Missions))
	for _, spec := range cat.Missions {
		m := CatalogMission{
			Ordinal:      int(spec.ID),
			Key:          spec.ID.Key(),
			Title:        spec.Title,
			XPAward:      spec.XPAward,
			ClarityFloor: spec.ClarityFloor,
		}
		for _, field := range spec.Fields {
			m.Fields = append(m.Fields, field.Name)
		}
		for _, stage := range spec.Stages {
			m.Stages = append(m.Stages, CatalogStage{ID: stage.ID, Kind: string(stage.Kind), Title: stage.Title})
		}
		missions = append(missions, m)
	}

	f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if f.JSON() {
		return f.Success(missions)
	}
	w := f.Writer
	for _, m := range missions {
		headline.Fprintf(w, "%d. %s", m.Ordinal, m.Title)
		fmt.Fprintf(w, " (%s, +%d xp, floor %d)\n", m.Key, m.XPAward, m.ClarityFloor)
		for _, s := range m.Stages {
			fmt.Fprintf(w, "   %-12s %-8s %s\n", s.ID, s.Kind, s.Title)
		}
	}
	return nil
}
