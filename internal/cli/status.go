package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/brandquest/internal/engine"
	"github.com/roach88/brandquest/internal/mission"
)

// Mission states shown by status.
const (
	stateCompleted = "completed"
	statePending   = "pending_sync"
	stateUnlocked  = "unlocked"
	stateLocked    = "locked"
)

// MissionStatus is one catalog row of the status report.
type MissionStatus struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	State string `json:"state"`
}

// StatusData is the status payload.
type StatusData struct {
	RecordID      string          `json:"record_id"`
	Offline       bool            `json:"offline"`
	XP            int             `json:"xp"`
	XPToNextLevel int             `json:"xp_to_next_level"`
	Level         string          `json:"level"`
	Clarity       int             `json:"clarity_score"`
	Percentile    int             `json:"comparative_percentile"`
	Unlocked      int             `json:"unlocked_mission"`
	Missions      []MissionStatus `json:"missions"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show brand progress and mission availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts)
		},
	}
}

func runStatus(cmd *cobra.Command, rootOpts *RootOptions) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, rootOpts.Config)
	if err != nil {
		return err
	}
	defer rt.Close()

	data := collectStatus(rt, rt.session.Unlocked(ctx), rt.session.Pending(ctx))
	f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if f.JSON() {
		return f.Success(data)
	}
	printStatus(f.Writer, data)
	return nil
}

func collectStatus(rt *runtime, unlocked int, pending []mission.ID) StatusData {
	m := rt.session.Metrics()
	data := StatusData{
		RecordID:      rt.session.RecordID(),
		Offline:       rt.session.Offline(),
		XP:            m.XP,
		XPToNextLevel: m.XPToNextLevel,
		Level:         m.Level,
		Clarity:       m.Clarity,
		Percentile:    m.Percentile,
		Unlocked:      unlocked,
	}
	for _, spec := range rt.engine.Catalog().Missions {
		data.Missions = append(data.Missions, MissionStatus{
			Key:   spec.ID.Key(),
			Title: spec.Title,
			State: missionState(spec.ID, m, unlocked, pending),
		})
	}
	return data
}

func missionState(id mission.ID, m engine.Metrics, unlocked int, pending []mission.ID) string {
	switch {
	case slices.Contains(m.Completed, id):
		return stateCompleted
	case slices.Contains(pending, id):
		return statePending
	case int(id) <= unlocked:
		return stateUnlocked
	}
	return stateLocked
}

func printStatus(w io.Writer, d StatusData) {
	label := d.Level
	if label == "" {
		label = "(no level)"
	}
	headline.Fprintf(w, "Brand %s", d.RecordID)
	if d.Offline {
		fmt.Fprint(w, " (offline)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Level: %s  XP %d (%d to next)\n", label, d.XP, d.XPToNextLevel)
	fmt.Fprintf(w, "Clarity %d  Percentile %d\n", d.Clarity, d.Percentile)
	fmt.Fprintln(w)
	for _, ms := range d.Missions {
		fmt.Fprintf(w, "%s %-10s %s\n", stateMark(ms.State), ms.Key, ms.Title)
	}
}

func stateMark(state string) string {
	switch state {
	case stateCompleted:
		return okMark
	case statePending:
		return pendingMark
	case stateUnlocked:
		return openMark
	}
	return lockedMark
}
