package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/brandquest/internal/engine"
	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/phase"
	"github.com/roach88/brandquest/internal/syncer"
)

const (
	// maxGenerationAttempts bounds retries of one failing stage.
	maxGenerationAttempts = 3
	// maxPlaySteps bounds the generate/review loop.
	maxPlaySteps = 64
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	AnswersFile string
	Answers     map[string]string
	Select      map[string]int
}

// StageReport is one generated stage and the choice made on it.
type StageReport struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Text     string   `json:"text,omitempty"`
	Options  []string `json:"options,omitempty"`
	Selected *int     `json:"selected,omitempty"`
	Attempts int      `json:"attempts"`
}

// PlayData is the play payload.
type PlayData struct {
	Mission  string         `json:"mission"`
	Restored bool           `json:"restored"`
	Phase    string         `json:"phase"`
	Synced   bool           `json:"synced"`
	SyncErr  string         `json:"sync_error,omitempty"`
	Stages   []StageReport  `json:"stages,omitempty"`
	Metrics  engine.Metrics `json:"metrics"`
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play <mission>",
		Short: "Play a mission to completion",
		Long: `Play a mission non-interactively.

Answers come from a YAML file of field: value pairs and from --answer flags,
which take precedence. Each selectable stage picks option 0 unless --select
names another index.`,
		Example: `  brandquest play discovery --answers discovery.yaml
  brandquest play naming --answer tone=playful --select names=2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.AnswersFile, "answers", "a", "", "YAML file of answers")
	cmd.Flags().StringToStringVar(&opts.Answers, "answer", nil, "answer as field=value (repeatable)")
	cmd.Flags().StringToIntVar(&opts.Select, "select", nil, "option index as stage=index (repeatable)")

	return cmd
}

// loadAnswers merges the answers file with flag answers.
func (o *PlayOptions) loadAnswers() (map[string]string, error) {
	answers := map[string]string{}
	if o.AnswersFile != "" {
		data, err := os.ReadFile(o.AnswersFile)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read answers", err)
		}
		if err := yaml.Unmarshal(data, &answers); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to parse answers", err)
		}
	}
	maps.Copy(answers, o.Answers)
	return answers, nil
}

func runPlay(cmd *cobra.Command, opts *PlayOptions, key string) error {
	ctx := cmd.Context()
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	id, err := mission.ParseID(key)
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown mission", err)
	}
	answers, err := opts.loadAnswers()
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer rt.Close()

	run, err := rt.session.Start(ctx, id)
	switch {
	case engine.IsLocked(err):
		return WrapExitError(ExitCommandError, "mission is locked", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to start mission", err)
	}

	data := PlayData{Mission: id.Key()}
	if run.State().Phase == phase.Complete {
		data.Restored = true
		f.VerboseLog("%s restored from a stored result", id.Key())
	} else {
		stages, err := playRun(ctx, f, run, rt.engine.Catalog().MustSpec(id), answers, opts.Select)
		data.Stages = stages
		if err != nil && !syncer.IsPersistenceError(err) {
			return playError(err)
		}
	}

	rt.session.Wait()
	data.Phase = run.State().Phase.String()
	data.Synced = run.Synced()
	if serr := run.SyncErr(); serr != nil {
		data.SyncErr = serr.Error()
	}
	data.Metrics = rt.session.Metrics()

	if f.JSON() {
		if err := f.Success(data); err != nil {
			return err
		}
	} else {
		printPlay(f, data)
	}
	if !data.Synced {
		return NewExitError(ExitFailure, fmt.Sprintf("%s completed but is not synced; run `brandquest sync` to retry", id.Key()))
	}
	return nil
}

// playRun drives run from Intro to Complete.
func playRun(ctx context.Context, f *OutputFormatter, run *engine.Run, spec mission.Spec, answers map[string]string, picks map[string]int) ([]StageReport, error) {
	if err := run.Begin(); err != nil {
		return nil, err
	}
	if err := run.Advance(ctx, phase.Input{Answers: answers}); err != nil {
		return nil, err
	}

	var reports []StageReport
	failures := map[string]int{}
	for range maxPlaySteps {
		st := run.State()
		switch st.Phase {
		case phase.Generating, phase.Error:
			out, err := run.Generate(ctx)
			if err != nil {
				failures[st.Stage]++
				if !phase.IsRetryable(err) || failures[st.Stage] >= maxGenerationAttempts {
					return reports, err
				}
				f.VerboseLog("stage %s failed, retrying: %v", st.Stage, err)
				continue
			}
			stage, _, _ := spec.Stage(st.Stage)
			reports = append(reports, StageReport{
				ID:       stage.ID,
				Title:    stage.Title,
				Text:     out.Text,
				Options:  out.Labels(),
				Attempts: failures[stage.ID] + 1,
			})

		case phase.Reviewing:
			in := phase.Input{}
			if stage, _, ok := spec.Stage(st.Stage); ok && stage.Selectable() {
				in = phase.Select(picks[st.Stage])
				if n := len(reports); n > 0 {
					reports[n-1].Selected = in.Selection
				}
			}
			if err := run.Advance(ctx, in); err != nil {
				return reports, err
			}

		default:
			return reports, nil
		}
	}
	return reports, fmt.Errorf("mission %s did not finish within %d steps", spec.ID.Key(), maxPlaySteps)
}

func playError(err error) error {
	var gerr *phase.GenerationError
	switch {
	case phase.IsValidation(err):
		return WrapExitError(ExitCommandError, "invalid input", err)
	case errors.As(err, &gerr):
		return WrapExitError(ExitFailure, fmt.Sprintf("generation failed at stage %s", gerr.Stage), err)
	}
	return WrapExitError(ExitFailure, "mission failed", err)
}

func printPlay(f *OutputFormatter, d PlayData) {
	w := f.Writer
	if d.Restored {
		fmt.Fprintf(w, "%s %s already completed\n", okMark, d.Mission)
	}
	for _, s := range d.Stages {
		headline.Fprintf(w, "%s\n", s.Title)
		if s.Text != "" {
			fmt.Fprintf(w, "  %s\n", s.Text)
		}
		for i, label := range s.Options {
			mark := " "
			if s.Selected != nil && *s.Selected == i {
				mark = okMark
			}
			fmt.Fprintf(w, "  %s %d. %s\n", mark, i, label)
		}
	}
	if !d.Restored {
		fmt.Fprintf(w, "%s %s %s\n", okMark, d.Mission, d.Phase)
	}
	if d.Synced {
		fmt.Fprintf(w, "%s synced\n", okMark)
	} else {
		fmt.Fprintf(w, "%s not synced: %s\n", pendingMark, strings.TrimSpace(d.SyncErr))
	}
	m := d.Metrics
	fmt.Fprintf(w, "XP %d (%s, %d to next)  Clarity %d  Percentile %d  Unlocked %d\n",
		m.XP, m.Level, m.XPToNextLevel, m.Clarity, m.Percentile, m.Unlocked)
}
