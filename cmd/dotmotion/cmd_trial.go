package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nvandessel/dotmotion/internal/evaluate"
	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/spf13/cobra"
)

func newTrialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trial",
		Short: "Issue a new trial",
		Long: `Generate a trial and remember it until it is answered or expires.

The trial ID is printed along with the coherence. Answer it with
'dotmotion respond <id> <left|right>' or record a miss with
'dotmotion timeout <id>'.

Examples:
  dotmotion trial
  dotmotion trial --name ada
  dotmotion trial --frame-at 250ms --json   # include the dot field at 250ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			name, _ := cmd.Flags().GetString("name")
			frameAt, _ := cmd.Flags().GetDuration("frame-at")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p := a.engine.NewTrial(name)
			if err := a.saveSession(); err != nil {
				return err
			}

			var frame interface{}
			if cmd.Flags().Changed("frame-at") {
				f, err := a.engine.Frame(p.ID, frameAt)
				if err != nil {
					return err
				}
				frame = f
			}

			if jsonOut {
				out := map[string]interface{}{
					"trial_id":   p.ID,
					"coherence":  p.Spec.Coherence,
					"direction":  p.Spec.Direction,
					"variant":    p.Spec.Variant,
					"expires_at": p.ExpiresAt.Format(time.RFC3339),
				}
				if frame != nil {
					out["frame"] = frame
				}
				return printJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Trial %s\n", p.ID)
			fmt.Fprintf(w, "  Coherence: %g (%s)\n", p.Spec.Coherence, p.Spec.Variant)
			fmt.Fprintf(w, "  Answer before %s\n", p.ExpiresAt.Local().Format(time.Kitchen))
			if frame != nil {
				fmt.Fprintf(w, "  Frame rendered at %s (use --json to see the dots)\n", frameAt)
			}
			return nil
		},
	}

	cmd.Flags().String("name", "", "Observer name recorded with the response")
	cmd.Flags().Duration("frame-at", 0, "Also render the dot field at this playback offset")
	return cmd
}

func newRespondCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "respond <trial-id> <left|right> | respond <left|right> --correct <dir> --coherence <c>",
		Short: "Answer a trial",
		Long: `Score a response and append it to the record store.

With a trial ID the correct direction and coherence come from the pending
trial. With a single argument the trial parameters must be passed as flags,
for observers that ran the stimulus elsewhere.

Examples:
  dotmotion respond 3f6c... right --rt 512
  dotmotion respond left --correct right --coherence 0.12 --rt 800 --name ada`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			name, _ := cmd.Flags().GetString("name")
			rt, _ := cmd.Flags().GetFloat64("rt")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := commandContext(cmd)

			var rec models.ResponseRecord
			if len(args) == 2 {
				rec, err = a.engine.Answer(ctx, args[0], name, args[1], rt)
				if err != nil {
					return err
				}
				if err := a.saveSession(); err != nil {
					return err
				}
			} else {
				correct, _ := cmd.Flags().GetString("correct")
				coherence, _ := cmd.Flags().GetString("coherence")
				c, err := strconv.ParseFloat(coherence, 64)
				if err != nil {
					return fmt.Errorf("invalid --coherence %q: %w", coherence, err)
				}
				rec, err = a.engine.Submit(ctx, evaluate.Submission{
					Name:            name,
					Response:        args[0],
					CorrectResponse: correct,
					Coherence:       c,
					ReactionTime:    rt,
				})
				if err != nil {
					return err
				}
			}

			return printRecord(cmd, jsonOut, rec)
		},
	}

	cmd.Flags().String("name", "", "Observer name (defaults to the name given at trial time)")
	cmd.Flags().Float64("rt", 0, "Reaction time in milliseconds")
	cmd.Flags().String("correct", "", "Correct direction when answering without a trial ID")
	cmd.Flags().String("coherence", "", "Coherence when answering without a trial ID")
	return cmd
}

func newTimeoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeout <trial-id>",
		Short: "Record a trial as unanswered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			name, _ := cmd.Flags().GetString("name")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.engine.Expire(commandContext(cmd), args[0], name)
			if err != nil {
				return err
			}
			if err := a.saveSession(); err != nil {
				return err
			}
			return printRecord(cmd, jsonOut, rec)
		},
	}

	cmd.Flags().String("name", "", "Observer name (defaults to the name given at trial time)")
	return cmd
}

func printRecord(cmd *cobra.Command, jsonOut bool, rec models.ResponseRecord) error {
	if jsonOut {
		return printJSON(cmd, rec)
	}
	w := cmd.OutOrStdout()
	switch {
	case !rec.Responded():
		fmt.Fprintf(w, "Timeout: the dots moved %s\n", rec.Correct)
	case rec.CorrectGuess:
		fmt.Fprintf(w, "Correct: the dots moved %s (%.0f ms)\n", rec.Correct, rec.ReactionTime)
	default:
		fmt.Fprintf(w, "Incorrect: the dots moved %s (%.0f ms)\n", rec.Correct, rec.ReactionTime)
	}
	return nil
}
