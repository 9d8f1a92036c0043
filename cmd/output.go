package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/danielolaszy/poker/internal/poker"
)

// printSink writes notifications as lines. Errors go to errOut.
type printSink struct {
	out    io.Writer
	errOut io.Writer
}

// Notify implements poker.NotificationSink.
func (s printSink) Notify(n poker.Notification) {
	w := s.out
	if n.Kind == poker.KindError {
		w = s.errOut
	}
	if n.Title != "" {
		fmt.Fprintf(w, "[%s] %s: %s\n", n.Kind, n.Title, n.Body)
		return
	}
	fmt.Fprintf(w, "[%s] %s\n", n.Kind, n.Body)
}

// promptConfirmer asks on out and reads the answer from in.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out}
}

// Confirm implements poker.Confirmer. Only "y" or "yes" confirms.
func (c *promptConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	fmt.Fprintf(c.out, "%s [y/N] ", prompt)
	answer, err := c.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// printSnapshot writes the session state of a widget.
func printSnapshot(w io.Writer, snap poker.Snapshot) {
	fmt.Fprintf(w, "Session %s is %s\n", snap.IssueKey, snap.State)

	if snap.State != "ended" {
		var cards []string
		for _, c := range snap.Cards {
			if c.Active {
				cards = append(cards, "["+c.Value+"]")
			} else {
				cards = append(cards, c.Value)
			}
		}
		fmt.Fprintf(w, "Cards:  %s\n", strings.Join(cards, " "))
		if len(snap.Voters) > 0 {
			fmt.Fprintf(w, "Voted:  %s\n", strings.Join(snap.Voters, ", "))
		}
		return
	}
	printResults(w, snap)
}

// printResults writes the votes table, the statistics and the estimate state.
func printResults(w io.Writer, snap poker.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VOTER\tVOTE\tCOMMENT")
	for _, r := range snap.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Voter, r.Value, r.Comment)
	}
	tw.Flush()

	if !snap.Stats.Empty() {
		fmt.Fprintf(w, "Min %g, max %g, average %.1f over %d votes\n",
			snap.Stats.Min, snap.Stats.Max, snap.Stats.Average, snap.Stats.Count)
	}
	if snap.FinalEstimate != "" {
		fmt.Fprintf(w, "Final estimate: %s\n", snap.FinalEstimate)
	} else if len(snap.Estimates) > 0 {
		fmt.Fprintf(w, "Estimates to apply: %s\n", strings.Join(snap.Estimates, ", "))
	}
}
