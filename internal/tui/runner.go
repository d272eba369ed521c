// Package tui renders the patient access form as an interactive terminal
// wizard. It drives the same controller as the HTTP API, in process.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/efeideo/drug-form/internal/wizard"
)

// ErrDeclined is returned when the user does not confirm the HCP disclaimer
var ErrDeclined = errors.New("healthcare professional confirmation declined")

// Runner walks one session through the wizard.
type Runner struct {
	ctrl       *wizard.Controller
	out        io.Writer
	accessible bool
	now        func() time.Time
}

// NewRunner creates a Runner printing status lines to out
func NewRunner(ctrl *wizard.Controller, out io.Writer, accessible bool) *Runner {
	return &Runner{ctrl: ctrl, out: out, accessible: accessible, now: time.Now}
}

func (r *Runner) newForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).
		WithShowHelp(false).
		WithShowErrors(true).
		WithAccessible(r.accessible)
}

// Run fills a new session until it is submitted, the user aborts, or ctx is done
func (r *Runner) Run(ctx context.Context) (wizard.Submitted, error) {
	sess := wizard.NewSession(r.now())

	for {
		if err := ctx.Err(); err != nil {
			return wizard.Submitted{}, err
		}

		if sess.Step == wizard.StepDisclaimer {
			if err := r.disclaimer(ctx, sess); err != nil {
				return wizard.Submitted{}, err
			}
			continue
		}

		if err := r.fillStep(ctx, sess); err != nil {
			return wizard.Submitted{}, err
		}
		r.printWarnings(sess)

		action, err := r.chooseAction(ctx, sess)
		if err != nil {
			return wizard.Submitted{}, err
		}

		switch action {
		case wizard.ActionNext:
			r.ctrl.Advance(sess, wizard.Next)
		case wizard.ActionPrevious:
			r.ctrl.Advance(sess, wizard.Previous)
		case wizard.ActionSubmit:
			res, err := r.ctrl.TrySubmit(ctx, sess, r.now())
			if err != nil {
				if _, ok := wizard.IsMissingFields(err); ok || errors.Is(err, wizard.ErrTooSoon) {
					fmt.Fprintln(r.out, ErrorStyle.Render(err.Error()))
					continue
				}
				return wizard.Submitted{}, err
			}
			r.printSubmitted(res)
			return res, nil
		}
	}
}

func (r *Runner) disclaimer(ctx context.Context, sess *wizard.Session) error {
	var confirmed bool
	form := r.newForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Disclaimer").
				Description(wizard.DisclaimerText),
			huh.NewConfirm().
				Key("hcp").
				Title("I confirm that I am a licensed healthcare provider").
				Affirmative("Yes").
				Negative("No").
				Value(&confirmed),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return err
	}
	if !confirmed {
		return ErrDeclined
	}
	r.ctrl.Acknowledge(sess)
	return nil
}

// fillStep renders the visible fields of the current step and records the
// answers. Answers can reveal further fields, so the step is rendered again
// until the visible set is stable.
func (r *Runner) fillStep(ctx context.Context, sess *wizard.Session) error {
	for {
		before := visibleKeys(r.ctrl, sess, sess.Step)

		commit, group := r.stepGroup(sess)
		if err := r.newForm(group).RunWithContext(ctx); err != nil {
			return err
		}
		if err := commit(); err != nil {
			return err
		}

		if slices.Equal(before, visibleKeys(r.ctrl, sess, sess.Step)) {
			return nil
		}
	}
}

// stepGroup builds the huh group for the current step. The returned commit
// func records the entered values once the form completes.
func (r *Runner) stepGroup(sess *wizard.Session) (func() error, *huh.Group) {
	step, _ := r.ctrl.Step(sess.Step)

	fields := []huh.Field{
		huh.NewNote().
			Title(fmt.Sprintf("%s: %s", step.Section, step.Title)).
			Description(fmt.Sprintf("Step %d of %d", step.Index, r.ctrl.LastStep())),
	}
	if step.Index == wizard.StepDeclaration {
		fields = append(fields,
			huh.NewNote().Title("Data Privacy").Description(wizard.PrivacyText),
			huh.NewNote().Title("Physician Declaration").Description(wizard.DeclarationText),
		)
	}

	var commits []func() error
	for f := range r.ctrl.VisibleFields(sess, sess.Step) {
		field, commit := r.widget(sess, f)
		fields = append(fields, field)
		commits = append(commits, commit)
	}

	commit := func() error {
		for _, c := range commits {
			if err := c(); err != nil {
				return err
			}
		}
		return nil
	}
	return commit, huh.NewGroup(fields...)
}

// widget returns the input for one field and a func recording its value
func (r *Runner) widget(sess *wizard.Session, f wizard.FieldDefinition) (huh.Field, func() error) {
	record := func(v wizard.Value) error {
		return r.ctrl.RecordAnswer(sess, sess.Step, f.Key, v)
	}

	switch f.Kind {
	case wizard.FieldSingleChoice:
		value := initialChoice(sess.Answers, f.Key)
		opts := []huh.Option[string]{huh.NewOption("(no answer)", noAnswer)}
		if f.Required {
			opts = nil
		}
		for _, o := range f.Domain.Options {
			opts = append(opts, huh.NewOption(o, o))
		}
		sel := huh.NewSelect[string]().
			Key(f.Key).
			Title(f.DisplayLabel()).
			Options(opts...).
			Value(&value)
		return sel, func() error {
			if value == noAnswer {
				return nil
			}
			return record(wizard.Text(value))
		}

	case wizard.FieldMultiChoice:
		value := initialList(sess.Answers, f.Key)
		ms := huh.NewMultiSelect[string]().
			Key(f.Key).
			Title(f.DisplayLabel()).
			Options(huh.NewOptions(f.Domain.Options...)...).
			Value(&value)
		return ms, func() error {
			if _, stored := sess.Answers.Get(f.Key); len(value) == 0 && !stored {
				return nil
			}
			return record(wizard.List(value...))
		}

	case wizard.FieldBoolean:
		var value bool
		if v, ok := sess.Answers.Get(f.Key); ok {
			value, _ = v.AsBool()
		}
		confirm := huh.NewConfirm().
			Key(f.Key).
			Title(f.DisplayLabel()).
			Value(&value)
		return confirm, func() error {
			return record(wizard.Bool(value))
		}

	default:
		value := initialText(sess.Answers, f.Key)
		input := huh.NewInput().
			Key(f.Key).
			Title(f.DisplayLabel()).
			Value(&value).
			Validate(validator(f, r.now))
		switch f.Kind {
		case wizard.FieldDate:
			input = input.Description("Format: YYYY-MM-DD")
		case wizard.FieldIntRange:
			if hi, ok := f.Domain.UpperBound(r.now()); ok {
				input = input.Description(fmt.Sprintf("%d to %d", f.Domain.Min, hi))
			}
		}
		return input, func() error {
			v, ok, err := parseInput(f, value)
			if err != nil {
				return err
			}
			if !ok {
				// Only text can be cleared; other kinds keep their last value
				if _, stored := sess.Answers.Get(f.Key); !stored || f.Kind != wizard.FieldText {
					return nil
				}
				v = wizard.Text("")
			}
			return record(v)
		}
	}
}

func (r *Runner) chooseAction(ctx context.Context, sess *wizard.Session) (wizard.Action, error) {
	labels := map[wizard.Action]string{
		wizard.ActionNext:     "Next",
		wizard.ActionPrevious: "Previous",
		wizard.ActionSubmit:   "Submit",
	}

	actions := r.ctrl.Actions(sess)
	// Offer the forward action first
	slices.Reverse(actions)

	opts := make([]huh.Option[wizard.Action], 0, len(actions))
	for _, a := range actions {
		opts = append(opts, huh.NewOption(labels[a], a))
	}

	var action wizard.Action
	form := r.newForm(
		huh.NewGroup(
			huh.NewSelect[wizard.Action]().
				Title("Continue").
				Options(opts...).
				Value(&action),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}
	return action, nil
}

func (r *Runner) printWarnings(sess *wizard.Session) {
	for _, w := range r.ctrl.Warnings(sess, sess.Step) {
		fmt.Fprintln(r.out, WarningStyle.Render(fmt.Sprintf("%s: %s", w.Field, w.Message)))
	}
}

func (r *Runner) printSubmitted(res wizard.Submitted) {
	lines := []string{
		SuccessStyle.Render("Form submitted successfully!"),
		SubtitleStyle.Render("Submitted at " + res.At.Format(time.RFC1123)),
	}
	if !res.Notified {
		lines = append(lines, WarningStyle.Render("The notification email could not be sent."))
		if res.Diagnostic != nil {
			lines = append(lines, WarningStyle.Render(res.Diagnostic.Error()))
		}
	}
	fmt.Fprintln(r.out, panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}
