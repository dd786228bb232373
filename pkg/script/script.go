// Package script replays a recorded sequence of user actions against a
// session. Scripts are YAML documents:
//
//	version: 1
//	settings:
//	  gateway:
//	    type: lorem
//	actions:
//	  - send: hello
//	  - branch: 0
//	  - edit: {position: 0, content: hi}
//	  - submit: 0
//	  - navigate: {position: 0, direction: -1}
package script

import (
	"context"
	"io"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-go-golems/loom/pkg/session"
	"github.com/go-go-golems/loom/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type EditAction struct {
	Position int    `yaml:"position"`
	Content  string `yaml:"content"`
}

type NavigateAction struct {
	Position  int `yaml:"position"`
	Direction int `yaml:"direction"`
}

// Action is one user action. Exactly one field is set.
type Action struct {
	Send     *string         `yaml:"send,omitempty"`
	Branch   *int            `yaml:"branch,omitempty"`
	Edit     *EditAction     `yaml:"edit,omitempty"`
	Submit   *int            `yaml:"submit,omitempty"`
	Navigate *NavigateAction `yaml:"navigate,omitempty"`
}

func (a Action) count() int {
	n := 0
	for _, set := range []bool{a.Send != nil, a.Branch != nil, a.Edit != nil, a.Submit != nil, a.Navigate != nil} {
		if set {
			n++
		}
	}
	return n
}

func (a Action) Name() string {
	switch {
	case a.Send != nil:
		return "send"
	case a.Branch != nil:
		return "branch"
	case a.Edit != nil:
		return "edit"
	case a.Submit != nil:
		return "submit"
	case a.Navigate != nil:
		return "navigate"
	}
	return "none"
}

func (a Action) Validate() error {
	if a.count() != 1 {
		return errors.Errorf("exactly one of send, branch, edit, submit, navigate must be set, got %d", a.count())
	}
	if a.Navigate != nil {
		return validation.ValidateStruct(a.Navigate,
			validation.Field(&a.Navigate.Direction, validation.Required, validation.In(-1, 1)),
		)
	}
	return nil
}

type Script struct {
	Version int `yaml:"version,omitempty"`
	// Settings is overlaid onto the loaded settings before the session is
	// built.
	Settings yaml.Node `yaml:"settings,omitempty"`
	Actions  []Action  `yaml:"actions"`
}

func (s *Script) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Version, validation.In(0, 1)),
		validation.Field(&s.Actions, validation.Required),
	)
}

func Parse(r io.Reader) (*Script, error) {
	ret := &Script{}
	if err := yaml.NewDecoder(r).Decode(ret); err != nil {
		return nil, errors.Wrap(err, "could not parse script")
	}
	if err := ret.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid script")
	}
	return ret, nil
}

func Load(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open script")
	}
	defer func() {
		_ = f.Close()
	}()
	return Parse(f)
}

// ApplySettings returns a copy of base with the script's settings overlaid.
func (s *Script) ApplySettings(base *settings.Settings) (*settings.Settings, error) {
	ret := base.Clone()
	if s.Settings.Kind == 0 {
		return ret, nil
	}
	if err := s.Settings.Decode(ret); err != nil {
		return nil, errors.Wrap(err, "could not decode script settings")
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Run performs the actions in order, waiting for every requested reply before
// the next action. It stops at the first action the session rejects. Reply
// failures do not stop the script; they show up in the session's LastError.
func (s *Script) Run(ctx context.Context, sess *session.Session) error {
	for i, a := range s.Actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Debug().Int("index", i).Str("action", a.Name()).Msg("running action")

		var err error
		switch {
		case a.Send != nil:
			err = sess.Send(ctx, *a.Send)
		case a.Branch != nil:
			_, err = sess.Branch(ctx, *a.Branch)
		case a.Edit != nil:
			sess.EditPlaceholder(ctx, a.Edit.Position, a.Edit.Content)
		case a.Submit != nil:
			err = sess.SubmitPlaceholder(ctx, *a.Submit)
		case a.Navigate != nil:
			if !sess.Navigate(ctx, a.Navigate.Position, a.Navigate.Direction) {
				log.Warn().Int("index", i).Msg("navigation did not move")
			}
		}
		if err != nil {
			return errors.Wrapf(err, "action %d (%s)", i, a.Name())
		}
		sess.Wait()
		if lastErr := sess.LastError(); lastErr != nil {
			log.Warn().Err(lastErr).Int("index", i).Msg("reply failed")
		}
	}
	return nil
}
