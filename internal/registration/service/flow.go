package service

import (
	apperrors "studyreg/pkg/errors"
	"studyreg/pkg/model"
)

// Action is a participant input that may move the registration.
type Action string

const (
	ActionSubmitProfile Action = "submit_profile"
	ActionConsent       Action = "consent"
	ActionDecline       Action = "decline"
	ActionReconsider    Action = "reconsider"
	ActionBack          Action = "back"
	ActionSelect        Action = "select"
	ActionReview        Action = "review"
	ActionConfirm       Action = "confirm"
)

// transitions is the complete flow. Anything not listed is refused.
var transitions = map[model.Step]map[Action]model.Step{
	model.StepProfile: {
		ActionSubmitProfile: model.StepConsent,
	},
	model.StepConsent: {
		ActionConsent: model.StepScheduling,
		ActionDecline: model.StepDeclined,
		ActionBack:    model.StepProfile,
	},
	model.StepScheduling: {
		ActionSelect: model.StepScheduling,
		ActionReview: model.StepReview,
		ActionBack:   model.StepConsent,
	},
	model.StepReview: {
		ActionConfirm: model.StepConfirmed,
		ActionBack:    model.StepScheduling,
	},
	model.StepDeclined: {
		ActionReconsider: model.StepConsent,
	},
	model.StepConfirmed: {},
}

// actionOrder fixes the order AllowedActions reports in.
var actionOrder = []Action{
	ActionSubmitProfile, ActionConsent, ActionDecline, ActionReconsider,
	ActionSelect, ActionReview, ActionConfirm, ActionBack,
}

func next(from model.Step, action Action) (model.Step, error) {
	to, ok := transitions[from][action]
	if !ok {
		return from, apperrors.InvalidStep(string(from), string(action))
	}
	return to, nil
}

// AllowedActions lists the actions available from step.
func AllowedActions(step model.Step) []Action {
	out := []Action{}
	for _, a := range actionOrder {
		if _, ok := transitions[step][a]; ok {
			out = append(out, a)
		}
	}
	return out
}
