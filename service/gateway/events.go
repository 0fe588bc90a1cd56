package gateway

import (
	"encoding/json"
	"fmt"
	"sort"

	"PPKitchen/tools/decode"
	"PPKitchen/tools/errs"
)

// Event types pushed to clients.
const (
	EventStepUpdated             = "step_updated"
	EventTimerStarted            = "timer_started"
	EventSessionEnded            = "session_ended"
	EventParticipantJoined       = "participant_joined"
	EventParticipantLeft         = "participant_left"
	EventCollectionUpdated       = "collection_updated"
	EventCollectionRecipeAdded   = "collection_recipe_added"
	EventCollectionRecipeRemoved = "collection_recipe_removed"
	EventShoppingListUpdated     = "shopping_list_updated"
	EventMealPlanUpdated         = "meal_plan_updated"
	EventChallengeCompleted      = "challenge_completed"
	EventNotification            = "notification"
)

// EventPayload is the closed payload shape of one event type.
type EventPayload interface {
	EventType() string
	Validate() error
}

// Event is an immutable outbound event. The zero value is not valid.
type Event struct {
	payload EventPayload
}

// NewEvent validates p and wraps it.
func NewEvent(p EventPayload) (Event, error) {
	if p == nil {
		return Event{}, errs.ErrInvalidEventPayload.WrapMsg("nil payload")
	}
	if err := p.Validate(); err != nil {
		return Event{}, errs.ErrInvalidEventPayload.WrapMsg(err.Error(), "type", p.EventType())
	}
	return Event{payload: p}, nil
}

func (e Event) Type() string {
	if e.payload == nil {
		return ""
	}
	return e.payload.EventType()
}

func (e Event) Payload() EventPayload { return e.payload }

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(outbound{Type: e.Type(), Payload: e.payload})
}

type eventDecoder func(map[string]any) (EventPayload, error)

func decoderFor[T EventPayload]() eventDecoder {
	return func(m map[string]any) (EventPayload, error) {
		v, err := decode.Decode[T](m)
		if err != nil {
			return nil, err
		}
		return *v, nil
	}
}

var catalog = map[string]eventDecoder{
	EventStepUpdated:             decoderFor[StepUpdated](),
	EventTimerStarted:            decoderFor[TimerStarted](),
	EventSessionEnded:            decoderFor[SessionEnded](),
	EventParticipantJoined:       decoderFor[ParticipantJoined](),
	EventParticipantLeft:         decoderFor[ParticipantLeft](),
	EventCollectionUpdated:       decoderFor[CollectionUpdated](),
	EventCollectionRecipeAdded:   decoderFor[CollectionRecipeAdded](),
	EventCollectionRecipeRemoved: decoderFor[CollectionRecipeRemoved](),
	EventShoppingListUpdated:     decoderFor[ShoppingListUpdated](),
	EventMealPlanUpdated:         decoderFor[MealPlanUpdated](),
	EventChallengeCompleted:      decoderFor[ChallengeCompleted](),
	EventNotification:            decoderFor[Notification](),
}

// EventTypes lists the known event types, sorted.
func EventTypes() []string {
	out := make([]string, 0, len(catalog))
	for k := range catalog {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DecodeEvent builds a typed event from its wire form. Unknown fields are
// rejected.
func DecodeEvent(typ string, payload map[string]any) (Event, error) {
	dec, ok := catalog[typ]
	if !ok {
		return Event{}, errs.ErrUnknownEvent.WrapMsg("decode", "type", typ)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	p, err := dec(payload)
	if err != nil {
		return Event{}, errs.ErrInvalidEventPayload.WrapMsg(err.Error(), "type", typ)
	}
	return NewEvent(p)
}

func required(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

type StepUpdated struct {
	SessionID  string `json:"sessionId,omitempty"`
	StepNumber int    `json:"stepNumber"`
	UpdatedBy  string `json:"updatedBy,omitempty"`
}

func (StepUpdated) EventType() string { return EventStepUpdated }
func (p StepUpdated) Validate() error {
	if p.StepNumber < 1 {
		return fmt.Errorf("stepNumber must be >= 1")
	}
	return nil
}

type TimerStarted struct {
	SessionID       string `json:"sessionId,omitempty"`
	StepNumber      int    `json:"stepNumber"`
	DurationSeconds int    `json:"durationSeconds"`
}

func (TimerStarted) EventType() string { return EventTimerStarted }
func (p TimerStarted) Validate() error {
	if p.StepNumber < 1 {
		return fmt.Errorf("stepNumber must be >= 1")
	}
	if p.DurationSeconds <= 0 {
		return fmt.Errorf("durationSeconds must be > 0")
	}
	return nil
}

type SessionEnded struct {
	SessionID string `json:"sessionId,omitempty"`
	EndedBy   string `json:"endedBy,omitempty"`
}

func (SessionEnded) EventType() string { return EventSessionEnded }
func (SessionEnded) Validate() error   { return nil }

type ParticipantJoined struct {
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId"`
}

func (ParticipantJoined) EventType() string { return EventParticipantJoined }
func (p ParticipantJoined) Validate() error { return required("userId", p.UserID) }

type ParticipantLeft struct {
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId"`
}

func (ParticipantLeft) EventType() string { return EventParticipantLeft }
func (p ParticipantLeft) Validate() error { return required("userId", p.UserID) }

type CollectionUpdated struct {
	CollectionID string `json:"collectionId"`
	Action       string `json:"action"`
}

func (CollectionUpdated) EventType() string { return EventCollectionUpdated }
func (p CollectionUpdated) Validate() error {
	if err := required("collectionId", p.CollectionID); err != nil {
		return err
	}
	switch p.Action {
	case "created", "updated", "deleted":
		return nil
	}
	return fmt.Errorf("action %q not one of created/updated/deleted", p.Action)
}

type CollectionRecipeAdded struct {
	CollectionID string `json:"collectionId"`
	RecipeID     string `json:"recipeId"`
	AddedBy      string `json:"addedBy,omitempty"`
}

func (CollectionRecipeAdded) EventType() string { return EventCollectionRecipeAdded }
func (p CollectionRecipeAdded) Validate() error {
	if err := required("collectionId", p.CollectionID); err != nil {
		return err
	}
	return required("recipeId", p.RecipeID)
}

type CollectionRecipeRemoved struct {
	CollectionID string `json:"collectionId"`
	RecipeID     string `json:"recipeId"`
}

func (CollectionRecipeRemoved) EventType() string { return EventCollectionRecipeRemoved }
func (p CollectionRecipeRemoved) Validate() error {
	if err := required("collectionId", p.CollectionID); err != nil {
		return err
	}
	return required("recipeId", p.RecipeID)
}

type ShoppingListUpdated struct {
	ListID   string `json:"listId"`
	Action   string `json:"action"`
	ItemID   string `json:"itemId,omitempty"`
	ItemName string `json:"itemName,omitempty"`
	Checked  *bool  `json:"checked,omitempty"`
}

func (ShoppingListUpdated) EventType() string { return EventShoppingListUpdated }
func (p ShoppingListUpdated) Validate() error {
	if err := required("listId", p.ListID); err != nil {
		return err
	}
	return required("action", p.Action)
}

type MealPlanUpdated struct {
	PlanID string `json:"planId"`
	Date   string `json:"date,omitempty"`
}

func (MealPlanUpdated) EventType() string { return EventMealPlanUpdated }
func (p MealPlanUpdated) Validate() error { return required("planId", p.PlanID) }

type ChallengeCompleted struct {
	ChallengeID string `json:"challengeId"`
	UserID      string `json:"userId"`
	Points      int    `json:"points,omitempty"`
}

func (ChallengeCompleted) EventType() string { return EventChallengeCompleted }
func (p ChallengeCompleted) Validate() error {
	if err := required("challengeId", p.ChallengeID); err != nil {
		return err
	}
	if err := required("userId", p.UserID); err != nil {
		return err
	}
	if p.Points < 0 {
		return fmt.Errorf("points must be >= 0")
	}
	return nil
}

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	Link  string `json:"link,omitempty"`
}

func (Notification) EventType() string { return EventNotification }
func (p Notification) Validate() error { return required("title", p.Title) }
